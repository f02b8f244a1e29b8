package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/transfer"
)

// DownloadHandler streams a decrypted transfer back to the client.
type DownloadHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *DownloadHandler {
	return &DownloadHandler{protocol: protocol, log: log}
}

// ServeHTTP handles GET /api/download/{transfer_id}. For passphrase-
// protected transfers the passphrase arrives in the X-Passphrase header
// or the key query parameter.
func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "download",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	transferID := mux.Vars(r)["transfer_id"]
	span.SetAttributes(attribute.String("transfer_id", transferID))

	passphrase := r.Header.Get("X-Passphrase")
	if passphrase == "" {
		passphrase = r.URL.Query().Get("key")
	}

	streamTransfer(ctx, w, h.log, h.protocol, transferID, func(out io.Writer) error {
		_, err := h.protocol.Download(ctx, transferID, passphrase, out)
		return err
	})
}

// attachmentWriter delays response headers until the first decrypted
// byte, so early failures (wrong passphrase, wrong code, unknown
// transfer) still produce a proper error status instead of a truncated
// 200.
type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	wrote    bool
}

func (aw *attachmentWriter) Write(p []byte) (int, error) {
	if !aw.wrote {
		aw.w.Header().Set("Content-Type", "application/octet-stream")
		aw.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", aw.filename))
		aw.w.WriteHeader(http.StatusOK)
		aw.wrote = true
	}
	return aw.w.Write(p)
}

// streamTransfer looks up the transfer for its display name, runs the
// download and maps errors. Once bytes are on the wire an error can only
// truncate the stream; the client must treat a short body as a failed
// download.
func streamTransfer(ctx context.Context, w http.ResponseWriter, log *zap.SugaredLogger, p *transfer.Protocol, id string, run func(io.Writer) error) {
	meta, err := p.Metadata(ctx, id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	aw := &attachmentWriter{w: w, filename: meta.Filename}
	if err := run(aw); err != nil {
		if aw.wrote {
			// headers are gone; all we can do is cut the stream short
			log.Errorw("download aborted mid-stream", "transfer_id", id, "error", err)
			return
		}
		writeProtocolError(w, err)
	}
}
