package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/transfer"
)

// MetadataHandler exposes the public metadata of a transfer.
type MetadataHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewMetadataHandler creates a new metadata handler.
func NewMetadataHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *MetadataHandler {
	return &MetadataHandler{protocol: protocol, log: log}
}

// MetadataResponse carries the uploader-chosen display name. Keys, salts
// and codes never appear here.
type MetadataResponse struct {
	OriginalName string `json:"originalName"`
	Status       string `json:"status"`
}

// ServeHTTP handles GET /api/metadata/{id}.
func (h *MetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "get_metadata",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("transfer_id", id))

	t, err := h.protocol.Metadata(ctx, id)
	if err != nil {
		span.RecordError(err)
		writeProtocolError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MetadataResponse{
		OriginalName: t.Filename,
		Status:       string(t.Status),
	})
}
