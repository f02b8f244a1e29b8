package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/cryptox"
	"github.com/dilsidhu13/secdrop/internal/transfer"
)

// ChunkUploadHandler accepts one chunk of an in-flight transfer.
type ChunkUploadHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewChunkUploadHandler creates a new chunk upload handler.
func NewChunkUploadHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *ChunkUploadHandler {
	return &ChunkUploadHandler{protocol: protocol, log: log}
}

// ChunkUploadResponse acknowledges one recorded chunk.
type ChunkUploadResponse struct {
	OK    bool `json:"ok"`
	Index int  `json:"index"`
}

// ServeHTTP handles PUT /api/upload/{transfer_id}/chunk/{index} with the
// raw chunk bytes as the body.
func (h *ChunkUploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_chunk",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()
	defer r.Body.Close()

	vars := mux.Vars(r)
	transferID := vars["transfer_id"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		http.Error(w, "chunk index must be an integer", http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("transfer_id", transferID),
		attribute.Int("chunk_index", index),
	)

	recorded, err := h.protocol.PutChunk(ctx, transferID, index, r.Body)
	if err != nil {
		span.RecordError(err)
		writeProtocolError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChunkUploadResponse{OK: true, Index: recorded})
}

// WholeUploadHandler is the single-shot path: the whole file arrives as
// one multipart request and is chunked and encrypted on ingest.
type WholeUploadHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewWholeUploadHandler creates a new whole-file upload handler.
func NewWholeUploadHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *WholeUploadHandler {
	return &WholeUploadHandler{protocol: protocol, log: log}
}

// WholeUploadResponse returns the share id and, in random-salt mode, the
// base58 "Key A" salt component for the share link.
type WholeUploadResponse struct {
	ID          string `json:"id"`
	KeyA        string `json:"keyA,omitempty"`
	DownloadURL string `json:"downloadUrl"`
}

// ServeHTTP handles POST /api/upload (multipart: file, keyB, recipient).
func (h *WholeUploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_whole",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file and keyB required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	passphrase := r.FormValue("keyB")
	recipient := r.FormValue("recipient")

	span.SetAttributes(attribute.String("file_name", header.Filename))

	t, err := h.protocol.UploadWhole(ctx, header.Filename, passphrase, recipient, file)
	if err != nil {
		span.RecordError(err)
		writeProtocolError(w, err)
		return
	}

	response := WholeUploadResponse{
		ID:          t.ID,
		DownloadURL: fmt.Sprintf("%s/api/download/%s", baseURL(r), t.ID),
	}
	if len(t.Salt) > 0 && string(t.Salt) != cryptox.FixedSalt {
		response.KeyA = base58.Encode(t.Salt)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}
