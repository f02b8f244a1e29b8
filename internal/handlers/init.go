package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/transfer"
)

// InitUploadHandler creates a transfer for the chunked upload path.
type InitUploadHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewInitUploadHandler creates a new init handler.
func NewInitUploadHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *InitUploadHandler {
	return &InitUploadHandler{protocol: protocol, log: log}
}

// InitUploadRequest is the body for POST /api/upload/init.
type InitUploadRequest struct {
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks"`
	Recipient   string `json:"recipient,omitempty"`
}

// InitUploadResponse tells the client where to send chunks and where the
// file will be downloadable.
type InitUploadResponse struct {
	TransferID        string `json:"transferId"`
	UploadURLTemplate string `json:"uploadUrlTemplate"`
	DownloadURL       string `json:"downloadUrl"`
}

// ServeHTTP handles POST /api/upload/init.
func (h *InitUploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "init_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "filename & totalChunks required", http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("file_name", req.Filename),
		attribute.Int("total_chunks", req.TotalChunks),
	)

	t, err := h.protocol.InitUpload(ctx, req.Filename, req.TotalChunks, req.Recipient)
	if err != nil {
		span.RecordError(err)
		writeProtocolError(w, err)
		return
	}

	base := baseURL(r)
	response := InitUploadResponse{
		TransferID:        t.ID,
		UploadURLTemplate: fmt.Sprintf("%s/api/upload/%s/chunk/{index}", base, t.ID),
		DownloadURL:       fmt.Sprintf("%s/api/download/%s", base, t.ID),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
