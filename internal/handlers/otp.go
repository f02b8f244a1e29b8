package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/transfer"
)

// RequestOTPHandler triggers generation and dispatch of a one-time code.
type RequestOTPHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewRequestOTPHandler creates a new OTP request handler.
func NewRequestOTPHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *RequestOTPHandler {
	return &RequestOTPHandler{protocol: protocol, log: log}
}

// ServeHTTP handles POST /api/crypto/request-otp/{id}.
func (h *RequestOTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "request_otp",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("transfer_id", id))

	if err := h.protocol.RequestCode(ctx, id); err != nil {
		span.RecordError(err)
		writeProtocolError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DecryptHandler is the gated download: code plus passphrase in, file out.
type DecryptHandler struct {
	protocol *transfer.Protocol
	log      *zap.SugaredLogger
}

// NewDecryptHandler creates a new gated download handler.
func NewDecryptHandler(protocol *transfer.Protocol, log *zap.SugaredLogger) *DecryptHandler {
	return &DecryptHandler{protocol: protocol, log: log}
}

// DecryptRequest is the body for POST /api/crypto/decrypt/{id}.
type DecryptRequest struct {
	KeyB string `json:"keyB"`
	OTP  string `json:"otp"`
}

// ServeHTTP handles POST /api/crypto/decrypt/{id}.
func (h *DecryptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "verify_and_download",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("transfer_id", id))

	var req DecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "keyB and otp required", http.StatusBadRequest)
		return
	}

	streamTransfer(ctx, w, h.log, h.protocol, id, func(out io.Writer) error {
		_, err := h.protocol.VerifyAndDownload(ctx, id, req.OTP, req.KeyB, out)
		return err
	})
}
