package handlers

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/dilsidhu13/secdrop/internal/storage"
	"github.com/dilsidhu13/secdrop/internal/transfer"
)

var tracer = otel.Tracer("secdrop-handlers")

// genericAuthMessage is deliberately the same for a wrong code and a
// wrong passphrase so callers cannot tell which guess was bad.
const genericAuthMessage = "wrong passphrase or code"

// writeProtocolError maps protocol errors onto HTTP status codes.
func writeProtocolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrTransferNotFound), errors.Is(err, transfer.ErrNotReady):
		http.Error(w, "not found or not ready", http.StatusNotFound)
	case errors.Is(err, transfer.ErrInvalidRequest), errors.Is(err, transfer.ErrInvalidIndex):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, transfer.ErrTransferClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, transfer.ErrInvalidCode), errors.Is(err, transfer.ErrDecryptionFailed):
		http.Error(w, genericAuthMessage, http.StatusUnauthorized)
	case errors.Is(err, transfer.ErrNotifier):
		http.Error(w, "notification failed, try again", http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
