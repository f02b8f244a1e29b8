package storage

import (
	"context"
	"errors"

	"github.com/dilsidhu13/secdrop/internal/models"
)

// ErrTransferNotFound is returned by Registry.Get for unknown transfer IDs.
var ErrTransferNotFound = errors.New("transfer not found")

// Registry is the source of truth for transfer records, keyed by transfer
// ID. Update is an idempotent full replace. Per-transfer write ordering is
// the caller's responsibility (the protocol serializes mutations with a
// per-ID lock), so correctness does not depend on the backend.
type Registry interface {
	Create(ctx context.Context, t *models.Transfer) error
	Get(ctx context.Context, id string) (*models.Transfer, error)
	Update(ctx context.Context, t *models.Transfer) error
}
