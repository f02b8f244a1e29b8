package transfer

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dilsidhu13/secdrop/internal/cryptox"
	"github.com/dilsidhu13/secdrop/internal/models"
)

// RequestCode generates a fresh one-time code for a transfer and
// dispatches it to the recipient. Any previously pending code is
// overwritten; only one code is valid at a time.
func (p *Protocol) RequestCode(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "transfer.request_code",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	t, err := p.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Recipient == "" {
		return fmt.Errorf("%w: transfer has no recipient", ErrInvalidRequest)
	}

	code, err := cryptox.GenerateOTP(p.opts.OTPLength)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to generate code: %w", err)
	}

	t.OTP = code
	if err := p.store(ctx, t); err != nil {
		span.RecordError(err)
		return err
	}

	message := fmt.Sprintf("Your SecDrop verification code for %q is %s", t.Filename, code)
	if err := p.notifier.Notify(ctx, t.Recipient, message); err != nil {
		// code stays pending; the caller can retry dispatch
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrNotifier, err)
	}

	p.log.Infow("verification code dispatched", "transfer_id", id, "recipient", t.Recipient)
	return nil
}

// VerifyAndDownload consumes a pending one-time code and, on success,
// streams the decrypted transfer. The code is cleared before any bytes
// flow, under the transfer lock, so concurrent attempts racing on the
// same code have exactly one winner. A wrong passphrase surfaces as
// ErrDecryptionFailed, distinct from ErrInvalidCode in the taxonomy even
// though the HTTP layer reports both generically.
func (p *Protocol) VerifyAndDownload(ctx context.Context, id, code, passphrase string, w io.Writer) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.verify_and_download",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	if err := p.consumeCode(ctx, id, code); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return p.Download(ctx, id, passphrase, w)
}

// consumeCode atomically checks and clears the pending code. Reads go to
// the registry directly: the cache may hold a stale OTP field.
func (p *Protocol) consumeCode(ctx context.Context, id, code string) error {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	t, err := p.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.OTP == "" || code == "" || code != t.OTP {
		return ErrInvalidCode
	}

	t.OTP = ""
	if err := p.store(ctx, t); err != nil {
		return err
	}
	return nil
}
