package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/chunker"
	"github.com/dilsidhu13/secdrop/internal/config"
	"github.com/dilsidhu13/secdrop/internal/cryptox"
	"github.com/dilsidhu13/secdrop/internal/models"
	"github.com/dilsidhu13/secdrop/internal/notify"
	"github.com/dilsidhu13/secdrop/internal/storage"
)

var tracer = otel.Tracer("secdrop-transfer")

// Options configure the protocol's encryption behavior.
type Options struct {
	// Mode is config.ModeServer or config.ModeClient.
	Mode string
	// SaltMode is config.SaltRandom or config.SaltFixed.
	SaltMode string
	// ChunkSize bounds chunk payloads on the single-shot path.
	ChunkSize int64
	// OTPLength is the verification code length.
	OTPLength int
}

// Protocol orchestrates the transfer lifecycle: init, chunk upload,
// readiness, verification and decrypt-stream download. It is the only
// component that mutates Transfer records; per-transfer mutations are
// serialized with a keyed lock so parallel chunk uploads never lose
// updates.
type Protocol struct {
	registry storage.Registry
	blobs    storage.BlobStore
	cache    *storage.RedisCache // nil disables caching
	notifier notify.Notifier
	chunker  *chunker.Chunker
	opts     Options
	locks    sync.Map // transfer id -> *sync.Mutex
	log      *zap.SugaredLogger
}

// New wires a protocol instance. cache may be nil.
func New(registry storage.Registry, blobs storage.BlobStore, cache *storage.RedisCache, notifier notify.Notifier, opts Options, log *zap.SugaredLogger) *Protocol {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024 * 1024
	}
	if opts.OTPLength <= 0 {
		opts.OTPLength = 6
	}
	return &Protocol{
		registry: registry,
		blobs:    blobs,
		cache:    cache,
		notifier: notifier,
		chunker:  chunker.NewChunker(opts.ChunkSize),
		opts:     opts,
		log:      log,
	}
}

func (p *Protocol) lockFor(id string) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// InitUpload creates a transfer in UPLOADING state. In server mode a
// fresh random key is generated and held in the registry; it never leaves
// the process.
func (p *Protocol) InitUpload(ctx context.Context, filename string, totalChunks int, recipient string) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.init_upload",
		trace.WithAttributes(
			attribute.String("file_name", filename),
			attribute.Int("total_chunks", totalChunks),
		),
	)
	defer span.End()

	if filename == "" {
		return nil, fmt.Errorf("%w: filename required", ErrInvalidRequest)
	}
	if totalChunks < 1 {
		return nil, fmt.Errorf("%w: totalChunks must be >= 1", ErrInvalidRequest)
	}
	if recipient != "" {
		if err := notify.ValidateDestination(recipient); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	t := &models.Transfer{
		ID:          uuid.New().String(),
		Filename:    filename,
		TotalChunks: totalChunks,
		IVs:         make([][]byte, totalChunks),
		Status:      models.StatusUploading,
		Recipient:   recipient,
		CreatedAt:   time.Now(),
	}

	if p.opts.Mode == config.ModeServer {
		key, err := cryptox.GenerateKey()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		t.Key = key
	}

	if err := p.registry.Create(ctx, t); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	span.SetAttributes(attribute.String("transfer_id", t.ID))
	p.log.Infow("transfer initialized", "transfer_id", t.ID, "file_name", filename, "total_chunks", totalChunks)
	return t.Clone(), nil
}

// PutChunk encrypts and persists one chunk, records its nonce and counts
// it toward readiness. Re-uploading an index that already landed replaces
// its blob and nonce without counting twice, so clients can retry a
// partially failed chunk. The transfer flips to READY exactly when the
// last outstanding index lands.
func (p *Protocol) PutChunk(ctx context.Context, id string, index int, r io.Reader) (int, error) {
	ctx, span := tracer.Start(ctx, "transfer.put_chunk",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
			attribute.Int("chunk_index", index),
		),
	)
	defer span.End()

	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	t, err := p.registry.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if t.Ready() {
		return 0, ErrTransferClosed
	}
	if index < 0 || index >= t.TotalChunks {
		return 0, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, index, t.TotalChunks)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read chunk body: %w", err)
	}

	if err := p.writeChunk(ctx, t, index, t.Key, data); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := p.store(ctx, t); err != nil {
		span.RecordError(err)
		return 0, err
	}

	p.log.Infow("chunk recorded",
		"transfer_id", id, "chunk_index", index,
		"uploaded", t.Uploaded, "status", t.Status)
	return index, nil
}

// writeChunk seals one chunk, persists the blob and records the nonce.
// Caller holds the transfer lock and persists t.
func (p *Protocol) writeChunk(ctx context.Context, t *models.Transfer, index int, key, data []byte) error {
	nonce, err := p.sealAndPut(ctx, t.ID, index, key, data)
	if err != nil {
		return err
	}

	firstWrite := t.IVs[index] == nil
	t.IVs[index] = nonce
	if firstWrite {
		t.Uploaded++
	}
	if t.Uploaded == t.TotalChunks {
		t.Status = models.StatusReady
	}
	return nil
}

// UploadWhole is the single-shot path: the body is split by the chunker
// and driven through the same chunk pipeline, so a one-chunk result is
// indistinguishable from InitUpload with totalChunks=1. In server mode
// the key is derived from the passphrase and the per-transfer (or fixed)
// salt; for a single chunk the authentication tag is detached onto the
// transfer record.
func (p *Protocol) UploadWhole(ctx context.Context, filename, passphrase, recipient string, r io.Reader) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.upload_whole",
		trace.WithAttributes(
			attribute.String("file_name", filename),
		),
	)
	defer span.End()

	if filename == "" {
		return nil, fmt.Errorf("%w: filename required", ErrInvalidRequest)
	}
	if p.opts.Mode == config.ModeServer && passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase required", ErrInvalidRequest)
	}
	if recipient != "" {
		if err := notify.ValidateDestination(recipient); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	t := &models.Transfer{
		ID:        uuid.New().String(),
		Filename:  filename,
		Status:    models.StatusUploading,
		Recipient: recipient,
		CreatedAt: time.Now(),
	}

	var key []byte
	if p.opts.Mode == config.ModeServer {
		salt := []byte(cryptox.FixedSalt)
		if p.opts.SaltMode == config.SaltRandom {
			var err error
			salt, err = cryptox.GenerateSalt()
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("failed to generate salt: %w", err)
			}
		}
		t.Salt = salt
		key = cryptox.DeriveKey([]byte(passphrase), salt)
	}

	// One chunk of lookahead decides between the detached-tag single
	// chunk layout and the per-chunk inline-tag layout; beyond that the
	// stream is processed one chunk at a time, so memory use stays
	// bounded for files larger than RAM.
	cur, err := p.chunker.ReadChunk(r)
	if err == io.EOF {
		cur = []byte{}
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	next, nerr := p.chunker.ReadChunk(r)
	var totalSize int64

	if p.opts.Mode == config.ModeServer && nerr == io.EOF {
		ciphertext, nonce, tag, err := cryptox.SealDetached(key, cur)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to encrypt upload: %w", err)
		}
		objectKey := storage.ChunkKey(t.ID, 0)
		if err := p.blobs.Put(ctx, objectKey, bytes.NewReader(ciphertext), int64(len(ciphertext))); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to store upload: %w", err)
		}
		totalSize = int64(len(cur))
		t.IVs = [][]byte{nonce}
		t.AuthTag = tag
		t.TotalChunks = 1
	} else {
		index := 0
		for {
			nonce, err := p.sealAndPut(ctx, t.ID, index, key, cur)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			t.IVs = append(t.IVs, nonce)
			totalSize += int64(len(cur))
			index++

			if nerr == io.EOF {
				break
			} else if nerr != nil {
				span.RecordError(nerr)
				return nil, fmt.Errorf("failed to read upload: %w", nerr)
			}
			cur = next
			next, nerr = p.chunker.ReadChunk(r)
		}
		t.TotalChunks = index
	}

	t.Uploaded = t.TotalChunks
	t.Status = models.StatusReady

	span.SetAttributes(
		attribute.String("transfer_id", t.ID),
		attribute.Int64("file_size", totalSize),
		attribute.Int("chunk_count", t.TotalChunks),
	)

	// the record only becomes visible once every chunk is durable
	if err := p.registry.Create(ctx, t); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	p.log.Infow("whole-file upload stored",
		"transfer_id", t.ID, "file_name", filename,
		"file_size", totalSize, "chunk_count", t.TotalChunks)
	return t.Clone(), nil
}

// sealAndPut encrypts (in server mode) and persists one chunk, returning
// the nonce to record. Client mode stores bytes verbatim with an empty
// nonce marker.
func (p *Protocol) sealAndPut(ctx context.Context, id string, index int, key, data []byte) ([]byte, error) {
	var blob, nonce []byte
	if p.opts.Mode == config.ModeClient {
		blob, nonce = data, []byte{}
	} else {
		sealed, n, err := cryptox.EncryptChunk(key, data)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt chunk %d: %w", index, err)
		}
		blob, nonce = sealed, n
	}

	objectKey := storage.ChunkKey(id, index)
	if err := p.blobs.Put(ctx, objectKey, bytes.NewReader(blob), int64(len(blob))); err != nil {
		return nil, fmt.Errorf("failed to store chunk %d: %w", index, err)
	}
	return nonce, nil
}

// Download streams decrypted plaintext to w, chunk by chunk in index
// order. The output is byte-identical to the uploaded concatenation. On
// the first chunk that fails authentication the stream aborts with
// ErrDecryptionFailed; bytes already flushed are not retracted, so the
// caller must discard a failed download regardless of received bytes.
func (p *Protocol) Download(ctx context.Context, id, passphrase string, w io.Writer) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.download",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	t, err := p.getTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Ready() {
		return nil, ErrNotReady
	}

	key, err := p.resolveKey(t, passphrase)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.TotalChunks; i++ {
		if err := p.streamChunk(ctx, t, i, key, w); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	p.log.Infow("download completed", "transfer_id", id, "file_name", t.Filename)
	return t, nil
}

// streamChunk fetches, decrypts and writes one chunk. Memory use is
// bounded by one chunk regardless of file size.
func (p *Protocol) streamChunk(ctx context.Context, t *models.Transfer, index int, key []byte, w io.Writer) error {
	rc, err := p.blobs.Get(ctx, storage.ChunkKey(t.ID, index))
	if err != nil {
		return fmt.Errorf("failed to fetch chunk %d: %w", index, err)
	}
	defer rc.Close()

	if p.opts.Mode == config.ModeClient {
		if _, err := io.Copy(w, rc); err != nil {
			return fmt.Errorf("failed to stream chunk %d: %w", index, err)
		}
		return nil
	}

	blob, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read chunk %d: %w", index, err)
	}

	var plaintext []byte
	if t.AuthTag != nil && t.TotalChunks == 1 {
		plaintext, err = cryptox.OpenDetached(key, blob, t.IVs[0], t.AuthTag)
	} else {
		plaintext, err = cryptox.DecryptChunk(key, blob, t.IVs[index])
	}
	if err != nil {
		return fmt.Errorf("%w: chunk %d", ErrDecryptionFailed, index)
	}

	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	return nil
}

// Metadata returns the transfer's public metadata.
func (p *Protocol) Metadata(ctx context.Context, id string) (*models.Transfer, error) {
	return p.getTransfer(ctx, id)
}

// resolveKey picks the decryption key for a transfer: the stored random
// key, or a passphrase-derived key when only a salt was kept.
func (p *Protocol) resolveKey(t *models.Transfer, passphrase string) ([]byte, error) {
	if p.opts.Mode == config.ModeClient {
		return nil, nil
	}
	if t.Key != nil {
		return t.Key, nil
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase required", ErrInvalidRequest)
	}
	return cryptox.DeriveKey([]byte(passphrase), t.Salt), nil
}

// getTransfer is the cache-aside read path. Only READY transfers are
// cached; mutating paths invalidate through store.
func (p *Protocol) getTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	if p.cache != nil {
		t, err := p.cache.GetTransfer(ctx, id)
		if err != nil {
			p.log.Warnw("cache lookup failed", "transfer_id", id, "error", err)
		} else if t != nil {
			return t, nil
		}
	}

	t, err := p.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && t.Ready() {
		if err := p.cache.SetTransfer(ctx, t); err != nil {
			p.log.Warnw("cache update failed", "transfer_id", id, "error", err)
		}
	}
	return t, nil
}

// store persists a mutation and drops any cached copy.
func (p *Protocol) store(ctx context.Context, t *models.Transfer) error {
	if err := p.registry.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.InvalidateTransfer(ctx, t.ID); err != nil {
			p.log.Warnw("cache invalidate failed", "transfer_id", t.ID, "error", err)
		}
	}
	return nil
}
