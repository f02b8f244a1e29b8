package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dilsidhu13/secdrop/internal/models"
)

// MySQLRegistry persists transfer records in MySQL/TiDB for deployments
// that need the registry to survive restarts.
type MySQLRegistry struct {
	db *sql.DB
}

// NewMySQLRegistry opens the database, verifies connectivity and ensures
// the schema exists.
func NewMySQLRegistry(dsn string) (*MySQLRegistry, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	r := &MySQLRegistry{db: db}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close closes the database connection.
func (r *MySQLRegistry) Close() error {
	return r.db.Close()
}

func (r *MySQLRegistry) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id VARCHAR(36) PRIMARY KEY,
			filename VARCHAR(512) NOT NULL,
			total_chunks INT NOT NULL,
			uploaded INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			enc_key VARBINARY(32),
			salt VARBINARY(32),
			auth_tag VARBINARY(16),
			otp VARCHAR(16),
			recipient VARCHAR(256),
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_ivs (
			transfer_id VARCHAR(36) NOT NULL,
			chunk_index INT NOT NULL,
			iv VARBINARY(12) NOT NULL,
			PRIMARY KEY (transfer_id, chunk_index)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new transfer record.
func (r *MySQLRegistry) Create(ctx context.Context, t *models.Transfer) error {
	ctx, span := tracer.Start(ctx, "mysql.create_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", t.ID),
			attribute.Int("total_chunks", t.TotalChunks),
		),
	)
	defer span.End()

	query := `INSERT INTO transfers
		(id, filename, total_chunks, uploaded, status, enc_key, salt, auth_tag, otp, recipient, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Filename, t.TotalChunks, t.Uploaded, string(t.Status),
		t.Key, t.Salt, t.AuthTag, t.OTP, t.Recipient, t.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

// Get loads a transfer and its recorded chunk IVs.
func (r *MySQLRegistry) Get(ctx context.Context, id string) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	query := `SELECT id, filename, total_chunks, uploaded, status, enc_key, salt, auth_tag, otp, recipient, created_at
		FROM transfers WHERE id = ?`

	var t models.Transfer
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Filename, &t.TotalChunks, &t.Uploaded, &status,
		&t.Key, &t.Salt, &t.AuthTag, &t.OTP, &t.Recipient, &t.CreatedAt)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrTransferNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query transfer: %w", err)
	}
	t.Status = models.TransferStatus(status)

	t.IVs = make([][]byte, t.TotalChunks)
	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_index, iv FROM transfer_ivs WHERE transfer_id = ? ORDER BY chunk_index ASC`, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunk ivs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var iv []byte
		if err := rows.Scan(&idx, &iv); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan chunk iv: %w", err)
		}
		if idx >= 0 && idx < t.TotalChunks {
			t.IVs[idx] = iv
		}
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating chunk ivs: %w", err)
	}

	return &t, nil
}

// Update replaces the transfer row and upserts its IV rows.
func (r *MySQLRegistry) Update(ctx context.Context, t *models.Transfer) error {
	ctx, span := tracer.Start(ctx, "mysql.update_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", t.ID),
			attribute.Int("uploaded", t.Uploaded),
			attribute.String("status", string(t.Status)),
		),
	)
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE transfers SET uploaded = ?, status = ?, auth_tag = ?, otp = ?, recipient = ? WHERE id = ?`,
		t.Uploaded, string(t.Status), t.AuthTag, t.OTP, t.Recipient, t.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// row may exist with identical values; distinguish via lookup
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM transfers WHERE id = ?`, t.ID).Scan(&one); err == sql.ErrNoRows {
			return ErrTransferNotFound
		}
	}

	for idx, iv := range t.IVs {
		if iv == nil {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transfer_ivs (transfer_id, chunk_index, iv) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE iv = VALUES(iv)`,
			t.ID, idx, iv)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to upsert chunk iv: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}
