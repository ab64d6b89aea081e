package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rezonia/invoice-engine/internal/database"
	"github.com/rezonia/invoice-engine/internal/transmission"
)

// Postgres stores transmission records. The transmissions_live_key partial
// index allows one non-FAILED record per idempotency key.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectRecordColumns = `
	id, idempotency_key, artifact_id, invoice_number, issuer_trn, content_hash,
	provider, sender_id, receiver_id, status, message_id, attempt, last_error,
	request, response, sent_at, delivered_at, rejected_at, created_at, updated_at
`

func scanRecord(s scanner) (*transmission.Record, error) {
	var r transmission.Record
	var status string
	var response []byte
	var sentAt, deliveredAt, rejectedAt sql.NullTime

	if err := s.Scan(
		&r.ID, &r.IdempotencyKey, &r.ArtifactID, &r.InvoiceNumber, &r.IssuerTaxID, &r.ContentHash,
		&r.Provider, &r.SenderID, &r.ReceiverID, &status, &r.MessageID, &r.Attempt, &r.LastError,
		&r.Request, &response, &sentAt, &deliveredAt, &rejectedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Status = transmission.Status(status)
	r.Response = response
	r.SentAt = timePtr(sentAt)
	r.DeliveredAt = timePtr(deliveredAt)
	r.RejectedAt = timePtr(rejectedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func nullBytes(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func (p *Postgres) findOne(ctx context.Context, where string, args ...any) (*transmission.Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM transmissions ` + where
	r, err := scanRecord(p.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transmission.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (p *Postgres) Latest(ctx context.Context, key string) (*transmission.Record, error) {
	r, err := p.findOne(ctx, `WHERE idempotency_key = $1 ORDER BY attempt DESC LIMIT 1`, key)
	if err != nil && !errors.Is(err, transmission.ErrNotFound) {
		return nil, fmt.Errorf("loading latest transmission: %w", err)
	}
	return r, err
}

func (p *Postgres) Create(ctx context.Context, r *transmission.Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transmissions (`+selectRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		r.ID, r.IdempotencyKey, r.ArtifactID, r.InvoiceNumber, r.IssuerTaxID, r.ContentHash,
		r.Provider, r.SenderID, r.ReceiverID, string(r.Status), r.MessageID, r.Attempt, r.LastError,
		nullBytes(r.Request), nullJSON(r.Response), nullTime(r.SentAt), nullTime(r.DeliveredAt), nullTime(r.RejectedAt),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return transmission.ErrConflict
		}
		return fmt.Errorf("inserting transmission: %w", err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, r *transmission.Record) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE transmissions
		SET sender_id = $2, receiver_id = $3, status = $4, message_id = $5, last_error = $6,
			request = $7, response = $8, sent_at = $9, delivered_at = $10, rejected_at = $11, updated_at = $12
		WHERE id = $1`,
		r.ID, r.SenderID, r.ReceiverID, string(r.Status), r.MessageID, r.LastError,
		nullBytes(r.Request), nullJSON(r.Response), nullTime(r.SentAt), nullTime(r.DeliveredAt), nullTime(r.RejectedAt),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating transmission: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return transmission.ErrNotFound
	}
	return nil
}

func (p *Postgres) FindByMessage(ctx context.Context, providerName, messageID string) (*transmission.Record, error) {
	r, err := p.findOne(ctx, `WHERE provider = $1 AND message_id = $2 AND message_id <> ''`, providerName, messageID)
	if err != nil && !errors.Is(err, transmission.ErrNotFound) {
		return nil, fmt.Errorf("finding transmission: %w", err)
	}
	return r, err
}

func (p *Postgres) ListByInvoice(ctx context.Context, issuerTaxID, number string) ([]*transmission.Record, error) {
	query := `SELECT ` + selectRecordColumns + `
		FROM transmissions
		WHERE issuer_trn = $1 AND invoice_number = $2
		ORDER BY created_at ASC, attempt ASC`

	rows, err := p.db.QueryContext(ctx, query, issuerTaxID, number)
	if err != nil {
		return nil, fmt.Errorf("listing transmissions: %w", err)
	}
	defer rows.Close()

	var records []*transmission.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transmission: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transmission rows: %w", err)
	}
	return records, nil
}
