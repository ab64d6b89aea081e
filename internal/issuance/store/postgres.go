package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rezonia/invoice-engine/internal/database"
	"github.com/rezonia/invoice-engine/internal/issuance"
	"github.com/rezonia/invoice-engine/internal/model"
)

// Postgres stores issued invoices. The issuer's chain head row is locked
// with SELECT ... FOR UPDATE for the life of an issue transaction.
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

const selectIssuedColumns = `
	id, issuer_trn, invoice_number, sequence, invoice, document, content_hash,
	previous_chain_hash, chain_hash, signature, hash_algorithm, certificate_serial,
	mode, signed_at
`

func scanIssued(s scanner) (*model.IssuedInvoice, error) {
	var issued model.IssuedInvoice
	var invoiceJSON []byte
	var mode string

	a := &issued.Artifact
	if err := s.Scan(
		&a.ID, &a.IssuerTaxID, &a.InvoiceNumber, &a.Sequence, &invoiceJSON, &a.Document, &a.ContentHash,
		&a.PreviousChainHash, &a.ChainHash, &a.Signature, &a.HashAlgorithm, &a.CertificateSerial,
		&mode, &a.SignedAt,
	); err != nil {
		return nil, err
	}
	a.Mode = model.SigningMode(mode)
	a.SignedAt = a.SignedAt.UTC()

	if err := json.Unmarshal(invoiceJSON, &issued.Invoice); err != nil {
		return nil, fmt.Errorf("decoding invoice %s: %w", a.InvoiceNumber, err)
	}
	return &issued, nil
}

func (p *Postgres) BeginIssue(ctx context.Context, issuerTaxID string) (issuance.IssueTx, error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning issue tx: %w", err)
	}

	// the head row must exist before it can be locked
	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO issuer_chain_heads (issuer_trn) VALUES ($1)
		ON CONFLICT (issuer_trn) DO NOTHING`, issuerTaxID); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("creating chain head: %w", err)
	}

	tx := &postgresTx{tx: dbTx, issuer: issuerTaxID}
	if err := dbTx.QueryRowContext(ctx, `
		SELECT chain_hash, sequence FROM issuer_chain_heads
		WHERE issuer_trn = $1 FOR UPDATE`, issuerTaxID,
	).Scan(&tx.head.ChainHash, &tx.head.Sequence); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("locking chain head: %w", err)
	}

	return tx, nil
}

func (p *Postgres) Find(ctx context.Context, issuerTaxID, number string) (*model.IssuedInvoice, error) {
	query := `SELECT ` + selectIssuedColumns + `
		FROM issued_invoices
		WHERE issuer_trn = $1 AND invoice_number = $2`

	issued, err := scanIssued(p.db.QueryRowContext(ctx, query, issuerTaxID, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, issuance.ErrNotFound
		}
		return nil, fmt.Errorf("finding invoice: %w", err)
	}
	return issued, nil
}

func (p *Postgres) History(ctx context.Context, issuerTaxID string) ([]*model.IssuedInvoice, error) {
	query := `SELECT ` + selectIssuedColumns + `
		FROM issued_invoices
		WHERE issuer_trn = $1
		ORDER BY sequence ASC`

	rows, err := p.db.QueryContext(ctx, query, issuerTaxID)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var history []*model.IssuedInvoice
	for rows.Next() {
		issued, err := scanIssued(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		history = append(history, issued)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return history, nil
}

type postgresTx struct {
	tx     *sql.Tx
	issuer string
	head   issuance.ChainHead
}

func (t *postgresTx) Head(_ context.Context) (issuance.ChainHead, error) {
	return t.head, nil
}

func (t *postgresTx) Exists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM issued_invoices WHERE issuer_trn = $1 AND invoice_number = $2)`,
		t.issuer, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking invoice number: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) Save(ctx context.Context, issued *model.IssuedInvoice) error {
	invoiceJSON, err := json.Marshal(issued.Invoice)
	if err != nil {
		return fmt.Errorf("encoding invoice: %w", err)
	}

	a := issued.Artifact
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO issued_invoices (`+selectIssuedColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.IssuerTaxID, a.InvoiceNumber, a.Sequence, invoiceJSON, a.Document, a.ContentHash,
		a.PreviousChainHash, a.ChainHash, a.Signature, a.HashAlgorithm, a.CertificateSerial,
		string(a.Mode), a.SignedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "issued_invoices_number_key") {
			return issuance.ErrDuplicate
		}
		return fmt.Errorf("inserting invoice: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE issuer_chain_heads
		SET chain_hash = $1, sequence = $2, updated_at = NOW()
		WHERE issuer_trn = $3`,
		a.ChainHash, a.Sequence, t.issuer,
	); err != nil {
		return fmt.Errorf("advancing chain head: %w", err)
	}

	t.head = issuance.ChainHead{ChainHash: a.ChainHash, Sequence: a.Sequence}
	return nil
}

func (t *postgresTx) Commit() error   { return t.tx.Commit() }
func (t *postgresTx) Rollback() error { return t.tx.Rollback() }
