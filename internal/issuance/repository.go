package issuance

import (
	"context"
	"errors"

	"github.com/rezonia/invoice-engine/internal/model"
)

var (
	ErrNotFound  = errors.New("invoice not found")
	ErrDuplicate = errors.New("invoice number already issued")
)

// ChainHead is the latest link of an issuer's chain
type ChainHead struct {
	ChainHash string
	Sequence  int64
}

//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=issuance
type Repository interface {
	// BeginIssue opens a transaction holding the issuer's chain exclusively
	// until Commit or Rollback.
	BeginIssue(ctx context.Context, issuerTaxID string) (IssueTx, error)

	Find(ctx context.Context, issuerTaxID, number string) (*model.IssuedInvoice, error)

	// History returns the issuer's invoices in chain order
	History(ctx context.Context, issuerTaxID string) ([]*model.IssuedInvoice, error)
}

type IssueTx interface {
	Head(ctx context.Context) (ChainHead, error)
	Exists(ctx context.Context, number string) (bool, error)
	Save(ctx context.Context, issued *model.IssuedInvoice) error
	Commit() error
	Rollback() error
}
