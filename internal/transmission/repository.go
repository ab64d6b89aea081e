package transmission

import "context"

// Repository persists transmission records. At most one record per
// idempotency key may be outside FAILED.
type Repository interface {
	// Latest returns the most recent attempt for the key or ErrNotFound
	Latest(ctx context.Context, key string) (*Record, error)

	// Create stores a new attempt. ErrConflict if a live record holds the key.
	Create(ctx context.Context, r *Record) error

	// Update persists a status change of an existing record
	Update(ctx context.Context, r *Record) error

	// FindByMessage looks a record up by the provider's message id
	FindByMessage(ctx context.Context, providerName, messageID string) (*Record, error)

	// ListByInvoice returns every attempt for an invoice, oldest first
	ListByInvoice(ctx context.Context, issuerTaxID, number string) ([]*Record, error)
}
