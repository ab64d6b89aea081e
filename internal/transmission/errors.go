package transmission

import (
	"errors"
	"fmt"

	"github.com/rezonia/invoice-engine/internal/transmission/provider"
)

var (
	ErrNotFound = errors.New("transmission not found")

	// ErrConflict is returned by Create when a live record already holds the key
	ErrConflict = errors.New("live transmission already exists")

	// ErrRejected means the document was refused and must be corrected by a
	// new document, not resent.
	ErrRejected = errors.New("transmission rejected")

	// ErrUnrecorded means the provider accepted the document but the outcome
	// could not be stored. The next Transmit stores it without resending.
	ErrUnrecorded = errors.New("transmission accepted but not recorded")
)

// PeppolError is a failed exchange with an access point
type PeppolError struct {
	Provider      string
	InvoiceNumber string
	Op            string
	Status        Status
	Retryable     bool
	Err           error
}

func (e *PeppolError) Error() string {
	return fmt.Sprintf("peppol %s of %s via %s: %v", e.Op, e.InvoiceNumber, e.Provider, e.Err)
}

func (e *PeppolError) Unwrap() error {
	return e.Err
}

// ProviderError returns the underlying provider failure, if any
func (e *PeppolError) ProviderError() *provider.ProviderError {
	var pe *provider.ProviderError
	if errors.As(e.Err, &pe) {
		return pe
	}
	return nil
}
