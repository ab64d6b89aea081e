package signature

import (
	"fmt"
	"time"
)

// Error codes for signing and verification
const (
	ErrCodeNoSignature       = "NO_SIGNATURE"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeHashMismatch      = "HASH_MISMATCH"
	ErrCodeCertInvalid       = "CERT_INVALID"
	ErrCodeCertExpired       = "CERT_EXPIRED"
	ErrCodeCertNotYetValid   = "CERT_NOT_YET_VALID"
	ErrCodeCertRevoked       = "CERT_REVOKED"
	ErrCodeChainInvalid      = "CHAIN_INVALID"
	ErrCodeOCSPUnavailable   = "OCSP_UNAVAILABLE"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
)

// SignatureError reports why a signed document failed verification
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrNoSignature returns error when no signature found in document
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrInvalidSignature returns error when signature validation fails
func ErrInvalidSignature(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidSignature, "signature", "signature validation failed", cause)
}

// ErrUnsupportedFormat returns error for unsupported input formats
func ErrUnsupportedFormat(format string) *SignatureError {
	return NewSignatureError(ErrCodeUnsupportedFormat, "", fmt.Sprintf("unsupported format: %s", format), nil)
}

// SigningError is a fatal failure to load a key or produce a signature
type SigningError struct {
	Op      string
	Message string
	Cause   error
}

func (e *SigningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signing %s: %s (%v)", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("signing %s: %s", e.Op, e.Message)
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// NewSigningError creates a new signing error
func NewSigningError(op, message string, cause error) *SigningError {
	return &SigningError{Op: op, Message: message, Cause: cause}
}

// CertificateError reports an unusable signing certificate
type CertificateError struct {
	Code            string
	Subject         string
	Message         string
	DaysUntilExpiry int
	Cause           error
}

func (e *CertificateError) Error() string {
	msg := fmt.Sprintf("[%s] certificate", e.Code)
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *CertificateError) Unwrap() error {
	return e.Cause
}

// ErrCertInvalid returns error when the certificate cannot be parsed
func ErrCertInvalid(cause error) *CertificateError {
	return &CertificateError{Code: ErrCodeCertInvalid, Message: "invalid certificate", Cause: cause}
}

// ErrCertExpired returns error when certificate has expired
func ErrCertExpired(subject string, notAfter time.Time, days int) *CertificateError {
	return &CertificateError{
		Code:            ErrCodeCertExpired,
		Subject:         subject,
		Message:         "expired on " + notAfter.UTC().Format(time.RFC3339),
		DaysUntilExpiry: days,
	}
}

// ErrCertNotYetValid returns error when certificate is not yet valid
func ErrCertNotYetValid(subject string, notBefore time.Time, days int) *CertificateError {
	return &CertificateError{
		Code:            ErrCodeCertNotYetValid,
		Subject:         subject,
		Message:         "not valid before " + notBefore.UTC().Format(time.RFC3339),
		DaysUntilExpiry: days,
	}
}

// ErrCertRevoked returns error when certificate has been revoked
func ErrCertRevoked(subject string) *CertificateError {
	return &CertificateError{Code: ErrCodeCertRevoked, Subject: subject, Message: "revoked by issuer"}
}

// ErrChainInvalid returns error when certificate chain is invalid
func ErrChainInvalid(subject string, cause error) *CertificateError {
	return &CertificateError{Code: ErrCodeChainInvalid, Subject: subject, Message: "chain validation failed", Cause: cause}
}

// ErrOCSPUnavailable returns error when the revocation status cannot be determined
func ErrOCSPUnavailable(subject string, cause error) *CertificateError {
	return &CertificateError{Code: ErrCodeOCSPUnavailable, Subject: subject, Message: "revocation status unavailable", Cause: cause}
}

// ConfigurationError is raised when the deployment settings forbid starting
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Setting, e.Message)
}

// ChainError identifies the first link that breaks an issuer's hash chain
type ChainError struct {
	Index         int    `json:"index"`
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason"`
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain broken at index %d (invoice %s): %s", e.Index, e.InvoiceNumber, e.Reason)
}
