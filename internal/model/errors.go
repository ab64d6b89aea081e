package model

import (
	"fmt"
	"strings"
)

// Validation rules
const (
	RuleRequired         = "required"
	RuleTaxCode          = "tax_code"
	RuleTRNFormat        = "trn_format"
	RuleCurrency         = "currency"
	RuleConvertedTotal   = "converted_total"
	RuleCreditNoteReason = "credit_note_reason"
	RulePrecedingInvoice = "preceding_invoice"
	RuleTotals           = "totals"
	RuleSequence         = "sequence"
	RuleInvoiceType      = "invoice_type"
	RuleDuplicate        = "duplicate"
	RuleRoutingID        = "routing_id"
	RuleNonNegative      = "non_negative"
	RulePrepaid          = "prepaid_amount"
	RuleDueDate          = "due_date"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule"`
	Message string      `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// ValidationErrors is a collected list of validation failures
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Add appends a new validation error
func (v *ValidationErrors) Add(field string, value interface{}, rule, message string) {
	*v = append(*v, NewValidationError(field, value, rule, message))
}

// Has reports whether a failure for field and rule was collected.
// An empty field matches any field.
func (v ValidationErrors) Has(field, rule string) bool {
	for _, e := range v {
		if (field == "" || e.Field == field) && e.Rule == rule {
			return true
		}
	}
	return false
}

// Err returns nil when no failures were collected
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ParseError represents failures reading an invoice or document
type ParseError struct {
	Source  string
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Source, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Source, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(source, field, message string, cause error) *ParseError {
	return &ParseError{
		Source:  source,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// XMLGenerationError is an internal failure rendering a document that passed validation
type XMLGenerationError struct {
	Element string
	Message string
	Cause   error
}

func (e *XMLGenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("xml generation failed [%s]: %s (%v)", e.Element, e.Message, e.Cause)
	}
	return fmt.Sprintf("xml generation failed [%s]: %s", e.Element, e.Message)
}

func (e *XMLGenerationError) Unwrap() error {
	return e.Cause
}

// NewXMLGenerationError creates a new generation error
func NewXMLGenerationError(element, message string, cause error) *XMLGenerationError {
	return &XMLGenerationError{
		Element: element,
		Message: message,
		Cause:   cause,
	}
}
