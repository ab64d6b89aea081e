package transmission

import (
	"strings"

	"github.com/rezonia/invoice-engine/internal/transmission/provider"
)

// Status is the delivery state of one transmission attempt
type Status string

const (
	StatusNotSent   Status = "NOT_SENT"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRejected  Status = "REJECTED"
	StatusFailed    Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusNotSent: {StatusSent, StatusRejected, StatusFailed},
	StatusSent:    {StatusDelivered, StatusRejected, StatusFailed},
}

// CanTransition reports whether a record may move from s to next.
// DELIVERED, REJECTED and FAILED are final for a record.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Final reports whether no further transition is possible
func (s Status) Final() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusNotSent, StatusSent, StatusDelivered, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// FromProvider maps an access point status onto the record lifecycle.
// Unknown values report false.
func FromProvider(status string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case provider.StatusPending, provider.StatusSent:
		return StatusSent, true
	case provider.StatusDelivered, provider.StatusRead:
		return StatusDelivered, true
	case provider.StatusRejected:
		return StatusRejected, true
	case provider.StatusFailed:
		return StatusFailed, true
	}
	return "", false
}
