package commit

import (
	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/store"
)

// Status is the terminal state of one driver's write within a commit.
type Status string

const (
	// StatusOK means the driver accepted a new write.
	StatusOK Status = "ok"
	// StatusDeduplicated means the driver matched an existing identical
	// record; the redelivery was a no-op.
	StatusDeduplicated Status = "deduplicated"
	// StatusFailed means the driver rejected the write after any retries.
	StatusFailed Status = "failed"
	// StatusTimeout means the driver had not responded when the caller's
	// deadline expired; the in-flight call was abandoned.
	StatusTimeout Status = "timeout"
)

// DriverOutcome is one driver's result within a commit receipt.
type DriverOutcome struct {
	Backend  string          `json:"backend"`
	Role     store.Role      `json:"role"`
	Status   Status          `json:"status"`
	Attempts int             `json:"attempts"`
	ErrKind  store.ErrorKind `json:"error_kind,omitempty"`
	Err      error           `json:"-"`
}

func (o DriverOutcome) succeeded() bool {
	return o.Status == StatusOK || o.Status == StatusDeduplicated
}

// Receipt reports the per-driver outcome of one commit so callers and
// telemetry can distinguish full success from degraded durability.
type Receipt struct {
	EventID  string          `json:"event_id"`
	Kind     domain.Kind     `json:"kind"`
	Outcomes []DriverOutcome `json:"outcomes"`
}

// Succeeded reports whether at least one driver of the given role
// accepted the write.
func (r *Receipt) Succeeded(role store.Role) bool {
	for _, o := range r.Outcomes {
		if o.Role == role && o.succeeded() {
			return true
		}
	}
	return false
}

// Degraded reports whether any driver failed even though the commit as a
// whole succeeded. Operators use it to detect drift between redundant
// backends.
func (r *Receipt) Degraded() bool {
	for _, o := range r.Outcomes {
		if !o.succeeded() {
			return true
		}
	}
	return false
}
