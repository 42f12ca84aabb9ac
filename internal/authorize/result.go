package authorize

import (
	"context"
	"fmt"

	"github.com/fpw-project/fpw/internal/types"
)

// Outcome classifies a submission attempt.
type Outcome int

const (
	Submitted Outcome = iota
	PreconditionFailed
	AlreadyInFlight
	VolumeGenerationFailed
	ValidationFailed
	TransientUnavailable
	SubmissionFailed
	NetworkOrUnknown
)

var outcomeNames = map[Outcome]string{
	Submitted:              "submitted",
	PreconditionFailed:     "precondition-failed",
	AlreadyInFlight:        "already-in-flight",
	VolumeGenerationFailed: "volume-generation-failed",
	ValidationFailed:       "validation-failed",
	TransientUnavailable:   "transient-unavailable",
	SubmissionFailed:       "submission-failed",
	NetworkOrUnknown:       "network-or-unknown",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Retryable reports whether the operator may simply try again. Validation
// and precondition failures need the plan fixed first.
func (o Outcome) Retryable() bool {
	switch o {
	case VolumeGenerationFailed, TransientUnavailable, SubmissionFailed, NetworkOrUnknown:
		return true
	}
	return false
}

// Result is what Submit returns on every path.
type Result struct {
	Outcome Outcome
	PlanID  string
	Message string

	// ValidationFailed
	MissingFields []string
	FieldErrors   map[string]string

	StatusCode       int // FAS HTTP status, when one was received
	VolumesGenerated int // volumes created by this attempt
	Plan             *types.FlightPlan
	Err              error

	// Retry re-runs the same submission. Set only for retryable outcomes.
	Retry func(ctx context.Context) Result
}

// OK reports whether the plan was accepted by FAS.
func (r Result) OK() bool {
	return r.Outcome == Submitted
}
