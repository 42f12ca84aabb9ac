package gate

import (
	"errors"
	"fmt"

	"github.com/fpw-project/fpw/internal/types"
)

// Built-in confirmation prompts.
const (
	PromptProcess   = "Processing locks the scheduled date and the flight plan. They cannot be changed afterwards without a full reset. Continue?"
	PromptAuthorize = "The authorization request is final. Send it only once the U-Plan data has been verified. Continue?"
	PromptReset     = "Resetting deletes the generated trajectory, the authorization state and all associated data. This cannot be undone. Continue?"
)

// RegisterBuiltinGates registers the process, authorize and reset gates.
func RegisterBuiltinGates(reg *Registry) {
	_ = reg.Register(ProcessGate())
	_ = reg.Register(AuthorizeGate())
	_ = reg.Register(ResetGate())
}

// ProcessGate requires a schedule. Confirming locks the schedule.
func ProcessGate() *Gate {
	return &Gate{
		Kind:         TransitionProcess,
		Description:  "queue trajectory processing",
		Prompt:       PromptProcess,
		Mode:         GateModeConfirm,
		Precondition: requireSchedule,
	}
}

// AuthorizeGate requires a processed plan.
func AuthorizeGate() *Gate {
	return &Gate{
		Kind:         TransitionAuthorize,
		Description:  "submit authorization request to FAS",
		Prompt:       PromptAuthorize,
		Mode:         GateModeConfirm,
		Precondition: requireProcessed,
	}
}

// ResetGate has no precondition beyond the plan existing.
func ResetGate() *Gate {
	return &Gate{
		Kind:        TransitionReset,
		Description: "return plan to unprocessed",
		Prompt:      PromptReset,
		Mode:        GateModeConfirm,
	}
}

func requireSchedule(p *types.FlightPlan) error {
	if p.ScheduledAt == nil {
		return errors.New("missing schedule")
	}
	return nil
}

func requireProcessed(p *types.FlightPlan) error {
	if p.ProcessingStatus != types.ProcessingProcessed {
		return fmt.Errorf("plan is not processed (status %s)", p.ProcessingStatus)
	}
	return nil
}
