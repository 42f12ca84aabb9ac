package gate

import (
	"encoding/json"
	"testing"

	"github.com/fpw-project/fpw/internal/types"
)

func TestParsePolicy_Empty(t *testing.T) {
	policy, err := ParsePolicy(nil)
	if err != nil {
		t.Fatal(err)
	}
	if policy == nil {
		t.Fatal("expected non-nil policy")
	}
}

func TestParsePolicy_SkipsUnknownKinds(t *testing.T) {
	data := json.RawMessage(`{
		"gates": {
			"process": {"mode": "auto"},
			"launch": {"mode": "auto"}
		}
	}`)
	policy, err := ParsePolicy(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(policy.Gates) != 1 {
		t.Fatalf("expected 1 gate policy, got %d", len(policy.Gates))
	}
	if policy.Gates[TransitionProcess].Mode != "auto" {
		t.Errorf("process mode = %q, want auto", policy.Gates[TransitionProcess].Mode)
	}
}

func TestParsePolicy_InvalidJSON(t *testing.T) {
	if _, err := ParsePolicy(json.RawMessage(`{"gates":`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestApplyPolicy(t *testing.T) {
	reg := NewDefaultRegistry()
	ApplyPolicy(reg, PolicyFromMap(map[string]GatePolicy{
		"process":   {Mode: "auto"},
		"reset":     {Prompt: "Wipe everything?"},
		"authorize": {Mode: "sometimes"},
	}))

	d := reg.Request(TransitionProcess, scheduledPlan(types.ProcessingUnprocessed))
	if d.Outcome != Proceed {
		t.Errorf("process outcome = %s, want proceed", d.Outcome)
	}
	if _, err := d.Confirm(); err != nil {
		t.Errorf("Confirm() on proceed = %v", err)
	}

	d = reg.Request(TransitionReset, scheduledPlan(types.ProcessingProcessed))
	if d.Prompt != "Wipe everything?" {
		t.Errorf("reset prompt = %q", d.Prompt)
	}
	if reg.Get(TransitionAuthorize).Mode != GateModeConfirm {
		t.Error("unknown mode must be ignored")
	}

	// auto still honours preconditions
	d = reg.Request(TransitionProcess, &types.FlightPlan{ID: "p9"})
	if d.Outcome != RejectedPrecondition {
		t.Errorf("auto gate without schedule = %s, want rejected", d.Outcome)
	}
}

func TestApplyPolicy_Nil(t *testing.T) {
	reg := NewDefaultRegistry()
	ApplyPolicy(reg, nil)
	if reg.Get(TransitionReset).Mode != GateModeConfirm {
		t.Error("nil policy changed registry")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	for _, k := range ValidTransitionKinds() {
		if p.Gates[k].Mode != string(GateModeConfirm) {
			t.Errorf("default mode for %s = %q", k, p.Gates[k].Mode)
		}
	}
}
