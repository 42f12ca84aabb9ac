package gate

import (
	"encoding/json"
	"fmt"
)

// Policy overrides built-in gate settings. Structure matches the "gates"
// config section:
//
//	gates:
//	  process:
//	    mode: auto
//	  reset:
//	    prompt: "Wipe everything?"
type Policy struct {
	Gates map[TransitionKind]GatePolicy `json:"gates"`
}

// GatePolicy configures a single gate.
type GatePolicy struct {
	Mode   string `json:"mode,omitempty" mapstructure:"mode"`     // "confirm" or "auto"
	Prompt string `json:"prompt,omitempty" mapstructure:"prompt"` // replaces the built-in prompt
}

// ParsePolicy parses a gate policy from raw JSON.
func ParsePolicy(data json.RawMessage) (*Policy, error) {
	if len(data) == 0 {
		return &Policy{}, nil
	}

	var raw struct {
		Gates map[string]GatePolicy `json:"gates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing gate policy: %w", err)
	}
	return PolicyFromMap(raw.Gates), nil
}

// PolicyFromMap builds a policy from per-kind settings keyed by name, as
// decoded from config. Unknown kinds are skipped for forward compatibility.
func PolicyFromMap(gates map[string]GatePolicy) *Policy {
	policy := &Policy{Gates: make(map[TransitionKind]GatePolicy)}
	for name, gp := range gates {
		kind, err := ParseTransitionKind(name)
		if err != nil {
			continue
		}
		policy.Gates[kind] = gp
	}
	return policy
}

// ApplyPolicy applies a policy to a registry. Gates referenced in the policy
// but not registered are ignored, and so are unknown modes.
func ApplyPolicy(reg *Registry, policy *Policy) {
	if policy == nil {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for kind, gp := range policy.Gates {
		g := reg.gates[kind]
		if g == nil {
			continue
		}
		switch GateMode(gp.Mode) {
		case GateModeConfirm, GateModeAuto:
			g.Mode = GateMode(gp.Mode)
		}
		if gp.Prompt != "" {
			g.Prompt = gp.Prompt
		}
	}
}

// DefaultPolicy returns the default gate policy (matches built-in defaults).
func DefaultPolicy() *Policy {
	return &Policy{
		Gates: map[TransitionKind]GatePolicy{
			TransitionProcess:   {Mode: string(GateModeConfirm)},
			TransitionAuthorize: {Mode: string(GateModeConfirm)},
			TransitionReset:     {Mode: string(GateModeConfirm)},
		},
	}
}
