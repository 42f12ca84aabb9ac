package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fpw-project/fpw/internal/gate"
)

// secretKeys are masked by Redacted.
var secretKeys = map[string]bool{
	"store.password":     true,
	"fas.token":          true,
	"geoawareness.token": true,
	"volumes.token":      true,
	"callback.secret":    true,
}

// StoreMode returns store.mode, validated.
func StoreMode() (string, error) {
	mode := strings.ToLower(GetString("store.mode"))
	switch mode {
	case StoreMemory, StoreDoltEmbedded, StoreDoltServer:
		return mode, nil
	}
	return "", fmt.Errorf("invalid store.mode %q (valid: %s, %s, %s)", mode, StoreMemory, StoreDoltEmbedded, StoreDoltServer)
}

// GatePolicy returns the gates section as a gate.Policy. Kinds that are not
// gated transitions are ignored.
func GatePolicy() (*gate.Policy, error) {
	var gates map[string]gate.GatePolicy
	if err := UnmarshalKey("gates", &gates); err != nil {
		return nil, fmt.Errorf("decoding gates: %w", err)
	}
	return gate.PolicyFromMap(gates), nil
}

// Setting is one effective key/value pair.
type Setting struct {
	Key   string
	Value string
}

// Redacted returns every effective setting, sorted by key, with secrets
// masked.
func Redacted() []Setting {
	var out []Setting
	flatten("", AllSettings(), &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func flatten(prefix string, m map[string]any, out *[]Setting) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		s := fmt.Sprint(val)
		if secretKeys[key] && s != "" {
			s = "********"
		}
		*out = append(*out, Setting{Key: key, Value: s})
	}
}
