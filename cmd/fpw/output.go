package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fpw-project/fpw/internal/planops"
	"github.com/fpw-project/fpw/internal/ui"
)

// outputJSON outputs data as pretty-printed JSON to stdout.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError outputs an error as JSON to stderr and exits with code 1.
func outputJSONError(err error, code string) {
	errObj := map[string]string{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj) // Best effort: if JSON encoding fails, error is already printed to stderr
	os.Exit(1)
}

// FatalError writes an error message to stderr and exits with code 1.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorRespectJSON is FatalError, but emits a JSON error object when
// --json is set.
func FatalErrorRespectJSON(format string, args ...interface{}) {
	if jsonOutput {
		outputJSONError(fmt.Errorf(format, args...), "")
	}
	FatalError(format, args...)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// bulkJSON is the --json form of one per-plan result.
type bulkJSON struct {
	PlanID string `json:"plan_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// reportBulk prints one line per plan and exits non-zero if any failed.
func reportBulk(verb string, results []planops.BulkResult) {
	if jsonOutput {
		out := make([]bulkJSON, 0, len(results))
		for _, r := range results {
			item := bulkJSON{PlanID: r.PlanID, OK: r.Err == nil}
			if r.Err != nil {
				item.Error = r.Err.Error()
			}
			out = append(out, item)
		}
		outputJSON(out)
	} else {
		for _, r := range results {
			fmt.Println(formatBulkLine(verb, r))
		}
	}
	if err := planops.Errors(results); err != nil {
		os.Exit(1)
	}
}

func formatBulkLine(verb string, r planops.BulkResult) string {
	switch {
	case r.Err == nil:
		return fmt.Sprintf("%s %s %s", ui.RenderPass(ui.IconPass), verb, r.PlanID)
	case errors.Is(r.Err, ui.ErrDeclined):
		return fmt.Sprintf("%s %s skipped (cancelled)", ui.RenderMuted(ui.IconPending), r.PlanID)
	default:
		return fmt.Sprintf("%s %s: %v", ui.RenderFail(ui.IconFail), r.PlanID, r.Err)
	}
}
