package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/authorize"
	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/gate"
	"github.com/fpw-project/fpw/internal/planops"
	"github.com/fpw-project/fpw/internal/ui"
)

// confirmTransition asks the gate about kind on id and, when the gate wants
// it, the operator. It returns the ticket the transition needs.
func confirmTransition(ctx context.Context, a *app, kind gate.TransitionKind, id string) (gate.Ticket, error) {
	d, err := a.svc.Request(ctx, kind, id)
	if err != nil {
		return gate.Ticket{}, err
	}
	if d.Outcome == gate.NeedsConfirmation {
		title := fmt.Sprintf("%s %s", titleCase(string(kind)), id)
		if err := a.confirmer.Confirm(title, d.Prompt); err != nil {
			return gate.Ticket{}, err
		}
	}
	return d.Confirm()
}

// gatedForEach confirms and runs a gated transition on each plan in turn.
func gatedForEach(ctx context.Context, a *app, kind gate.TransitionKind, ids []string, run func(ctx context.Context, t gate.Ticket) error) []planops.BulkResult {
	return planops.ForEach(ctx, ids, func(ctx context.Context, id string) error {
		ticket, err := confirmTransition(ctx, a, kind, id)
		if err != nil {
			return err
		}
		return run(ctx, ticket)
	})
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var processCmd = &cobra.Command{
	Use:     "process <id>...",
	GroupID: GroupWorkflow,
	Short:   "Queue trajectory processing (locks the schedule)",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		results := gatedForEach(rootCtx, fpw, gate.TransitionProcess, args, func(ctx context.Context, t gate.Ticket) error {
			_, err := fpw.svc.Process(ctx, t)
			return err
		})
		reportBulk("queued", results)
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset <id>...",
	GroupID: GroupWorkflow,
	Short:   "Return plans to unprocessed, discarding documents and decisions",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		results := gatedForEach(rootCtx, fpw, gate.TransitionReset, args, func(ctx context.Context, t gate.Ticket) error {
			_, err := fpw.svc.Reset(ctx, t)
			return err
		})
		reportBulk("reset", results)
	},
}

// authorizeJSON is the --json form of a submission result.
type authorizeJSON struct {
	PlanID           string            `json:"plan_id"`
	Outcome          string            `json:"outcome"`
	Message          string            `json:"message,omitempty"`
	MissingFields    []string          `json:"missing_fields,omitempty"`
	FieldErrors      map[string]string `json:"field_errors,omitempty"`
	StatusCode       int               `json:"status_code,omitempty"`
	VolumesGenerated int               `json:"volumes_generated,omitempty"`
	Retryable        bool              `json:"retryable"`
	Error            string            `json:"error,omitempty"`
}

func toAuthorizeJSON(r authorize.Result) authorizeJSON {
	out := authorizeJSON{
		PlanID:           r.PlanID,
		Outcome:          r.Outcome.String(),
		Message:          r.Message,
		MissingFields:    r.MissingFields,
		FieldErrors:      r.FieldErrors,
		StatusCode:       r.StatusCode,
		VolumesGenerated: r.VolumesGenerated,
		Retryable:        r.Retry != nil,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// submitPlan confirms and submits id once. A retryable failure is reported,
// not retried; the operator runs the command again.
func submitPlan(ctx context.Context, a *app, id string, opts authorize.Options) authorize.Result {
	ticket, err := confirmTransition(ctx, a, gate.TransitionAuthorize, id)
	if err != nil {
		return authorize.Result{Outcome: authorize.PreconditionFailed, PlanID: id, Message: err.Error(), Err: err}
	}
	return a.svc.Authorize(ctx, ticket, opts)
}

func formatAuthorizeResult(r authorize.Result) string {
	var b strings.Builder
	if r.OK() {
		fmt.Fprintf(&b, "%s %s submitted to FAS, awaiting decision", ui.RenderPass(ui.IconPass), r.PlanID)
		if r.VolumesGenerated > 0 {
			fmt.Fprintf(&b, " (%d volumes generated)", r.VolumesGenerated)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%s %s: %s", ui.RenderFail(ui.IconFail), r.PlanID, r.Outcome)
	if r.Message != "" {
		fmt.Fprintf(&b, ": %s", r.Message)
	}
	for _, f := range r.MissingFields {
		fmt.Fprintf(&b, "\n    missing %s", f)
	}
	for path, msg := range r.FieldErrors {
		fmt.Fprintf(&b, "\n    %s: %s", path, msg)
	}
	if r.Retry != nil {
		b.WriteString("\n    " + ui.RenderMuted("retryable: run the command again later"))
	}
	return b.String()
}

var authorizeCmd = &cobra.Command{
	Use:     "authorize <id>...",
	GroupID: GroupWorkflow,
	Short:   "Submit processed plans to the Flight Authorization Service",
	Long: `Submit plans to FAS. Operation volumes are generated first when the
U-Plan has none, then the document is checked for completeness and posted.
An accepted plan becomes pending; approval or denial arrives later through
the callback server and shows up on the next refresh.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		randomize := config.GetBool("randomize")
		if cmd.Flags().Changed("randomize") {
			randomize, _ = cmd.Flags().GetBool("randomize")
		}
		opts := authorize.Options{Randomize: randomize}

		var out []authorizeJSON
		failed := false
		for _, id := range args {
			if rootCtx.Err() != nil {
				break
			}
			res := submitPlan(rootCtx, fpw, id, opts)
			failed = failed || !res.OK()
			if jsonOutput {
				out = append(out, toAuthorizeJSON(res))
				continue
			}
			fmt.Println(formatAuthorizeResult(res))
		}
		if jsonOutput {
			outputJSON(out)
		}
		if failed {
			FatalError("%s", "one or more submissions failed")
		}
	},
}

func init() {
	authorizeCmd.Flags().Bool("randomize", false, "Fill placeholder fields with test data and skip completeness checks (test mode)")

	rootCmd.AddCommand(processCmd, resetCmd, authorizeCmd)
}
