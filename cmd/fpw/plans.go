package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/planops"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/timeparsing"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/ui"
	"github.com/fpw-project/fpw/internal/workflow"
)

// planRow is the --json form of a listed plan.
type planRow struct {
	*types.FlightPlan
	Step types.WorkflowStep `json:"step"`
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: GroupPlans,
	Short:   "List flight plans",
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := planFilterFromFlags(cmd)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		plans, err := fpw.svc.ListPlans(rootCtx, filter)
		if err != nil {
			FatalErrorRespectJSON("listing plans: %v", err)
		}
		if jsonOutput {
			rows := make([]planRow, 0, len(plans))
			for _, p := range plans {
				rows = append(rows, planRow{FlightPlan: p, Step: workflow.DeriveStep(p)})
			}
			outputJSON(rows)
			return
		}
		if len(plans) == 0 {
			fmt.Println(ui.RenderMuted("No plans."))
			return
		}
		writePlanTable(os.Stdout, plans, time.Local)
	},
}

func planFilterFromFlags(cmd *cobra.Command) (types.PlanFilter, error) {
	var filter types.PlanFilter
	folder, _ := cmd.Flags().GetString("folder")
	status, _ := cmd.Flags().GetString("status")
	auth, _ := cmd.Flags().GetString("auth")
	filter.NameContains, _ = cmd.Flags().GetString("name")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	if folder != "" {
		filter.FolderID = &folder
	}
	if status != "" {
		ps := types.ProcessingStatus(strings.ToLower(status))
		if !ps.IsValid() {
			return filter, fmt.Errorf("invalid --status %q", status)
		}
		filter.ProcessingStatus = &ps
	}
	if auth != "" {
		as := types.AuthorizationStatus(strings.ToLower(auth))
		if !as.IsValid() {
			return filter, fmt.Errorf("invalid --auth %q", auth)
		}
		filter.AuthorizationStatus = &as
	}
	return filter, nil
}

// writePlanTable renders plans as an aligned table, schedules shown in loc.
func writePlanTable(out io.Writer, plans []*types.FlightPlan, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTEP\tPROCESSING\tAUTHORIZATION\tSCHEDULED")
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, workflow.DeriveStep(p), p.ProcessingStatus, p.AuthorizationStatus, formatSchedule(p.ScheduledAt, loc))
	}
	_ = w.Flush()
}

func formatSchedule(at *time.Time, loc *time.Location) string {
	if at == nil {
		return "-"
	}
	return at.In(loc).Format("2006-01-02 15:04 MST")
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: GroupPlans,
	Short:   "Show a plan, its workflow progress and history",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plan, state, err := fpw.svc.State(rootCtx, args[0])
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		events, err := fpw.store.GetEvents(rootCtx, plan.ID, 20)
		if err != nil {
			WarnError("loading history: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"plan": plan,
				"workflow": map[string]interface{}{
					"step":            state.Step,
					"completed":       state.Completed.Slice(),
					"schedule_locked": state.ScheduleLocked,
				},
				"events": events,
			})
			return
		}
		printPlan(os.Stdout, plan, state, events)
	},
}

func printPlan(w io.Writer, p *types.FlightPlan, state workflow.State, events []*types.Event) {
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(p.Name), ui.RenderMuted("("+p.ID+")"))
	fmt.Fprintln(w, ui.RenderSteps(state.Step, state.Completed.Has))
	fmt.Fprintln(w, ui.RenderSeparator())
	fmt.Fprintf(w, "Processing:     %s\n", ui.RenderProcessing(p.ProcessingStatus))
	fmt.Fprintf(w, "Authorization:  %s\n", ui.RenderAuthorization(p.AuthorizationStatus))
	sched := formatSchedule(p.ScheduledAt, time.Local)
	if p.ScheduledAt != nil {
		sched += ui.RenderMuted(" (" + p.ScheduledAt.UTC().Format(time.RFC3339) + ")")
	}
	if state.ScheduleLocked {
		sched += " " + ui.RenderMuted("[locked]")
	}
	fmt.Fprintf(w, "Scheduled:      %s\n", sched)
	fmt.Fprintf(w, "Airspace:       %s\n", valueOr(p.AirspaceContext, "-"))
	fmt.Fprintf(w, "Folder:         %s\n", valueOr(p.FolderID, "-"))
	fmt.Fprintf(w, "Trajectory:     %s\n", valueOr(p.TrajectoryRef, "-"))
	if doc := p.AuthorizationDocument; doc != nil {
		fmt.Fprintf(w, "Volumes:        %d\n", len(doc.OperationVolumes))
	}
	if len(p.AuthorizationMessage) > 0 {
		fmt.Fprintf(w, "FAS message:    %s\n", string(p.AuthorizationMessage))
	}

	if len(events) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderHeader("history"))
		for _, e := range events {
			line := fmt.Sprintf("  %s  %s", e.CreatedAt.In(time.Local).Format("2006-01-02 15:04:05"), e.EventType)
			if e.NewValue != nil {
				line += " " + ui.RenderMuted(valueOr(e.OldValue, "∅")+" → "+*e.NewValue)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

var uploadCmd = &cobra.Command{
	Use:     "upload <trajectory.csv>",
	GroupID: GroupPlans,
	Short:   "Create a plan from a trajectory file",
	Long: `Copy a trajectory CSV into the trajectory directory (volumes.trajectory-dir)
and create an unprocessed plan for it. The plan is named after the file
unless --name is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		folder, _ := cmd.Flags().GetString("folder")
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		ref, err := copyTrajectory(args[0], config.GetString("volumes.trajectory-dir"))
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		plan, err := fpw.svc.Upload(rootCtx, name, ref, folder)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(plan)
			return
		}
		fmt.Printf("%s Uploaded %s as %s\n", ui.RenderPass(ui.IconPass), plan.Name, plan.ID)
	},
}

// copyTrajectory copies src into dir and returns its name there. An
// identical file already in place is reused.
func copyTrajectory(src, dir string) (string, error) {
	data, err := os.ReadFile(src) // #nosec G304 - operator-supplied path
	if err != nil {
		return "", fmt.Errorf("reading trajectory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating trajectory dir: %w", err)
	}
	ref := filepath.Base(src)
	dst := filepath.Join(dir, ref)
	if existing, err := os.ReadFile(dst); err == nil { // #nosec G304 - path built from config
		if string(existing) == string(data) {
			return ref, nil
		}
		return "", fmt.Errorf("trajectory %s already exists in %s with different content", ref, dir)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("writing trajectory: %w", err)
	}
	return ref, nil
}

var scheduleCmd = &cobra.Command{
	Use:     "schedule <id> <when>",
	GroupID: GroupPlans,
	Short:   "Set the scheduled flight time",
	Long: `Set when the plan flies. <when> may be RFC3339, "2006-01-02 15:04" in local
time, a compact offset (+6h, +2d, 90m) or natural language ("tomorrow 9am").
The time is stored in UTC. A plan's schedule is locked once processing starts.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		at, err := timeparsing.ParseSchedule(strings.Join(args[1:], " "), time.Now())
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		plan, err := fpw.svc.Schedule(rootCtx, args[0], at)
		if errors.Is(err, storage.ErrScheduleLocked) {
			FatalErrorWithHint(err.Error(), fmt.Sprintf("Run 'fpw reset %s' to return it to unprocessed", args[0]))
		}
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(plan)
			return
		}
		fmt.Printf("%s Scheduled %s for %s\n", ui.RenderPass(ui.IconPass), plan.ID, formatSchedule(plan.ScheduledAt, time.Local))
	},
}

var renameCmd = &cobra.Command{
	Use:     "rename <id> <name>",
	GroupID: GroupPlans,
	Short:   "Rename a plan",
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		plan, err := fpw.svc.Rename(rootCtx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(plan)
			return
		}
		fmt.Printf("%s Renamed %s to %q\n", ui.RenderPass(ui.IconPass), plan.ID, plan.Name)
	},
}

var moveCmd = &cobra.Command{
	Use:     "move <id> [folder-id]",
	GroupID: GroupPlans,
	Short:   "Move a plan into a folder, or out of folders when none is given",
	Args:    cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		folder := ""
		if len(args) == 2 {
			folder = args[1]
		}
		plan, err := fpw.svc.Move(rootCtx, args[0], folder)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(plan)
			return
		}
		fmt.Printf("%s Moved %s to %s\n", ui.RenderPass(ui.IconPass), plan.ID, valueOr(plan.FolderID, "top level"))
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	GroupID: GroupPlans,
	Short:   "Delete plans and their history",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt := fmt.Sprintf("Delete %d plan(s)? This cannot be undone.", len(args))
		if err := fpw.confirmer.Confirm("Delete plans", prompt); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		reportBulk("deleted", planops.ForEach(rootCtx, args, fpw.svc.Delete))
	},
}

var downloadCmd = &cobra.Command{
	Use:     "download <id>",
	GroupID: GroupPlans,
	Short:   "Download a plan bundle (plan, U-Plan and trajectory) as .tar.zst",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = args[0] + planops.BundleExt
		}
		if out == "-" {
			if err := fpw.svc.Download(rootCtx, args[0], os.Stdout); err != nil {
				FatalError("%v", err)
			}
			return
		}
		if err := downloadToFile(rootCtx, args[0], out); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"plan_id": args[0], "path": out})
			return
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass(ui.IconPass), out)
	},
}

func downloadToFile(ctx context.Context, id, path string) error {
	f, err := os.Create(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return err
	}
	if err := fpw.svc.Download(ctx, id, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().String("folder", "", "Only plans in this folder")
	cmd.Flags().String("status", "", "Only plans with this processing status")
	cmd.Flags().String("auth", "", "Only plans with this authorization status")
	cmd.Flags().String("name", "", "Only plans whose name contains this text")
	cmd.Flags().Int("limit", 0, "Maximum number of plans (0 for all)")
}

func init() {
	addListFlags(listCmd)

	uploadCmd.Flags().String("name", "", "Plan name (default: file name)")
	uploadCmd.Flags().String("folder", "", "Folder for the new plan")

	downloadCmd.Flags().StringP("output", "o", "", "Output path, or - for stdout (default: <id>.tar.zst)")

	rootCmd.AddCommand(listCmd, showCmd, uploadCmd, scheduleCmd, renameCmd, moveCmd, deleteCmd, downloadCmd)
}
