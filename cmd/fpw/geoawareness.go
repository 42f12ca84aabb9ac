package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/geoawareness"
	"github.com/fpw-project/fpw/internal/ui"
)

var geoawarenessCmd = &cobra.Command{
	Use:     "geoawareness <id>",
	GroupID: GroupWorkflow,
	Short:   "Check a processed plan against an airspace and open the live view",
	Long: `Run the geoawareness check for a processed plan. The plan's stored airspace
is used unless --airspace picks one, which is then saved on the plan. Without
either, the known airspaces are listed, those containing the takeoff point
marked as suggested.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if fpw.geo == nil {
			FatalErrorWithHint("geoawareness is not configured", "Set geoawareness.url in .fpw/config.yaml or FPW_GEOAWARENESS_URL")
		}
		airspace, _ := cmd.Flags().GetString("airspace")

		var res geoawareness.Result
		if airspace != "" {
			res = fpw.geo.CheckWithContext(rootCtx, args[0], airspace)
		} else {
			res = fpw.geo.Check(rootCtx, args[0])
		}

		if jsonOutput {
			outputJSON(geoResultJSON(args[0], res))
		} else {
			printGeoResult(os.Stdout, args[0], res)
		}
		if res.Outcome != geoawareness.Opened && res.Outcome != geoawareness.NeedsAirspaceSelection {
			os.Exit(1)
		}
	},
}

func geoResultJSON(id string, res geoawareness.Result) map[string]interface{} {
	out := map[string]interface{}{
		"plan_id": id,
		"outcome": res.Outcome.String(),
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if res.View != nil {
		out["airspace"] = res.View.AirspaceContext
		out["channel"] = res.View.ChannelRef
	}
	if res.Outcome == geoawareness.NeedsAirspaceSelection {
		out["airspaces"] = res.Airspaces
		out["suggested"] = res.Suggested
	}
	return out
}

func printGeoResult(w io.Writer, id string, res geoawareness.Result) {
	switch res.Outcome {
	case geoawareness.Opened:
		fmt.Fprintf(w, "%s Live view for %s in %s\n", ui.RenderPass(ui.IconPass), id, res.View.AirspaceContext)
		if res.View.ChannelRef != "" {
			fmt.Fprintf(w, "  channel: %s\n", res.View.ChannelRef)
		}
	case geoawareness.NeedsAirspaceSelection:
		fmt.Fprintf(w, "%s %s has no airspace selected. Pick one with --airspace:\n", ui.RenderWarn(ui.IconWarn), id)
		suggested := make(map[string]bool, len(res.Suggested))
		for _, a := range res.Suggested {
			suggested[a.ID] = true
		}
		for _, a := range res.Airspaces {
			line := fmt.Sprintf("  %s  %s", a.ID, a.Name)
			if suggested[a.ID] {
				line += " " + ui.RenderAccent("(suggested)")
			}
			fmt.Fprintln(w, line)
		}
		if len(res.Airspaces) == 0 {
			fmt.Fprintln(w, ui.RenderMuted("  no airspace catalog configured (airspace.catalog)"))
		}
	default:
		fmt.Fprintf(w, "%s %s: %s: %s\n", ui.RenderFail(ui.IconFail), id, res.Outcome, res.Reason)
	}
}

func init() {
	geoawarenessCmd.Flags().String("airspace", "", "Airspace to check against (saved on the plan)")
	rootCmd.AddCommand(geoawarenessCmd)
}
