package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/ui"
)

var configCmd = &cobra.Command{
	Use:         "config",
	GroupID:     GroupSetup,
	Short:       "Inspect configuration",
	Annotations: map[string]string{annotationNoStore: "true"},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings, secrets masked",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.Redacted()
		if jsonOutput {
			out := make(map[string]string, len(settings))
			for _, s := range settings {
				out[s.Key] = s.Value
			}
			outputJSON(map[string]interface{}{
				"file":     config.ConfigFileUsed(),
				"settings": out,
			})
			return
		}
		file := config.ConfigFileUsed()
		if file == "" {
			file = ui.RenderMuted("(none, defaults and environment only)")
		}
		fmt.Printf("Config file: %s\n\n", file)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, s := range settings {
			fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value)
		}
		_ = w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: GroupSetup,
	Short:   "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Printf("fpw version %s (%s)\n", Version, Build)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}
