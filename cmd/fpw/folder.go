package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/ui"
)

var folderCmd = &cobra.Command{
	Use:     "folder",
	GroupID: GroupPlans,
	Short:   "Manage plan folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := fpw.svc.CreateFolder(rootCtx, strings.Join(args, " "))
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(f)
			return
		}
		fmt.Printf("%s Created folder %s (%s)\n", ui.RenderPass(ui.IconPass), f.Name, f.ID)
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		folders, err := fpw.svc.ListFolders(rootCtx)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(folders)
			return
		}
		if len(folders) == 0 {
			fmt.Println(ui.RenderMuted("No folders."))
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED")
		for _, f := range folders {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Name, f.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		_ = w.Flush()
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a folder",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := strings.Join(args[1:], " ")
		if err := fpw.svc.RenameFolder(rootCtx, args[0], name); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"id": args[0], "name": name})
			return
		}
		fmt.Printf("%s Renamed folder %s to %q\n", ui.RenderPass(ui.IconPass), args[0], name)
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder and every plan in it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt := fmt.Sprintf("Delete folder %s and all of its plans? This cannot be undone.", args[0])
		if err := fpw.confirmer.Confirm("Delete folder", prompt); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		n, err := fpw.svc.DeleteFolder(rootCtx, args[0])
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"id": args[0], "plans_deleted": n})
			return
		}
		fmt.Printf("%s Deleted folder %s (%d plans)\n", ui.RenderPass(ui.IconPass), args[0], n)
	},
}

func init() {
	folderCmd.AddCommand(folderCreateCmd, folderListCmd, folderRenameCmd, folderDeleteCmd)
	rootCmd.AddCommand(folderCmd)
}
