package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/fas"
	"github.com/fpw-project/fpw/internal/inbox"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/ui"
)

var callbackCmd = &cobra.Command{
	Use:     "callback",
	GroupID: GroupServices,
	Short:   "FAS decision callback",
}

var callbackServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive FAS approve/deny decisions over HTTP",
	Long: `Serve POST /api/fas/plans/{id}/decision. Each request must carry the
token issued with the submission, signed with callback.secret. Only pending
plans accept a decision.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		secret := config.GetString("callback.secret")
		if secret == "" {
			FatalErrorWithHint("callback.secret is not set", "Set FPW_CALLBACK_SECRET to the secret used when submitting plans")
		}
		addr := config.GetString("callback.addr")
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		srv := fas.NewCallbackServer(fas.ServerConfig{
			Store:  fpw.store,
			Secret: []byte(secret),
			Log:    fpw.log.With("component", "callback"),
		})
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()

		select {
		case err := <-errCh:
			if err != nil {
				FatalError("callback server: %v", err)
			}
		case <-rootCtx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				WarnError("callback server shutdown: %v", err)
			}
			<-errCh
		}
	},
}

var inboxCmd = &cobra.Command{
	Use:     "inbox",
	GroupID: GroupServices,
	Short:   "Upload every new trajectory file dropped into a directory",
	Long: `Watch a directory and create a plan for each new .csv trajectory written
to it, named after the file. Files already present at start are left alone.
The directory defaults to inbox.dir, then volumes.trajectory-dir.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir := inboxDir()
		if cmd.Flags().Changed("dir") {
			dir, _ = cmd.Flags().GetString("dir")
		}
		folder, _ := cmd.Flags().GetString("folder")
		if !sameDir(dir, config.GetString("volumes.trajectory-dir")) {
			WarnError("%s is not volumes.trajectory-dir; local volume generation will not find these trajectories", dir)
		}

		if err := os.MkdirAll(dir, 0o750); err != nil {
			FatalError("creating inbox: %v", err)
		}
		w, err := inbox.New(inbox.Config{
			Dir:      dir,
			FolderID: folder,
			Uploader: fpw.svc,
			Debounce: config.GetDuration("inbox.debounce"),
			Log:      fpw.log.With("component", "inbox"),
			OnUpload: func(file string, plan *types.FlightPlan, err error) {
				if err != nil {
					fmt.Printf("%s %s: %v\n", ui.RenderFail(ui.IconFail), file, err)
					return
				}
				fmt.Printf("%s %s uploaded as %s\n", ui.RenderPass(ui.IconPass), file, plan.ID)
			},
		})
		if err != nil {
			FatalError("%v", err)
		}
		fmt.Printf("Watching %s for trajectories (Ctrl-C to stop)\n", dir)
		if err := w.Run(rootCtx); err != nil {
			FatalError("%v", err)
		}
	},
}

func inboxDir() string {
	if dir := config.GetString("inbox.dir"); dir != "" {
		return dir
	}
	return config.GetString("volumes.trajectory-dir")
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func init() {
	callbackServeCmd.Flags().String("addr", "", "Listen address (default: callback.addr)")
	callbackCmd.AddCommand(callbackServeCmd)

	inboxCmd.Flags().String("dir", "", "Directory to watch")
	inboxCmd.Flags().String("folder", "", "Folder for new plans")

	rootCmd.AddCommand(callbackCmd, inboxCmd)
}
