package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/poller"
	"github.com/fpw-project/fpw/internal/ui"
)

const clearScreen = "\x1b[H\x1b[2J"

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: GroupPlans,
	Short:   "Show all plans, refreshed by polling the store",
	Long: `Poll the store and redraw the plan table after every refresh. After
poll.error-threshold consecutive failures a warning banner is shown; the last
good data stays on screen and polling continues. Press r to reset the error
count and refresh now, q to quit. With --json one snapshot is printed per line.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval := config.GetDuration("poll.interval")
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}

		snaps := make(chan poller.Snapshot, 1)
		fpw.sync.Subscribe(func(s poller.Snapshot) {
			select {
			case <-snaps:
			default:
			}
			select {
			case snaps <- s:
			default:
			}
		})

		keys := make(chan byte, 8)
		raw := false
		if !jsonOutput && ui.IsTerminal(os.Stdin) {
			fd := int(os.Stdin.Fd())
			if state, err := term.MakeRaw(fd); err == nil {
				raw = true
				defer func() { _ = term.Restore(fd, state) }()
				go readKeys(os.Stdin, keys)
			}
		}

		if err := fpw.sync.Start(rootCtx, interval); err != nil {
			FatalError("%v", err)
		}
		defer fpw.sync.Stop()

		// show the cached snapshot, if any, until the first refresh lands
		if cached := fpw.sync.Snapshot(); !cached.FetchedAt.IsZero() && !jsonOutput {
			drawWatch(os.Stdout, cached, interval, raw)
		}

		enc := json.NewEncoder(os.Stdout)
		for {
			select {
			case <-rootCtx.Done():
				return
			case snap := <-snaps:
				if jsonOutput {
					_ = enc.Encode(snap)
					continue
				}
				drawWatch(os.Stdout, snap, interval, raw)
			case k, ok := <-keys:
				if !ok {
					keys = nil
					continue
				}
				switch k {
				case 'q', 3: // 3 is Ctrl-C in raw mode
					return
				case 'r':
					fpw.sync.ResetErrorCount()
					go func() { _ = fpw.sync.Refresh(rootCtx) }()
				}
			}
		}
	},
}

func readKeys(r io.Reader, keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if err != nil {
			close(keys)
			return
		}
		if n == 1 {
			keys <- buf[0]
		}
	}
}

func drawWatch(w io.Writer, snap poller.Snapshot, interval time.Duration, raw bool) {
	var b bytes.Buffer
	b.WriteString(clearScreen)
	b.WriteString(renderWatch(snap, interval))
	out := b.String()
	if raw {
		// raw mode does not translate newlines
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	_, _ = io.WriteString(w, out)
}

func renderWatch(snap poller.Snapshot, interval time.Duration) string {
	var b bytes.Buffer
	updated := "never"
	if !snap.FetchedAt.IsZero() {
		updated = snap.FetchedAt.Local().Format("15:04:05")
	}
	fmt.Fprintf(&b, "%s %s\n", ui.RenderHeader("flight plans"),
		ui.RenderMuted(fmt.Sprintf("%d plans · updated %s · every %s", len(snap.Plans), updated, interval)))
	if snap.Degraded {
		b.WriteString(ui.RenderDegradedBanner(snap.ErrorCount, snap.LastError))
		b.WriteString("\n")
	}
	if len(snap.Plans) == 0 {
		b.WriteString(ui.RenderMuted("No plans.") + "\n")
	} else {
		writePlanTable(&b, snap.Plans, time.Local)
	}
	b.WriteString(ui.RenderMuted("r retry · q quit") + "\n")
	return b.String()
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "Polling interval (default: poll.interval)")
	rootCmd.AddCommand(watchCmd)
}
