package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/modelset"
	"github.com/geoknoesis/rdf-models/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch <model>...",
	Short: "Load file models and unload them when they change on disk",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		// ctx is cancelled by the time Close runs.
		defer a.Close(context.Background())

		w, err := modelset.NewWatcher(a.set)
		if err != nil {
			return err
		}
		defer w.Close()

		out := cmd.OutOrStdout()
		a.set.Tracker().AddListener(notify.ListenerFunc(func(batch []notify.Notification) {
			for _, n := range batch {
				change, ok := n.Payload.(modelset.ExternalChange)
				if !ok {
					continue
				}
				if change.Unloaded {
					fmt.Fprintf(out, "unloaded %s\n", change.URI)
				} else {
					fmt.Fprintf(out, "changed on disk, kept local edits: %s\n", change.URI)
				}
			}
		}))

		for _, arg := range args {
			u, err := parseArg(arg)
			if err != nil {
				return err
			}
			m, err := a.set.GetModel(ctx, u, true)
			if err != nil {
				return err
			}
			if err := w.Watch(m); err != nil {
				return err
			}
			a.logger.Info("watching model", zap.Stringer("uri", m.URI()))
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
