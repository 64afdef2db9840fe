package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bindery/internal/config"
	"github.com/jackzampolin/bindery/internal/ingest"
	"github.com/jackzampolin/bindery/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the inbox directory and enhance arriving PDFs",
	Long: `Watch the inbox directory (~/.bindery/inbox) and run the enhance
pipeline on every PDF that arrives. PDFs already present at startup are
processed first. Configuration changes are picked up between documents
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := getConfig()
		if err != nil {
			return err
		}
		cm.OnChange(func(*config.Config) {
			slog.Default().Info("configuration reloaded")
		})
		cm.WatchConfig()

		handler := func(ctx context.Context, path string) error {
			// cm.Get() per document so config edits apply to the
			// next book, never mid-run.
			return runEnhance(ctx, h, cm.Get(), path, pipeline.Options{})
		}

		fmt.Printf("Watching %s for PDFs (ctrl-c to stop)\n", h.InboxPath())
		w := ingest.NewWatcher(h.InboxPath(), handler, slog.Default())
		return w.Watch(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
