package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bindery/internal/runstate"
)

var statusCmd = &cobra.Command{
	Use:   "status <target>",
	Short: "Show run progress and failed-page details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		target := args[0]

		store := runstate.NewStore(h, nil)
		state, err := store.Load(target)
		if err != nil {
			return err
		}

		c := state.Summary()
		fmt.Printf("Run %s (%s)\n", state.ID, target)
		fmt.Printf("  Source:  %s\n", state.Source)
		fmt.Printf("  Pages:   %d\n", state.PageCount)
		fmt.Printf("  Pending: %d\n", c.Pending)
		fmt.Printf("  Done:    %d\n", c.Done)
		fmt.Printf("  Skipped: %d\n", c.Skipped)
		fmt.Printf("  Failed:  %d (%d permanent)\n", c.Failed, c.PermanentlyFailed)

		failed := state.Failed()
		if len(failed) == 0 {
			return nil
		}
		fmt.Println("\nFailed pages:")
		for _, idx := range failed {
			rec, ok := state.Status(idx)
			if !ok {
				continue
			}
			mark := ""
			if rec.Permanent {
				mark = " [permanent]"
			}
			fmt.Printf("  page %4d  stage=%s retries=%d%s\n", idx, rec.FailedStage, rec.Retries, mark)
			if rec.Error != "" {
				fmt.Printf("             %s\n", rec.Error)
			}
		}
		if c.Failed > c.PermanentlyFailed {
			fmt.Printf("\nRetry with 'bindery reprocess %s'\n", target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
