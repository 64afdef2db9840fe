package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/bindery/internal/cache"
)

var cacheInfoCmd = &cobra.Command{
	Use:   "cache-info [fingerprint]",
	Short: "Inspect the page output cache",
	Long: `Inspect the page output cache.

Without arguments, prints aggregate cache statistics. With a fingerprint,
prints the metadata recorded when that entry was stored: the source hash
and the full stage parameter set that produced it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		store := cache.NewStore(h.CachePath(), nil)

		if len(args) == 0 {
			stats, err := store.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Cache: %s\n", h.CachePath())
			fmt.Printf("  Entries: %d\n", stats.Entries)
			fmt.Printf("  Size:    %.1f MiB\n", float64(stats.TotalBytes)/(1<<20))
			return nil
		}

		entry, err := store.Info(args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(entry)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheInfoCmd)
}
