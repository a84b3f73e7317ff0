package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Administrative commands are pass-throughs to the native worker. When the
// sandbox backend is selected they are no-ops, matching the manager's
// forwarding rules.

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"st"},
	Short:   "Show native worker usage statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}

		stats, ok := sess.manager.WorkerStats(cmd.Context())
		if !ok {
			fmt.Fprintln(os.Stderr, "native worker not in use; no stats available")
			return nil
		}
		if statsJSON {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		fmt.Printf("total builds:   %d\n", stats.TotalBuilds)
		fmt.Printf("cache hits:     %d\n", stats.CacheHits)
		fmt.Printf("avg build time: %.1fms\n", stats.AverageBuildMs)
		fmt.Printf("last build:     %dms\n", stats.LastBuildMs)
		fmt.Printf("cache size:     %d bytes\n", stats.CacheSizeBytes)
		fmt.Printf("uptime:         %.0fs\n", stats.UptimeSeconds)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Build cache administration",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Evict all cached build artifacts from the native worker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		if err := sess.manager.ClearCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "cache cleared")
		return nil
	},
}

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Run one trivial build to pay first-build initialization cost",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		if err := sess.manager.Warmup(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "warmup complete")
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(statsCmd, cacheCmd, warmupCmd)
}
