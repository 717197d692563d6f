// Command statusline is a demo consumer of the caching subsystem: it
// renders a prompt status line from cached facts, triggering background
// refreshes for anything stale. Run it from a shell prompt hook; each
// invocation is one render cycle.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptline/go-statusline/cache"
	"github.com/promptline/go-statusline/config"
	"github.com/promptline/go-statusline/logger"
)

var (
	configPath string
	cacheDir   string
	backend    string
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if cacheDir != "" {
		cfg.Dir = cacheDir
	}
	if backend != "" {
		cfg.Backend = backend
	}
	return cfg, nil
}

func openService(cmd *cobra.Command) (*cache.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.New(cmd.Context(), cfg, cache.WithLogger(logger.NewConsoleLogger()))
}

var rootCmd = &cobra.Command{
	Use:   "statusline",
	Short: "Cached status line for interactive shells",
	Long: `statusline renders a prompt status line from cached facts.

Expensive facts (git state, remote-service status, tool versions) are
served from a two-tier cache and refreshed in the background, so the
render itself never blocks on a subprocess or the network.`,
	SilenceUsage: true,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the status line for the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		svc.AdvanceRenderCycle()
		line := renderLine(cmd.Context(), svc)
		fmt.Fprintln(cmd.OutOrStdout(), line)

		// Give just-scheduled refreshes a brief head start before the
		// process exits; anything unfinished is retried next cycle.
		done := make(chan struct{})
		go func() { svc.Flush(); close(done) }()
		select {
		case <-done:
		case <-time.After(50 * time.Millisecond):
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <namespace> <key>",
	Short: "Print a cached entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		entry, freshness, found := svc.Get(cmd.Context(), args[0], args[1])
		if !found {
			return fmt.Errorf("no entry for %s:%s", args[0], args[1])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", entry.Value, entry.Timestamp, freshness)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <namespace> <key> <value>",
	Short: "Write a cache entry (memory now, durable async)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		svc.SetAsync(args[0], args[1], args[2], time.Now().Unix())
		svc.Flush()
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune [max-age-seconds]",
	Short: "Delete cache entries older than the cutoff",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		maxAge := cfg.MaxEntryAge.Std()
		if len(args) == 1 {
			secs, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid max age %q: %w", args[0], err)
			}
			maxAge = time.Duration(secs) * time.Second
		}
		store, err := cache.OpenStore(cmd.Context(), cfg.Dir, cfg.Backend, logger.NewConsoleLogger())
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Prune(cmd.Context(), time.Now().Add(-maxAge).Unix(), cfg.FileMaxRows)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "override cache directory")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "override durable backend (auto|sqlite|file)")
	rootCmd.AddCommand(renderCmd, getCmd, setCmd, pruneCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return base + "/statusline/statusline.yaml"
	}
	return ""
}
