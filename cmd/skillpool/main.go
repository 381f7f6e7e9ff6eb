// Command skillpool discovers, imports, and validates agent skills
// from the terminal. It is a thin front end over the skillpool
// pipeline; every subcommand builds a fresh pipeline from flags, runs
// one operation, and prints the structured result as text or JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	skillpool "github.com/flexigpt/skillpool-go"
	"github.com/flexigpt/skillpool-go/spec"
)

var (
	// Global flags.
	verbose    bool
	jsonOut    bool
	workspace  string
	managedDir string
	indexURL   string
	gitPath    string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "skillpool",
	Short: "Discover, import, and validate agent skills",
	Long: `skillpool manages skill directories for agent hosts.

Subcommands:
  discover - Rank candidate skills for a free-text request
  import   - Copy-install every skill found under a source locator
  validate - Cross-check installed skills against the host loader
  sources  - Show where each installed skill came from`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&managedDir, "managed-dir", "", "Managed install root (enables --target managed)")
	rootCmd.PersistentFlags().StringVar(&indexURL, "index-url", "", "Override the curated skill index URL")
	rootCmd.PersistentFlags().StringVar(&gitPath, "git-path", "", "Path to the git binary")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func newPipeline() (*skillpool.Pipeline, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []skillpool.Option{skillpool.WithLogger(logger)}
	if managedDir != "" {
		opts = append(opts, skillpool.WithManagedDir(managedDir))
	}
	if indexURL != "" {
		opts = append(opts, skillpool.WithIndexURL(indexURL))
	}
	if gitPath != "" {
		opts = append(opts, skillpool.WithGitPath(gitPath))
	}
	return skillpool.New(opts...)
}

// runContext bounds one subcommand run and cancels it on SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func workspaceDir() string {
	if workspace != "" {
		return workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func parseTarget(s string) (spec.TargetKind, error) {
	switch s {
	case "", "workspace":
		return spec.TargetWorkspace, nil
	case "managed":
		return spec.TargetManaged, nil
	default:
		return "", fmt.Errorf("unknown target %q (want workspace or managed)", s)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
