package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var sourcesTarget string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show where each installed skill came from",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesTarget, "target", "workspace", "Install target: workspace or managed")
}

func runSources(cmd *cobra.Command, args []string) error {
	target, err := parseTarget(sourcesTarget)
	if err != nil {
		return err
	}
	p, err := newPipeline()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	receipts, err := p.Sources(ctx, target, workspaceDir())
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(receipts)
	}

	names := make([]string, 0, len(receipts))
	for name := range receipts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := receipts[name]
		loc := rec.Source
		if rec.Ref != "" {
			loc += "@" + rec.Ref
		}
		if rec.Subdir != "" {
			loc += " (" + rec.Subdir + ")"
		}
		fmt.Printf("%-24s %s  %s\n", name, loc, rec.InstalledAt)
	}
	if len(receipts) == 0 {
		fmt.Println("no import receipts recorded")
	}
	return nil
}
