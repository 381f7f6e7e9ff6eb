package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flexigpt/skillpool-go/spec"
)

var (
	discoverMode  string
	discoverLimit int
	discoverToken string
)

var discoverCmd = &cobra.Command{
	Use:   "discover <query>...",
	Short: "Rank candidate skills for a free-text request",
	Long: `Searches the curated skill pool (and, in code-search mode, public
repositories) for skills matching a natural-language request.

Example:
  skillpool discover organize my invoices and receipts`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverMode, "mode", "", "Discovery mode: auto, skill-pool, or code-search")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "Maximum candidates to return (default 5)")
	discoverCmd.Flags().StringVar(&discoverToken, "auth-token", "", "Bearer token for the code-search API")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	out, err := p.DiscoverSkills(ctx, spec.DiscoverArgs{
		Query:     strings.Join(args, " "),
		Limit:     discoverLimit,
		Mode:      spec.DiscoverMode(discoverMode),
		AuthToken: discoverToken,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		for i, c := range out.Candidates {
			name := c.Name
			if name == "" {
				name = c.Repo
			}
			fmt.Printf("%2d. %-28s %.2f  %s\n", i+1, name, c.Score, c.Provider)
			if c.Description != "" {
				fmt.Printf("    %s\n", c.Description)
			}
			fmt.Printf("    %s\n", c.Source)
		}
		if out.Message != "" {
			fmt.Println(out.Message)
		}
		for _, w := range out.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}
	}

	if !out.Ok {
		return errors.New(out.Message)
	}
	return nil
}
