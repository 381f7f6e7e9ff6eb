package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flexigpt/skillpool-go/spec"
)

var (
	importRef         string
	importSubdir      string
	importTarget      string
	importOverwrite   bool
	importExclude     []string
	importValidate    bool
	importAutoInstall bool
)

var importCmd = &cobra.Command{
	Use:   "import <source>",
	Short: "Copy-install every skill found under a source locator",
	Long: `Resolves a source locator (local path, clone URL, or code-host tree
URL) and installs each skill directory it contains into the target
install root, recording provenance receipts.

Examples:
  skillpool import ./my-skills
  skillpool import https://github.com/acme/skills/tree/main/skills/invoice-organizer
  skillpool import git@github.com:acme/skills.git --ref v2 --subdir skills`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importRef, "ref", "", "Branch, tag, or commit to check out")
	importCmd.Flags().StringVar(&importSubdir, "subdir", "", "Subdirectory of the source to scan")
	importCmd.Flags().StringVar(&importTarget, "target", "workspace", "Install target: workspace or managed")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace existing skills of the same name")
	importCmd.Flags().StringSliceVar(&importExclude, "exclude", nil, "Extra glob patterns to leave out of the copy")
	importCmd.Flags().BoolVar(&importValidate, "validate", false, "Validate the imported batch afterwards")
	importCmd.Flags().BoolVar(&importAutoInstall, "auto-install", false, "With --validate, run declared installers for missing binaries")
}

func runImport(cmd *cobra.Command, args []string) error {
	target, err := parseTarget(importTarget)
	if err != nil {
		return err
	}
	p, err := newPipeline()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	ws := workspaceDir()
	out, err := p.ImportSkills(ctx, spec.ImportArgs{
		Source:       args[0],
		Ref:          importRef,
		Subdir:       importSubdir,
		Target:       target,
		WorkspaceDir: ws,
		Overwrite:    importOverwrite,
		ExcludeGlobs: importExclude,
	})
	if err != nil {
		return err
	}

	var val *spec.ValidateOut
	if out.Ok && (importValidate || importAutoInstall) && len(out.Imported) > 0 {
		v, err := p.ValidateImportedSkills(ctx, spec.ValidateArgs{
			WorkspaceDir: ws,
			Target:       target,
			Imported:     out.Imported,
			AutoInstall:  importAutoInstall,
		})
		if err != nil {
			return err
		}
		val = &v
	}

	if jsonOut {
		combined := struct {
			Import   spec.ImportOut    `json:"import"`
			Validate *spec.ValidateOut `json:"validate,omitempty"`
		}{Import: out, Validate: val}
		if err := printJSON(combined); err != nil {
			return err
		}
	} else {
		printImportText(out, val)
	}

	if !out.Ok {
		return errors.New(out.Message)
	}
	if val != nil && !val.Ok {
		return errors.New(val.Message)
	}
	return nil
}

func printImportText(out spec.ImportOut, val *spec.ValidateOut) {
	for _, s := range out.Imported {
		fmt.Printf("imported %-24s %s\n", s.Name, s.TargetDir)
	}
	for _, s := range out.Skipped {
		detail := s.Detail
		if detail == "" {
			detail = string(s.Reason)
		}
		fmt.Printf("skipped  %-24s %s\n", s.SourceDir, detail)
	}
	for _, w := range out.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Println(out.Message)

	if val != nil {
		printValidationText(*val)
	}
}
