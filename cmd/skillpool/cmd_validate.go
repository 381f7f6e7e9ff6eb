package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flexigpt/skillpool-go/internal/scantree"
	"github.com/flexigpt/skillpool-go/internal/skillfile"
	"github.com/flexigpt/skillpool-go/spec"
)

var (
	validateTarget      string
	validateAutoInstall bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Cross-check installed skills against the host loader",
	Long: `Scans the target install root and builds a per-skill verdict: does it
load, is it eligible on this machine, and should it be rewritten.

With --auto-install, skills that are missing only installable binaries
get one remediation pass through their declared installer.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateTarget, "target", "workspace", "Install target: workspace or managed")
	validateCmd.Flags().BoolVar(&validateAutoInstall, "auto-install", false, "Run declared installers for missing binaries")
}

func runValidate(cmd *cobra.Command, args []string) error {
	target, err := parseTarget(validateTarget)
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
	root := filepath.Join(ws, spec.WorkspaceSkillsDir)
	if target == spec.TargetManaged {
		if managedDir == "" {
			return errors.New("--target managed requires --managed-dir")
		}
		root = managedDir
	}

	dirs, err := scantree.FindSkillDirs(ctx, root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("no skills installed under %s\n", root)
			return nil
		}
		return err
	}
	batch := make([]spec.ImportedSkill, 0, len(dirs))
	for _, dir := range dirs {
		batch = append(batch, spec.ImportedSkill{
			Name:      filepath.Base(dir),
			TargetDir: dir,
			SkillFile: skillfile.SkillFilePath(dir),
		})
	}

	out, err := p.ValidateImportedSkills(ctx, spec.ValidateArgs{
		WorkspaceDir: ws,
		Target:       target,
		Imported:     batch,
		AutoInstall:  validateAutoInstall,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		printValidationText(out)
	}

	if !out.Ok {
		return errors.New(out.Message)
	}
	return nil
}

func printValidationText(out spec.ValidateOut) {
	for _, v := range out.Skills {
		state := "ready"
		switch {
		case !v.Loaded:
			state = "not loaded"
		case !v.Ready:
			state = "not ready"
		}
		fmt.Printf("%-24s %s\n", v.Name, state)
		for _, d := range v.Diagnostics {
			fmt.Printf("    %s: %s\n", d.Type, d.Message)
		}
		for _, r := range v.RewriteReasons {
			fmt.Printf("    rewrite: %s\n", r)
		}
		for _, inst := range v.Install {
			fmt.Printf("    install %s: %s\n", inst.InstallerID, inst.Message)
		}
	}
	fmt.Println(out.Message)
}
