// Package validate cross-checks freshly imported skills against the
// host loader and eligibility report. Each entry gets an independent
// verdict; the host state is loaded once per call, not once per entry.
// With auto-install enabled, entries missing only installable binaries
// get one remediation pass and a single revalidation.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/flexigpt/skillpool-go/internal/hostload"
	"github.com/flexigpt/skillpool-go/internal/installrun"
	"github.com/flexigpt/skillpool-go/internal/skillfile"
	"github.com/flexigpt/skillpool-go/spec"
)

// maxRewriteReasons caps the per-entry reason list so one broken skill
// cannot flood the report.
const maxRewriteReasons = 6

// Config configures an Engine. Nil collaborators fall back to the
// package defaults (hostload loader/reporter, installrun runner).
type Config struct {
	Loader   spec.SkillLoader
	Reporter spec.StatusReporter
	Runner   spec.InstallRunner
	Logger   *slog.Logger

	// ManagedDir is the host-wide install root; empty disables the
	// managed target.
	ManagedDir string

	// ConfigKeys marks host configuration keys that are set. Env
	// overrides process environment lookups when non-nil. Both feed
	// the status scope unchanged.
	ConfigKeys map[string]bool
	Env        map[string]string
}

// Engine is the validation stage of the pipeline.
type Engine struct {
	loader   spec.SkillLoader
	reporter spec.StatusReporter
	runner   spec.InstallRunner
	logger   *slog.Logger

	managedDir string
	configKeys map[string]bool
	env        map[string]string
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loader := cfg.Loader
	reporter := cfg.Reporter
	if loader == nil || reporter == nil {
		hl := hostload.NewLoader(hostload.LoaderConfig{Logger: logger})
		if loader == nil {
			loader = hl
		}
		if reporter == nil {
			reporter = hostload.NewReporter(hostload.ReporterConfig{Loader: hl, Logger: logger})
		}
	}
	runner := cfg.Runner
	if runner == nil {
		runner = installrun.New(installrun.Config{Logger: logger})
	}
	return &Engine{
		loader:     loader,
		reporter:   reporter,
		runner:     runner,
		logger:     logger,
		managedDir: cfg.ManagedDir,
		configKeys: cfg.ConfigKeys,
		env:        cfg.Env,
	}
}

// Validate builds the verdict for one imported batch. Errors are
// reserved for bad arguments, context cancellation, and an unreadable
// install root; per-entry problems land in the entry itself.
func (e *Engine) Validate(ctx context.Context, args spec.ValidateArgs) (spec.ValidateOut, error) {
	if err := ctx.Err(); err != nil {
		return spec.ValidateOut{}, err
	}
	if err := e.checkTarget(args); err != nil {
		return spec.ValidateOut{}, err
	}
	if args.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	scope := spec.StatusScope{
		WorkspaceDir: strings.TrimSpace(args.WorkspaceDir),
		ManagedDir:   e.managedDir,
		ConfigKeys:   e.configKeys,
		Env:          e.env,
	}

	out, err := e.validatePass(ctx, scope, args.Imported)
	if err != nil {
		return spec.ValidateOut{}, err
	}

	if args.AutoInstall {
		outcomes, runs, err := e.autoInstall(ctx, out.Skills)
		if err != nil {
			return spec.ValidateOut{}, err
		}
		if runs > 0 {
			// One remediation pass, one refresh. Still-failing state is
			// reported, not retried.
			out, err = e.validatePass(ctx, scope, args.Imported)
			if err != nil {
				return spec.ValidateOut{}, err
			}
			for i := range out.Skills {
				if oc := outcomes[filepath.Clean(out.Skills[i].TargetDir)]; len(oc) > 0 {
					out.Skills[i].Install = oc
				}
			}
			out.Summary.InstallsRun = runs
			out.Message += fmt.Sprintf("; ran %d installer(s)", runs)
		}
	}
	return out, nil
}

func (e *Engine) checkTarget(args spec.ValidateArgs) error {
	kind := args.Target
	if kind == "" {
		kind = spec.TargetWorkspace
	}
	switch kind {
	case spec.TargetWorkspace:
		if strings.TrimSpace(args.WorkspaceDir) == "" {
			return fmt.Errorf("%w: workspace target requires a workspace directory", spec.ErrInvalidArgument)
		}
	case spec.TargetManaged:
		if e.managedDir == "" {
			return fmt.Errorf("%w: managed target is not configured", spec.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown target %q", spec.ErrInvalidArgument, args.Target)
	}
	return nil
}

// validatePass runs one full verdict over the batch against the
// current on-disk state.
func (e *Engine) validatePass(ctx context.Context, scope spec.StatusScope, imported []spec.ImportedSkill) (spec.ValidateOut, error) {
	loaded, diags, err := e.loader.LoadSkills(ctx, hostload.ScopeRoots(scope))
	if err != nil {
		return spec.ValidateOut{}, err
	}
	report, err := e.reporter.BuildStatus(ctx, scope)
	if err != nil {
		return spec.ValidateOut{}, err
	}

	loadedByDir := map[string]spec.LoadedSkill{}
	loadedByName := map[string]spec.LoadedSkill{}
	for _, s := range loaded {
		loadedByDir[filepath.Clean(s.RootDir)] = s
		loadedByName[s.Name] = s
	}
	statusByName := map[string]spec.SkillStatus{}
	for _, st := range report.Skills {
		statusByName[st.Name] = st
	}

	out := spec.ValidateOut{Summary: spec.ValidationSummary{Total: len(imported)}}
	for _, entry := range imported {
		if err := ctx.Err(); err != nil {
			return spec.ValidateOut{}, err
		}
		v := e.validateOne(ctx, entry, diags, loadedByDir, loadedByName, statusByName)
		if v.Loaded {
			out.Summary.Loaded++
		}
		if v.Ready {
			out.Summary.Ready++
		}
		if v.RewriteRecommended {
			out.Summary.RewriteRecommended++
		}
		out.Skills = append(out.Skills, v)
	}

	out.Ok = out.Summary.Ready == out.Summary.Total
	if out.Ok {
		out.Message = fmt.Sprintf("all %d imported skill(s) are ready", out.Summary.Total)
	} else {
		out.Message = fmt.Sprintf("%d of %d imported skill(s) are ready", out.Summary.Ready, out.Summary.Total)
	}
	return out, nil
}

func (e *Engine) validateOne(
	ctx context.Context,
	entry spec.ImportedSkill,
	diags []spec.LoadDiagnostic,
	loadedByDir, loadedByName map[string]spec.LoadedSkill,
	statusByName map[string]spec.SkillStatus,
) spec.SkillValidation {
	v := spec.SkillValidation{
		Name:      entry.Name,
		TargetDir: entry.TargetDir,
		SkillFile: entry.SkillFile,
	}
	dir := filepath.Clean(entry.TargetDir)

	// Metadata inspection is independent of the load result so callers
	// can tell "not a host skill" from "malformed".
	man, err := skillfile.Parse(ctx, entry.SkillFile)
	if err != nil {
		v.Diagnostics = append(v.Diagnostics, spec.LoadDiagnostic{
			Type:    spec.DiagMissingManifest,
			Message: fmt.Sprintf("manifest cannot be read back: %v", err),
			Path:    entry.SkillFile,
			Skill:   entry.Name,
		})
	} else {
		v.Metadata = man.Metadata
	}

	for _, d := range diags {
		if diagConcerns(d, dir, entry.SkillFile) {
			v.Diagnostics = append(v.Diagnostics, d)
		}
	}

	ls, ok := loadedByDir[dir]
	v.Loaded = ok

	if !v.Loaded {
		// Shadowing: the path did not load but its name did, elsewhere.
		name := filepath.Base(dir)
		if other, taken := loadedByName[name]; taken && filepath.Clean(other.RootDir) != dir && !hasDiag(v.Diagnostics, spec.DiagDuplicateName) {
			v.Diagnostics = append(v.Diagnostics, spec.LoadDiagnostic{
				Type:    spec.DiagDuplicateName,
				Message: fmt.Sprintf("name %q is already provided by %s", name, other.RootDir),
				Path:    entry.TargetDir,
				Skill:   name,
			})
		}
	}

	if v.Loaded {
		if st, found := statusByName[ls.Name]; found {
			v.Status = &st
			v.Ready = st.Eligible
		}
	}

	v.RewriteReasons = rewriteReasons(v)
	v.RewriteRecommended = len(v.RewriteReasons) > 0
	return v
}

// rewriteReasons unions every known-bad signal for an entry, deduped
// and capped.
func rewriteReasons(v spec.SkillValidation) []string {
	var reasons []string
	if !v.Loaded {
		reasons = append(reasons, "not loaded by the host")
	}
	if v.Metadata.Present && !v.Metadata.Parsed {
		reasons = append(reasons, "metadata block does not parse")
	}
	if v.Metadata.Present && v.Metadata.Parsed && v.Metadata.HostKey == "" {
		reasons = append(reasons, fmt.Sprintf("metadata lacks a %q section", spec.MetadataKeySkillPool))
	}
	for _, d := range v.Diagnostics {
		switch d.Type {
		case spec.DiagDuplicateName, spec.DiagMissingDescription, spec.DiagInvalidField, spec.DiagNameMismatch, spec.DiagParseFailure:
			reasons = append(reasons, d.Message)
		}
	}
	if st := v.Status; v.Loaded && st != nil && !st.Eligible {
		missingBins := len(st.MissingBins) > 0 || len(st.MissingAnyBins) > 0
		if missingBins && len(st.Installers) == 0 {
			// Terminal: nothing this pipeline can install.
			reasons = append(reasons, "missing required binaries and no installer declared")
		}
	}

	seen := map[string]bool{}
	deduped := reasons[:0]
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		deduped = append(deduped, r)
	}
	if len(deduped) > maxRewriteReasons {
		deduped = deduped[:maxRewriteReasons]
	}
	return deduped
}

// autoInstall runs the first runnable installer for every entry whose
// only gap is missing binaries. Outcomes are keyed by target dir so
// the revalidated report can carry them.
func (e *Engine) autoInstall(ctx context.Context, skills []spec.SkillValidation) (map[string][]spec.InstallOutcome, int, error) {
	outcomes := map[string][]spec.InstallOutcome{}
	runs := 0
	for _, v := range skills {
		st := v.Status
		if !v.Loaded || st == nil || st.Eligible {
			continue
		}
		if len(st.MissingOS) > 0 || len(st.MissingEnv) > 0 || len(st.MissingConfig) > 0 {
			continue
		}
		if len(st.MissingBins) == 0 && len(st.MissingAnyBins) == 0 {
			continue
		}
		var chosen *spec.InstallSpec
		for i := range st.Installers {
			if installrun.Runnable(st.Installers[i].Kind) {
				chosen = &st.Installers[i]
				break
			}
		}
		if chosen == nil {
			continue
		}

		id := chosen.ID
		if id == "" {
			id = string(chosen.Kind)
		}
		outc, err := e.runner.RunInstall(ctx, spec.InstallRequest{
			SkillName:   st.Name,
			InstallerID: id,
			Spec:        *chosen,
			RootDir:     st.RootDir,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			outc = spec.InstallOutcome{InstallerID: id, Ok: false, Message: err.Error()}
		}
		e.logger.Info("auto-install attempted", "skill", st.Name, "installer", id, "ok", outc.Ok)
		outcomes[filepath.Clean(v.TargetDir)] = append(outcomes[filepath.Clean(v.TargetDir)], outc)
		runs++
	}
	return outcomes, runs, nil
}

// diagConcerns reports whether a loader diagnostic belongs to the
// entry rooted at dir.
func diagConcerns(d spec.LoadDiagnostic, dir, skillFile string) bool {
	p := filepath.Clean(d.Path)
	if p == dir || p == filepath.Clean(skillFile) {
		return true
	}
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}

func hasDiag(diags []spec.LoadDiagnostic, t spec.DiagnosticType) bool {
	for _, d := range diags {
		if d.Type == t {
			return true
		}
	}
	return false
}
