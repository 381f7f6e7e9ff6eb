package hostload

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/flexigpt/skillpool-go/spec"
)

type ReporterConfig struct {
	Loader *Loader
	Logger *slog.Logger

	// LookPath and GOOS default to exec.LookPath and runtime.GOOS;
	// tests inject both.
	LookPath func(string) (string, error)
	GOOS     string
}

// Reporter evaluates the machine-level eligibility of loaded skills.
type Reporter struct {
	loader   *Loader
	logger   *slog.Logger
	lookPath func(string) (string, error)
	goos     string
}

func NewReporter(cfg ReporterConfig) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loader := cfg.Loader
	if loader == nil {
		loader = NewLoader(LoaderConfig{Logger: logger})
	}
	lookPath := cfg.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Reporter{loader: loader, logger: logger, lookPath: lookPath, goos: goos}
}

// ScopeRoots returns the install roots of a scope in precedence
// order: workspace first, managed second.
func ScopeRoots(scope spec.StatusScope) []string {
	var roots []string
	if scope.WorkspaceDir != "" {
		roots = append(roots, filepath.Join(scope.WorkspaceDir, spec.WorkspaceSkillsDir))
	}
	if scope.ManagedDir != "" {
		roots = append(roots, scope.ManagedDir)
	}
	return roots
}

// BuildStatus loads every skill in scope and evaluates its declared
// requirements against this machine. Callers build the report once
// and cross-reference it per skill.
func (r *Reporter) BuildStatus(ctx context.Context, scope spec.StatusScope) (spec.StatusReport, error) {
	loaded, _, err := r.loader.LoadSkills(ctx, ScopeRoots(scope))
	if err != nil {
		return spec.StatusReport{}, err
	}

	var report spec.StatusReport
	for _, s := range loaded {
		report.Skills = append(report.Skills, r.statusFor(s, scope))
	}
	return report, nil
}

func (r *Reporter) statusFor(s spec.LoadedSkill, scope spec.StatusScope) spec.SkillStatus {
	st := spec.SkillStatus{Name: s.Name, RootDir: s.RootDir}
	if s.Host == nil {
		// No host manifest means no machine requirements.
		st.Eligible = true
		return st
	}
	host := s.Host

	if len(host.OS) > 0 && !slices.Contains(host.OS, r.goos) {
		st.MissingOS = append([]string(nil), host.OS...)
	}

	req := host.Requires
	for _, bin := range req.Bins {
		if _, err := r.lookPath(bin); err != nil {
			st.MissingBins = append(st.MissingBins, bin)
		}
	}
	if len(req.AnyBins) > 0 {
		found := false
		for _, bin := range req.AnyBins {
			if _, err := r.lookPath(bin); err == nil {
				found = true
				break
			}
		}
		// The whole alternative group is reported when none are present.
		if !found {
			st.MissingAnyBins = append([]string(nil), req.AnyBins...)
		}
	}
	for _, key := range req.Env {
		if r.envValue(scope, key) == "" {
			st.MissingEnv = append(st.MissingEnv, key)
		}
	}
	for _, key := range req.Config {
		if !scope.ConfigKeys[key] {
			st.MissingConfig = append(st.MissingConfig, key)
		}
	}

	for _, ins := range host.Install {
		if len(ins.OS) > 0 && !slices.Contains(ins.OS, r.goos) {
			continue
		}
		st.Installers = append(st.Installers, ins)
	}

	st.Eligible = len(st.MissingBins) == 0 &&
		len(st.MissingAnyBins) == 0 &&
		len(st.MissingEnv) == 0 &&
		len(st.MissingConfig) == 0 &&
		len(st.MissingOS) == 0
	return st
}

func (r *Reporter) envValue(scope spec.StatusScope, key string) string {
	if scope.Env != nil {
		return scope.Env[key]
	}
	return os.Getenv(key)
}
