package spec

import "context"

// ExecResult is captured subprocess output from the version-control client.
type ExecResult struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exitCode"`
}

// CloneOptions configures a single clone attempt.
type CloneOptions struct {
	// Depth > 0 requests a shallow clone of that depth. 0 means full.
	Depth int

	// Ref clones that branch/tag directly. Empty clones the default branch.
	Ref string
}

// GitClient is the version-control collaborator. Implementations return
// a non-nil error when the subprocess could not run or exited non-zero;
// the ExecResult carries captured output either way.
type GitClient interface {
	Clone(ctx context.Context, url, dir string, opts CloneOptions) (ExecResult, error)
	Checkout(ctx context.Context, ref, dir string) (ExecResult, error)
}

// SkillLoader is the host's own skill-loading routine. Earlier roots
// take precedence when the same skill name appears in several roots.
// Diagnostics explain skipped/rejected directories.
type SkillLoader interface {
	LoadSkills(ctx context.Context, roots []string) ([]LoadedSkill, []LoadDiagnostic, error)
}

// StatusScope is the context the status reporter evaluates against.
type StatusScope struct {
	WorkspaceDir string
	ManagedDir   string

	// Env overrides process environment lookups when non-nil.
	Env map[string]string

	// ConfigKeys marks host configuration keys that are set.
	ConfigKeys map[string]bool
}

// StatusReporter builds the host eligibility report for all currently
// loadable skills in scope.
type StatusReporter interface {
	BuildStatus(ctx context.Context, scope StatusScope) (StatusReport, error)
}

// InstallRequest asks the runner to execute one declared installer.
type InstallRequest struct {
	SkillName   string
	InstallerID string
	Spec        InstallSpec

	// RootDir is the installed skill directory, used as the working
	// directory for the installer process.
	RootDir string
}

// InstallRunner executes declared installers. Implementations must
// bound execution time and never inherit an unbounded context.
type InstallRunner interface {
	RunInstall(ctx context.Context, req InstallRequest) (InstallOutcome, error)
}

// Pipeline is the surface that tools and CLI layers bind to.
type Pipeline interface {
	DiscoverSkills(ctx context.Context, args DiscoverArgs) (DiscoverOut, error)
	ImportSkills(ctx context.Context, args ImportArgs) (ImportOut, error)
	ValidateImportedSkills(ctx context.Context, args ValidateArgs) (ValidateOut, error)
}
