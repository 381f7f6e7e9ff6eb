package spec

// MetadataInspection is the well-formedness verdict for a manifest's
// `metadata` frontmatter field. The three outcomes are tracked
// independently so callers can distinguish "not a host skill" from
// "malformed":
//
//	{Present:false}                         - no metadata field at all
//	{Present:true, Parsed:true,  ...}       - structured value decoded; HostKey set if a recognized sub-key was found
//	{Present:true, Parsed:false, ParseError} - value present but not decodable
type MetadataInspection struct {
	Present    bool           `json:"present"`
	Parsed     bool           `json:"parsed,omitempty"`
	HostKey    string         `json:"hostKey,omitempty"`
	Value      map[string]any `json:"value,omitempty"`
	ParseError string         `json:"parseError,omitempty"`
}

// SkillManifest is the lenient read of a SKILL.md frontmatter block.
// Fields the file does not declare stay zero; only structural read
// failures (unreadable file, oversize, symlink) error out.
type SkillManifest struct {
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Keywords    []string           `json:"keywords,omitempty"`
	Metadata    MetadataInspection `json:"metadata"`

	// Fields is the full parsed frontmatter map. Nil when the
	// frontmatter was absent or unparsable.
	Fields map[string]any `json:"fields,omitempty"`

	// Path is the absolute path to the SKILL.md that was read.
	Path string `json:"path,omitempty"`

	// Digest is "sha256:<hex>" over the raw SKILL.md bytes.
	Digest string `json:"digest,omitempty"`
}

// SkillRequirements declares what must be present on the machine for a
// skill to be eligible. AnyBins is satisfied by any single member.
type SkillRequirements struct {
	Bins    []string `json:"bins,omitempty"    yaml:"bins"`
	AnyBins []string `json:"anyBins,omitempty" yaml:"anyBins"`
	Env     []string `json:"env,omitempty"     yaml:"env"`
	Config  []string `json:"config,omitempty"  yaml:"config"`
}

// InstallSpec declares one way to satisfy missing binary requirements.
type InstallSpec struct {
	ID      string      `json:"id,omitempty"      yaml:"id"`
	Kind    InstallKind `json:"kind"              yaml:"kind"`
	Label   string      `json:"label,omitempty"   yaml:"label"`
	Bins    []string    `json:"bins,omitempty"    yaml:"bins"`
	OS      []string    `json:"os,omitempty"      yaml:"os"`
	Formula string      `json:"formula,omitempty" yaml:"formula"`
	Module  string      `json:"module,omitempty"  yaml:"module"`
	Package string      `json:"package,omitempty" yaml:"package"`
	URL     string      `json:"url,omitempty"     yaml:"url"`
}

// HostManifest is the host-specific sub-document found under a
// recognized metadata key (MetadataKeySkillPool or MetadataKeyLegacy).
type HostManifest struct {
	OS       []string          `json:"os,omitempty"       yaml:"os"`
	Requires SkillRequirements `json:"requires,omitempty" yaml:"requires"`
	Install  []InstallSpec     `json:"install,omitempty"  yaml:"install"`
}

// SkillCandidate is one ranked discovery result. Source/Ref/Subdir are
// directly usable as ImportArgs fields.
type SkillCandidate struct {
	Provider    string  `json:"provider"`
	Source      string  `json:"source"`
	Ref         string  `json:"ref,omitempty"`
	Subdir      string  `json:"subdir,omitempty"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Repo        string  `json:"repo,omitempty"`
	Stars       int     `json:"stars,omitempty"`
}

// ImportedSkill is one successfully copied skill.
type ImportedSkill struct {
	// Name is the installed directory name: the declared manifest name
	// (or the source directory name when the manifest had none) after
	// sanitization and collision suffixing.
	Name      string `json:"name,omitempty"`
	SourceDir string `json:"sourceDir"`
	TargetDir string `json:"targetDir"`
	SkillFile string `json:"skillFile"`
}

// SkippedSkill is one scanned directory that was not installed.
type SkippedSkill struct {
	SourceDir string     `json:"sourceDir"`
	Reason    SkipReason `json:"reason"`
	Detail    string     `json:"detail,omitempty"`
}

// ImportReceipt records the provenance of an installed skill, persisted
// in the target root so later runs can answer "where did this come from".
type ImportReceipt struct {
	RunID       string `json:"runId,omitempty"`
	Source      string `json:"source"`
	Ref         string `json:"ref,omitempty"`
	Subdir      string `json:"subdir,omitempty"`
	InstalledAt string `json:"installedAt,omitempty"`
}

// LoadedSkill is a skill the host loader accepted.
type LoadedSkill struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	RootDir     string        `json:"rootDir"`
	SkillFile   string        `json:"skillFile"`
	Digest      string        `json:"digest,omitempty"`
	Host        *HostManifest `json:"host,omitempty"`
}

// LoadDiagnostic is one structured finding from the host loader.
type LoadDiagnostic struct {
	Type    DiagnosticType `json:"type"`
	Message string         `json:"message"`
	Path    string         `json:"path,omitempty"`
	Skill   string         `json:"skill,omitempty"`
}

// SkillStatus is the per-skill slice of the host eligibility report.
// MissingAnyBins holds the whole any-of group when no member was found.
// MissingOS holds the declared OS list when the current OS is not in it.
type SkillStatus struct {
	Name           string        `json:"name"`
	RootDir        string        `json:"rootDir,omitempty"`
	Eligible       bool          `json:"eligible"`
	MissingBins    []string      `json:"missingBins,omitempty"`
	MissingAnyBins []string      `json:"missingAnyBins,omitempty"`
	MissingEnv     []string      `json:"missingEnv,omitempty"`
	MissingConfig  []string      `json:"missingConfig,omitempty"`
	MissingOS      []string      `json:"missingOS,omitempty"`
	Installers     []InstallSpec `json:"installers,omitempty"`
}

// StatusReport is the host eligibility report, built once per
// validation call.
type StatusReport struct {
	Skills []SkillStatus `json:"skills"`
}

// InstallOutcome is the captured result of one installer invocation.
type InstallOutcome struct {
	InstallerID string `json:"installerId,omitempty"`
	Ok          bool   `json:"ok"`
	Message     string `json:"message,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
	ExitCode    int    `json:"exitCode,omitempty"`
	TimedOut    bool   `json:"timedOut,omitempty"`
	DurationMS  int64  `json:"durationMS,omitempty"`
}

type DiscoverArgs struct {
	Query string `json:"query"`

	// Limit caps returned candidates. Default 5.
	Limit int `json:"limit,omitempty"`

	Mode DiscoverMode `json:"mode,omitempty"` // default: auto

	// AuthToken is passed as a bearer token to the code-search API for
	// higher rate limits. Optional.
	AuthToken string `json:"authToken,omitempty"`

	// TimeoutMS bounds the whole call. 0 means no extra bound beyond ctx.
	TimeoutMS int64 `json:"timeoutMS,omitempty"`
}

type DiscoverOut struct {
	Ok         bool             `json:"ok"`
	Message    string           `json:"message,omitempty"`
	Candidates []SkillCandidate `json:"candidates,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

type ImportArgs struct {
	// Source is a local path, a remote clone URL/SSH locator, or a
	// code-host tree URL with embedded ref/subdir.
	Source string `json:"source"`

	Ref    string `json:"ref,omitempty"`
	Subdir string `json:"subdir,omitempty"`

	Target TargetKind `json:"target,omitempty"` // default: workspace

	// WorkspaceDir is required when Target is workspace.
	WorkspaceDir string `json:"workspaceDir,omitempty"`

	// Overwrite replaces an existing destination of the same name
	// instead of recording a conflict skip.
	Overwrite bool `json:"overwrite,omitempty"`

	// ExcludeGlobs are extra path patterns (doublestar syntax, matched
	// against source-relative paths) left out of the copy.
	ExcludeGlobs []string `json:"excludeGlobs,omitempty"`

	TimeoutMS int64 `json:"timeoutMS,omitempty"`
}

type ImportOut struct {
	Ok        bool            `json:"ok"`
	Message   string          `json:"message,omitempty"`
	TargetDir string          `json:"targetDir,omitempty"`
	Imported  []ImportedSkill `json:"imported,omitempty"`
	Skipped   []SkippedSkill  `json:"skipped,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type ValidateArgs struct {
	WorkspaceDir string     `json:"workspaceDir,omitempty"`
	Target       TargetKind `json:"target,omitempty"` // default: workspace

	// Imported is the batch to validate, typically ImportOut.Imported.
	Imported []ImportedSkill `json:"imported"`

	// AutoInstall runs one remediation pass for entries that are
	// missing only installable binaries, then revalidates once.
	AutoInstall bool `json:"autoInstall,omitempty"`

	TimeoutMS int64 `json:"timeoutMS,omitempty"`
}

type ValidationSummary struct {
	Total              int `json:"total"`
	Loaded             int `json:"loaded"`
	Ready              int `json:"ready"`
	RewriteRecommended int `json:"rewriteRecommended"`
	InstallsRun        int `json:"installsRun,omitempty"`
}

// SkillValidation is the per-entry validation verdict.
// Ready means loaded AND eligible per the host status report.
type SkillValidation struct {
	Name               string             `json:"name,omitempty"`
	TargetDir          string             `json:"targetDir"`
	SkillFile          string             `json:"skillFile,omitempty"`
	Loaded             bool               `json:"loaded"`
	Ready              bool               `json:"ready"`
	Diagnostics        []LoadDiagnostic   `json:"diagnostics,omitempty"`
	Metadata           MetadataInspection `json:"metadata"`
	Status             *SkillStatus       `json:"status,omitempty"`
	RewriteRecommended bool               `json:"rewriteRecommended"`
	RewriteReasons     []string           `json:"rewriteReasons,omitempty"`
	Install            []InstallOutcome   `json:"install,omitempty"`
}

type ValidateOut struct {
	Ok      bool              `json:"ok"`
	Message string            `json:"message,omitempty"`
	Summary ValidationSummary `json:"summary"`
	Skills  []SkillValidation `json:"skills,omitempty"`
}
