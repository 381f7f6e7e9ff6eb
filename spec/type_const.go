package spec

// SkillFileName is the manifest file that marks a directory as a skill.
const SkillFileName = "SKILL.md"

// WorkspaceSkillsDir is the directory under a workspace that holds
// imported skills.
const WorkspaceSkillsDir = "skills"

// ReceiptsFileName records where each installed skill came from. It
// lives inside the install root next to the skill directories.
const ReceiptsFileName = ".skillpool-sources.json"

// Discovery providers. The curated index is pre-vetted, so its acceptance
// threshold is lower than live code search.
const (
	ProviderSkillPool  = "skill-pool"
	ProviderCodeSearch = "code-search"
)

// DiscoverMode selects which discovery providers run.
type DiscoverMode string

const (
	DiscoverModeAuto       DiscoverMode = "auto"
	DiscoverModeSkillPool  DiscoverMode = "skill-pool"
	DiscoverModeCodeSearch DiscoverMode = "code-search"

	// DiscoverModeCuratedIndex is an accepted alias for DiscoverModeSkillPool.
	DiscoverModeCuratedIndex DiscoverMode = "curated-index"
)

// TargetKind selects the install root for an import.
type TargetKind string

const (
	TargetWorkspace TargetKind = "workspace"
	TargetManaged   TargetKind = "managed"
)

// SkipReason tags why a scanned skill directory was not installed.
type SkipReason string

const (
	SkipConflict     SkipReason = "conflict"
	SkipInvalidSkill SkipReason = "invalid-skill"
	SkipCopyFailed   SkipReason = "copy-failed"
)

// DiagnosticType classifies host loader diagnostics.
type DiagnosticType string

const (
	DiagMissingManifest    DiagnosticType = "missing-manifest"
	DiagParseFailure       DiagnosticType = "parse-failure"
	DiagMissingName        DiagnosticType = "missing-name"
	DiagMissingDescription DiagnosticType = "missing-description"
	DiagNameMismatch       DiagnosticType = "name-mismatch"
	DiagInvalidField       DiagnosticType = "invalid-frontmatter-field"
	DiagDuplicateName      DiagnosticType = "duplicate-name"
)

// InstallKind is the installer family declared in host metadata.
type InstallKind string

const (
	InstallKindBrew     InstallKind = "brew"
	InstallKindGo       InstallKind = "go"
	InstallKindUV       InstallKind = "uv"
	InstallKindNode     InstallKind = "node"
	InstallKindDownload InstallKind = "download"
)

// Frontmatter metadata keys recognized as the host manifest sub-key.
// MetadataKeyLegacy is accepted for skills written against the old name.
const (
	MetadataKeySkillPool = "skillpool"
	MetadataKeyLegacy    = "agentskills"
)
