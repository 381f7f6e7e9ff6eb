// Package skillpool turns a free-text request or an explicit source
// locator into runnable, policy-checked skills installed on disk.
//
// Four stages sit behind one surface: discovery ranks candidates from
// a curated pool index or live code search; import resolves a source
// locator and copy-installs every skill it finds, collision-safe and
// with provenance receipts; validation cross-checks the imported batch
// against the host's own loader and eligibility report; auto-install
// runs one remediation pass for skills missing only installable
// binaries, then revalidates once.
//
// The pipeline is stateless between calls. Expected failures
// (unresolvable source, no manifest found, no match, per-entry
// conflicts) come back as Ok=false structured results; errors mean
// bad arguments or context cancellation.
package skillpool

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/flexigpt/llmtools-go"
	"github.com/flexigpt/llmtools-go/shelltool"
	llmtoolsgoSpec "github.com/flexigpt/llmtools-go/spec"

	"github.com/flexigpt/skillpool-go/pooltool"
	"github.com/flexigpt/skillpool-go/spec"

	"github.com/flexigpt/skillpool-go/internal/discovery"
	"github.com/flexigpt/skillpool-go/internal/gitx"
	"github.com/flexigpt/skillpool-go/internal/hostload"
	"github.com/flexigpt/skillpool-go/internal/importer"
	"github.com/flexigpt/skillpool-go/internal/installrun"
	"github.com/flexigpt/skillpool-go/internal/keymutex"
	"github.com/flexigpt/skillpool-go/internal/locator"
	"github.com/flexigpt/skillpool-go/internal/validate"
)

// Pipeline is the configured discover/import/validate surface.
// Construct with New; the zero value is not usable.
type Pipeline struct {
	logger *slog.Logger

	git        spec.GitClient
	gitPath    string
	httpClient *http.Client

	indexURL  string
	searchURL string
	indexTTL  time.Duration

	managedDir string
	configKeys map[string]bool
	env        map[string]string

	cloneTimeout   time.Duration
	installTimeout time.Duration
	shellPolicy    *shelltool.ShellCommandPolicy

	loader   spec.SkillLoader
	reporter spec.StatusReporter
	runner   spec.InstallRunner

	discovery *discovery.Engine
	importer  *importer.Engine
	validator *validate.Engine
}

var _ spec.Pipeline = (*Pipeline)(nil)

type Option func(*Pipeline) error

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// WithGitPath points the default git client at a specific binary.
// Ignored when WithGitClient is also given.
func WithGitPath(path string) Option {
	return func(p *Pipeline) error {
		p.gitPath = path
		return nil
	}
}

// WithGitClient replaces the git subprocess client, for hosts that
// already wrap version control.
func WithGitClient(g spec.GitClient) Option {
	return func(p *Pipeline) error {
		p.git = g
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) error {
		p.httpClient = c
		return nil
	}
}

// WithIndexURL overrides where the curated skill-pool index is fetched from.
func WithIndexURL(u string) Option {
	return func(p *Pipeline) error {
		p.indexURL = u
		return nil
	}
}

// WithSearchURL overrides the code-search API endpoint.
func WithSearchURL(u string) Option {
	return func(p *Pipeline) error {
		p.searchURL = u
		return nil
	}
}

func WithIndexTTL(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.indexTTL = d
		return nil
	}
}

// WithManagedDir enables the managed install target rooted at dir.
func WithManagedDir(dir string) Option {
	return func(p *Pipeline) error {
		p.managedDir = dir
		return nil
	}
}

// WithConfigKeys marks host configuration keys as set, for skills that
// declare config requirements.
func WithConfigKeys(keys map[string]bool) Option {
	return func(p *Pipeline) error {
		p.configKeys = keys
		return nil
	}
}

// WithEnvOverrides replaces process environment lookups in eligibility
// checks. Useful for hosts that scope secrets per workspace.
func WithEnvOverrides(env map[string]string) Option {
	return func(p *Pipeline) error {
		p.env = env
		return nil
	}
}

// WithCloneTimeout bounds each git clone, both for source resolution
// and for discovery scout clones.
func WithCloneTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.cloneTimeout = d
		return nil
	}
}

func WithInstallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.installTimeout = d
		return nil
	}
}

// WithShellPolicy sets the shelltool command policy for installer runs.
func WithShellPolicy(policy shelltool.ShellCommandPolicy) Option {
	return func(p *Pipeline) error {
		p.shellPolicy = &policy
		return nil
	}
}

// WithSkillLoader replaces the host skill loader.
func WithSkillLoader(l spec.SkillLoader) Option {
	return func(p *Pipeline) error {
		p.loader = l
		return nil
	}
}

// WithStatusReporter replaces the host eligibility reporter.
func WithStatusReporter(r spec.StatusReporter) Option {
	return func(p *Pipeline) error {
		p.reporter = r
		return nil
	}
}

// WithInstallRunner replaces the installer runner.
func WithInstallRunner(r spec.InstallRunner) Option {
	return func(p *Pipeline) error {
		p.runner = r
		return nil
	}
}

func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		logger: slog.Default(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(p); err != nil {
			return nil, err
		}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.git == nil {
		p.git = gitx.New(gitx.Config{GitPath: p.gitPath})
	}

	resolver := locator.New(locator.Config{
		Git:          p.git,
		Logger:       p.logger,
		CloneTimeout: p.cloneTimeout,
	})
	p.discovery = discovery.New(discovery.Config{
		Git:          p.git,
		HTTPClient:   p.httpClient,
		Logger:       p.logger,
		IndexURL:     p.indexURL,
		SearchURL:    p.searchURL,
		IndexTTL:     p.indexTTL,
		CloneTimeout: p.cloneTimeout,
	})
	p.importer = importer.New(importer.Config{
		Resolver:   resolver,
		Locks:      keymutex.New(),
		Logger:     p.logger,
		ManagedDir: p.managedDir,
	})

	if p.runner == nil {
		p.runner = installrun.New(installrun.Config{
			Policy:  p.shellPolicy,
			Timeout: p.installTimeout,
			Logger:  p.logger,
		})
	}
	if p.loader == nil || p.reporter == nil {
		hl := hostload.NewLoader(hostload.LoaderConfig{Logger: p.logger})
		if p.loader == nil {
			p.loader = hl
		}
		if p.reporter == nil {
			p.reporter = hostload.NewReporter(hostload.ReporterConfig{Loader: hl, Logger: p.logger})
		}
	}
	p.validator = validate.New(validate.Config{
		Loader:     p.loader,
		Reporter:   p.reporter,
		Runner:     p.runner,
		Logger:     p.logger,
		ManagedDir: p.managedDir,
		ConfigKeys: p.configKeys,
		Env:        p.env,
	})
	return p, nil
}

// DiscoverSkills ranks candidate skills for a free-text request.
func (p *Pipeline) DiscoverSkills(ctx context.Context, args spec.DiscoverArgs) (spec.DiscoverOut, error) {
	return p.discovery.Discover(ctx, args)
}

// ImportSkills copies every skill found under a source locator into
// the target install root.
func (p *Pipeline) ImportSkills(ctx context.Context, args spec.ImportArgs) (spec.ImportOut, error) {
	return p.importer.Import(ctx, args)
}

// ValidateImportedSkills builds the per-entry verdict for a
// just-imported batch. With args.AutoInstall set it also runs one
// remediation pass for skills missing only installable binaries.
func (p *Pipeline) ValidateImportedSkills(ctx context.Context, args spec.ValidateArgs) (spec.ValidateOut, error) {
	return p.validator.Validate(ctx, args)
}

// Sources returns the import receipts recorded in a target install root.
func (p *Pipeline) Sources(ctx context.Context, target spec.TargetKind, workspaceDir string) (map[string]spec.ImportReceipt, error) {
	return p.importer.Sources(ctx, target, workspaceDir)
}

// Tools returns the pipeline tool specs (skills.discover/import/validate).
func (p *Pipeline) Tools() []llmtoolsgoSpec.Tool { return pooltool.Tools() }

// RegisterTools registers the pipeline tools into an existing llmtools-go Registry.
func (p *Pipeline) RegisterTools(reg *llmtools.Registry) error {
	return pooltool.Register(reg, p)
}

// NewToolsRegistry returns a new llmtools-go Registry containing only the pipeline tools.
func (p *Pipeline) NewToolsRegistry(opts ...llmtools.RegistryOption) (*llmtools.Registry, error) {
	return pooltool.NewPoolRegistry(p, opts...)
}
