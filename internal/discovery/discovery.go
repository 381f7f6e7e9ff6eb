// Package discovery ranks skill candidates for a free-text query.
// The curated skill-pool index is consulted first; live code-host
// repository search is the noisier fallback, so it carries a higher
// acceptance threshold. Identical concurrent queries are collapsed
// into one in-flight run so overlapping calls cannot clone the same
// repositories twice.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flexigpt/skillpool-go/internal/match"
	"github.com/flexigpt/skillpool-go/internal/scantree"
	"github.com/flexigpt/skillpool-go/internal/skillfile"
	"github.com/flexigpt/skillpool-go/spec"
)

const (
	DefaultIndexURL  = "https://raw.githubusercontent.com/flexigpt/skill-pool/main/index.json"
	DefaultSearchURL = "https://api.github.com/search/repositories"

	defaultIndexTTL     = 10 * time.Minute
	defaultLimit        = 5
	defaultCloneTimeout = 120 * time.Second

	thresholdSkillPool  = 0.25
	thresholdCodeSearch = 0.35

	maxSearchTerms = 3
	maxBodyBytes   = 8 << 20
)

// indexDocument is the curated index wire format.
type indexDocument struct {
	Skills []indexSkill `json:"skills"`
}

type indexSkill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Keywords    []string `json:"keywords"`
}

// searchResponse is the code-host repository search wire format.
type searchResponse struct {
	Items []repoHit `json:"items"`
}

type repoHit struct {
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Stars         int    `json:"stargazers_count"`
}

type Config struct {
	Git spec.GitClient

	HTTPClient *http.Client
	Logger     *slog.Logger

	IndexURL  string
	SearchURL string

	// IndexTTL is how long a fetched index document is reused.
	IndexTTL time.Duration

	// CloneTimeout bounds each scout clone during code search.
	CloneTimeout time.Duration

	// TempBase is the parent directory for scout-clone temp dirs.
	TempBase string
}

// Engine runs discovery queries.
type Engine struct {
	git        spec.GitClient
	httpClient *http.Client
	logger     *slog.Logger
	indexURL     string
	searchURL    string
	indexTTL     time.Duration
	cloneTimeout time.Duration
	tempBase     string

	group singleflight.Group

	mu      sync.Mutex
	idxDoc  *indexDocument
	idxTime time.Time
}

func New(cfg Config) *Engine {
	e := &Engine{
		git:        cfg.Git,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		indexURL:     cfg.IndexURL,
		searchURL:    cfg.SearchURL,
		indexTTL:     cfg.IndexTTL,
		cloneTimeout: cfg.CloneTimeout,
		tempBase:     cfg.TempBase,
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.indexURL == "" {
		e.indexURL = DefaultIndexURL
	}
	if e.searchURL == "" {
		e.searchURL = DefaultSearchURL
	}
	if e.indexTTL <= 0 {
		e.indexTTL = defaultIndexTTL
	}
	if e.cloneTimeout <= 0 {
		e.cloneTimeout = defaultCloneTimeout
	}
	return e
}

// Discover ranks candidates for args.Query. Overlapping calls with the
// same mode and query share one underlying run. A query that matches
// nothing returns Ok false, not an error; errors are reserved for bad
// arguments and context cancellation.
func (e *Engine) Discover(ctx context.Context, args spec.DiscoverArgs) (spec.DiscoverOut, error) {
	if err := ctx.Err(); err != nil {
		return spec.DiscoverOut{}, err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return spec.DiscoverOut{}, fmt.Errorf("%w: empty query", spec.ErrInvalidArgument)
	}
	mode, err := normalizeMode(args.Mode)
	if err != nil {
		return spec.DiscoverOut{}, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	if args.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	key := string(mode) + "\x00" + query
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.discover(ctx, mode, query, args.AuthToken, limit)
	})
	if err != nil {
		return spec.DiscoverOut{}, err
	}
	return v.(spec.DiscoverOut), nil
}

func normalizeMode(mode spec.DiscoverMode) (spec.DiscoverMode, error) {
	switch mode {
	case "", spec.DiscoverModeAuto:
		return spec.DiscoverModeAuto, nil
	case spec.DiscoverModeSkillPool, spec.DiscoverModeCuratedIndex:
		return spec.DiscoverModeSkillPool, nil
	case spec.DiscoverModeCodeSearch:
		return spec.DiscoverModeCodeSearch, nil
	default:
		return "", fmt.Errorf("%w: unknown discover mode %q", spec.ErrInvalidArgument, mode)
	}
}

func (e *Engine) discover(ctx context.Context, mode spec.DiscoverMode, query, token string, limit int) (spec.DiscoverOut, error) {
	var out spec.DiscoverOut

	runPool := mode == spec.DiscoverModeAuto || mode == spec.DiscoverModeSkillPool
	runSearch := mode == spec.DiscoverModeCodeSearch

	if runPool {
		cands, err := e.fromPool(ctx, query, limit)
		switch {
		case err != nil && ctx.Err() != nil:
			return spec.DiscoverOut{}, ctx.Err()
		case err != nil && mode == spec.DiscoverModeSkillPool:
			out.Message = fmt.Sprintf("skill pool index unavailable: %v", err)
			return out, nil
		case err != nil:
			out.Warnings = append(out.Warnings, fmt.Sprintf("skill pool index unavailable: %v", err))
			runSearch = true
		case len(cands) > 0:
			out.Candidates = cands
		case mode == spec.DiscoverModeAuto:
			out.Warnings = append(out.Warnings, "no skill pool match, falling back to code search")
			runSearch = true
		}
	}

	if runSearch {
		cand, found, warns, err := e.fromSearch(ctx, query, token, limit)
		out.Warnings = append(out.Warnings, warns...)
		if err != nil {
			if ctx.Err() != nil {
				return spec.DiscoverOut{}, ctx.Err()
			}
			out.Message = fmt.Sprintf("code search unavailable: %v", err)
			return out, nil
		}
		if found {
			out.Candidates = append(out.Candidates, cand)
		}
	}

	if len(out.Candidates) == 0 {
		out.Message = "no matching skills found"
		return out, nil
	}
	out.Ok = true
	out.Message = fmt.Sprintf("found %d candidate(s)", len(out.Candidates))
	return out, nil
}

// fromPool fetches (or reuses) the curated index and ranks its skills.
func (e *Engine) fromPool(ctx context.Context, query string, limit int) ([]spec.SkillCandidate, error) {
	doc, err := e.index(ctx)
	if err != nil {
		return nil, err
	}

	var out []spec.SkillCandidate
	for _, s := range doc.Skills {
		score, reason := match.Score(query, match.Candidate{
			Name:        s.Name,
			Description: s.Description,
			Keywords:    s.Keywords,
		})
		if score < thresholdSkillPool {
			continue
		}
		out = append(out, spec.SkillCandidate{
			Provider:    spec.ProviderSkillPool,
			Source:      s.URL,
			Score:       score,
			Reason:      reason,
			Name:        s.Name,
			Description: s.Description,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Engine) index(ctx context.Context) (indexDocument, error) {
	e.mu.Lock()
	if e.idxDoc != nil && time.Since(e.idxTime) < e.indexTTL {
		doc := *e.idxDoc
		e.mu.Unlock()
		return doc, nil
	}
	e.mu.Unlock()

	var doc indexDocument
	if err := e.getJSON(ctx, e.indexURL, "", &doc); err != nil {
		return indexDocument{}, err
	}

	e.mu.Lock()
	e.idxDoc = &doc
	e.idxTime = time.Now()
	e.mu.Unlock()
	return doc, nil
}

// fromSearch queries the code host, then explores hits best-first.
// The first repository yielding a skill above threshold wins; later
// hits are never cloned.
func (e *Engine) fromSearch(ctx context.Context, query, token string, limit int) (spec.SkillCandidate, bool, []string, error) {
	hits, err := e.searchRepos(ctx, query, token, limit)
	if err != nil {
		return spec.SkillCandidate{}, false, nil, err
	}

	var warnings []string
	for _, hit := range hits {
		cand, found, err := e.scoreRepo(ctx, query, hit)
		if err != nil {
			if ctx.Err() != nil {
				return spec.SkillCandidate{}, false, warnings, ctx.Err()
			}
			warnings = append(warnings, fmt.Sprintf("repo %s: %v", hit.FullName, err))
			continue
		}
		if found {
			return cand, true, warnings, nil
		}
	}
	return spec.SkillCandidate{}, false, warnings, nil
}

func (e *Engine) searchRepos(ctx context.Context, query, token string, limit int) ([]repoHit, error) {
	terms := match.QueryTokens(query, maxSearchTerms)
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no usable search terms in query", spec.ErrInvalidArgument)
	}

	u, err := url.Parse(e.searchURL)
	if err != nil {
		return nil, err
	}
	vals := url.Values{}
	vals.Set("q", strings.Join(terms, " ")+" "+spec.SkillFileName+" in:readme")
	vals.Set("sort", "stars")
	vals.Set("order", "desc")
	vals.Set("per_page", strconv.Itoa(limit))
	u.RawQuery = vals.Encode()

	var sr searchResponse
	if err := e.getJSON(ctx, u.String(), token, &sr); err != nil {
		return nil, err
	}
	e.logger.Debug("code search", "terms", terms, "hits", len(sr.Items))
	return sr.Items, nil
}

// scoreRepo shallow-clones one hit, scans it for skills, and returns
// the best one above threshold. The clone is always removed and is
// individually time-bounded so a wedged subprocess cannot stall the
// whole query.
func (e *Engine) scoreRepo(ctx context.Context, query string, hit repoHit) (spec.SkillCandidate, bool, error) {
	tmp, err := os.MkdirTemp(e.tempBase, "skillpool-scout-*")
	if err != nil {
		return spec.SkillCandidate{}, false, err
	}
	defer os.RemoveAll(tmp)

	cloneCtx, cancel := context.WithTimeout(ctx, e.cloneTimeout)
	_, err = e.git.Clone(cloneCtx, hit.CloneURL, tmp, spec.CloneOptions{Depth: 1})
	cancel()
	if err != nil {
		return spec.SkillCandidate{}, false, fmt.Errorf("clone: %w", err)
	}

	dirs, err := scantree.FindSkillDirs(ctx, tmp)
	if err != nil {
		return spec.SkillCandidate{}, false, err
	}

	var best spec.SkillCandidate
	found := false
	for _, dir := range dirs {
		man, err := skillfile.Parse(ctx, skillfile.SkillFilePath(dir))
		if err != nil {
			continue
		}
		name := man.Name
		if name == "" {
			name = filepath.Base(dir)
		}
		score, reason := match.Score(query, match.Candidate{
			Name:        name,
			Description: man.Description,
			Keywords:    man.Keywords,
		})
		if score < thresholdCodeSearch || (found && score <= best.Score) {
			continue
		}
		rel, relErr := filepath.Rel(tmp, dir)
		if relErr != nil {
			continue
		}
		subdir := ""
		if rel != "." {
			subdir = filepath.ToSlash(rel)
		}
		best = spec.SkillCandidate{
			Provider:    spec.ProviderCodeSearch,
			Source:      hit.CloneURL,
			Ref:         hit.DefaultBranch,
			Subdir:      subdir,
			Score:       score,
			Reason:      reason,
			Name:        name,
			Description: man.Description,
			Repo:        hit.FullName,
			Stars:       hit.Stars,
		}
		found = true
	}
	return best, found, nil
}

func (e *Engine) getJSON(ctx context.Context, rawURL, token string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: status %d: %s", rawURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v)
}
