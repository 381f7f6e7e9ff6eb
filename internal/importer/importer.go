// Package importer copies skill directories from a resolved source
// into an install root. Imports are serialized per install root, names
// are sanitized and de-duplicated within a batch, and each run leaves
// a receipts file recording where every skill came from.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/flexigpt/skillpool-go/internal/keymutex"
	"github.com/flexigpt/skillpool-go/internal/locator"
	"github.com/flexigpt/skillpool-go/internal/scantree"
	"github.com/flexigpt/skillpool-go/internal/skillfile"
	"github.com/flexigpt/skillpool-go/spec"
)

const (
	maxDestNameLen = 64

	receiptsSchemaVersion = "2025-06-01"
)

type Config struct {
	Resolver *locator.Resolver
	Locks    *keymutex.KeyMutex
	Logger   *slog.Logger

	// ManagedDir is the host-wide install root. Empty disables the
	// managed target.
	ManagedDir string
}

// Engine performs skill imports.
type Engine struct {
	resolver   *locator.Resolver
	locks      *keymutex.KeyMutex
	logger     *slog.Logger
	managedDir string
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locks := cfg.Locks
	if locks == nil {
		locks = keymutex.New()
	}
	return &Engine{
		resolver:   cfg.Resolver,
		locks:      locks,
		logger:     logger,
		managedDir: cfg.ManagedDir,
	}
}

// Import resolves args.Source and installs every skill directory found
// under it. Partial success is a valid outcome: Ok is true when at
// least one skill was imported. Expected failures (unresolvable
// source, no manifest found, all entries skipped) come back as Ok
// false; bad arguments and context cancellation are the only error
// returns.
func (e *Engine) Import(ctx context.Context, args spec.ImportArgs) (spec.ImportOut, error) {
	if err := ctx.Err(); err != nil {
		return spec.ImportOut{}, err
	}
	if strings.TrimSpace(args.Source) == "" {
		return spec.ImportOut{}, fmt.Errorf("%w: empty source", spec.ErrInvalidArgument)
	}
	targetRoot, err := e.targetRoot(args)
	if err != nil {
		return spec.ImportOut{}, err
	}

	if args.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	// One install root is never mutated by two imports at once.
	release := e.locks.Lock(targetRoot)
	defer release()

	res, err := e.resolver.Resolve(ctx, locator.Request{
		Source: args.Source,
		Ref:    args.Ref,
		Subdir: args.Subdir,
	})
	if err != nil {
		if errors.Is(err, spec.ErrSourceUnresolved) {
			return spec.ImportOut{Ok: false, Message: err.Error(), TargetDir: targetRoot}, nil
		}
		return spec.ImportOut{}, err
	}
	defer res.Cleanup()

	out := spec.ImportOut{TargetDir: targetRoot, Warnings: res.Warnings}

	dirs, err := scantree.FindSkillDirs(ctx, res.RootDir)
	if err != nil {
		return spec.ImportOut{}, err
	}
	if len(dirs) == 0 {
		out.Message = fmt.Sprintf("no skill manifest (%s) found under %q", spec.SkillFileName, args.Source)
		return out, nil
	}

	if err := os.MkdirAll(targetRoot, 0o755); err != nil {
		out.Message = fmt.Sprintf("create install root: %v", err)
		return out, nil
	}

	usedNames := map[string]bool{}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return spec.ImportOut{}, err
		}
		entry, skip, err := e.importOne(ctx, dir, targetRoot, usedNames, args)
		if err != nil {
			return spec.ImportOut{}, err
		}
		if skip != nil {
			out.Skipped = append(out.Skipped, *skip)
			continue
		}
		out.Imported = append(out.Imported, entry)
		e.logger.Info("skill imported", "name", entry.Name, "target", entry.TargetDir)
	}

	if len(out.Imported) > 0 {
		if err := writeReceipts(targetRoot, out.Imported, args); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("write receipts: %v", err))
		}
	}

	out.Ok = len(out.Imported) > 0
	if out.Ok {
		out.Message = fmt.Sprintf("imported %d skill(s), skipped %d", len(out.Imported), len(out.Skipped))
	} else {
		out.Message = fmt.Sprintf("no skills imported, skipped %d", len(out.Skipped))
	}
	return out, nil
}

func (e *Engine) targetRoot(args spec.ImportArgs) (string, error) {
	kind := args.Target
	if kind == "" {
		kind = spec.TargetWorkspace
	}
	switch kind {
	case spec.TargetWorkspace:
		ws := strings.TrimSpace(args.WorkspaceDir)
		if ws == "" {
			return "", fmt.Errorf("%w: workspace target requires a workspace directory", spec.ErrInvalidArgument)
		}
		return filepath.Join(ws, spec.WorkspaceSkillsDir), nil
	case spec.TargetManaged:
		if e.managedDir == "" {
			return "", fmt.Errorf("%w: managed target is not configured", spec.ErrInvalidArgument)
		}
		return e.managedDir, nil
	default:
		return "", fmt.Errorf("%w: unknown target %q", spec.ErrInvalidArgument, args.Target)
	}
}

// importOne installs a single source directory. A nil entry with a
// non-nil skip means the directory was passed over; a non-nil error is
// context cancellation only.
func (e *Engine) importOne(ctx context.Context, srcDir, targetRoot string, usedNames map[string]bool, args spec.ImportArgs) (spec.ImportedSkill, *spec.SkippedSkill, error) {
	man, err := skillfile.Parse(ctx, skillfile.SkillFilePath(srcDir))
	if err != nil {
		var rerr *skillfile.ReadError
		if errors.As(err, &rerr) {
			return spec.ImportedSkill{}, &spec.SkippedSkill{
				SourceDir: srcDir,
				Reason:    spec.SkipInvalidSkill,
				Detail:    rerr.Error(),
			}, nil
		}
		return spec.ImportedSkill{}, nil, err
	}

	name := man.Name
	if name == "" {
		name = filepath.Base(srcDir)
	}
	destName := uniqueName(sanitizeName(name), usedNames)
	destDir := filepath.Join(targetRoot, destName)

	if _, err := os.Lstat(destDir); err == nil {
		if !args.Overwrite {
			return spec.ImportedSkill{}, &spec.SkippedSkill{
				SourceDir: srcDir,
				Reason:    spec.SkipConflict,
				Detail:    fmt.Sprintf("destination %q already exists", destName),
			}, nil
		}
		if err := os.RemoveAll(destDir); err != nil {
			return spec.ImportedSkill{}, &spec.SkippedSkill{
				SourceDir: srcDir,
				Reason:    spec.SkipCopyFailed,
				Detail:    fmt.Sprintf("remove existing destination: %v", err),
			}, nil
		}
	}

	if err := copyDir(ctx, srcDir, destDir, args.ExcludeGlobs); err != nil {
		_ = os.RemoveAll(destDir)
		if ctx.Err() != nil {
			return spec.ImportedSkill{}, nil, ctx.Err()
		}
		return spec.ImportedSkill{}, &spec.SkippedSkill{
			SourceDir: srcDir,
			Reason:    spec.SkipCopyFailed,
			Detail:    err.Error(),
		}, nil
	}

	return spec.ImportedSkill{
		Name:      destName,
		SourceDir: srcDir,
		TargetDir: destDir,
		SkillFile: filepath.Join(destDir, spec.SkillFileName),
	}, nil, nil
}

// sanitizeName lowercases and reduces a declared name to ASCII
// letters, digits, underscore, and hyphen. Runs of anything else
// collapse into a single hyphen.
func sanitizeName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	pendingSep := false
	for _, r := range lower {
		allowed := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		if !allowed {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingSep = false
		b.WriteRune(r)
	}

	out := b.String()
	if len(out) > maxDestNameLen {
		out = strings.Trim(out[:maxDestNameLen], "-_")
	}
	if out == "" {
		out = "skill"
	}
	return out
}

// uniqueName reserves base within the batch, suffixing -2, -3, ... on
// repeats. Names are reserved even when the entry later skips, so a
// batch never retries a name that already collided.
func uniqueName(base string, used map[string]bool) string {
	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	used[name] = true
	return name
}

// copyDir copies src into dst, skipping ignored directories, entries
// matching the exclude globs (slash-relative doublestar patterns), and
// anything that is not a regular file or directory.
func copyDir(ctx context.Context, src, dst string, excludes []string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}
		relSlash := filepath.ToSlash(rel)

		if d.IsDir() {
			if scantree.IsIgnoredDir(d.Name()) || matchesAny(relSlash, excludes) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(filepath.Join(dst, rel), info.Mode().Perm())
		}

		if matchesAny(relSlash, excludes) || !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, filepath.Join(dst, rel), d)
	})
}

func matchesAny(relSlash string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, relSlash); err == nil && ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type receiptsFile struct {
	SchemaVersion string                        `json:"schemaVersion"`
	Skills        map[string]spec.ImportReceipt `json:"skills"`
}

// writeReceipts merges this run's entries into the install root's
// receipts file. The write is atomic (temp file plus rename) so a
// crash cannot leave a torn file behind.
func writeReceipts(targetRoot string, imported []spec.ImportedSkill, args spec.ImportArgs) error {
	path := filepath.Join(targetRoot, spec.ReceiptsFileName)

	rf := receiptsFile{SchemaVersion: receiptsSchemaVersion, Skills: map[string]spec.ImportReceipt{}}
	if raw, err := os.ReadFile(path); err == nil {
		// A corrupt receipts file is replaced, not fatal.
		_ = json.Unmarshal(raw, &rf)
		if rf.Skills == nil {
			rf.Skills = map[string]spec.ImportReceipt{}
		}
		rf.SchemaVersion = receiptsSchemaVersion
	}

	runID := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, entry := range imported {
		rf.Skills[entry.Name] = spec.ImportReceipt{
			RunID:       runID,
			Source:      args.Source,
			Ref:         args.Ref,
			Subdir:      args.Subdir,
			InstalledAt: now,
		}
	}

	raw, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(targetRoot, ".skillpool-sources-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Sources returns the receipts recorded for a target, resolving the
// install root the same way Import does.
func (e *Engine) Sources(ctx context.Context, target spec.TargetKind, workspaceDir string) (map[string]spec.ImportReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := e.targetRoot(spec.ImportArgs{Target: target, WorkspaceDir: workspaceDir})
	if err != nil {
		return nil, err
	}
	return ReadReceipts(root)
}

// ReadReceipts returns the receipts recorded in an install root, or an
// empty map when none exist yet.
func ReadReceipts(targetRoot string) (map[string]spec.ImportReceipt, error) {
	raw, err := os.ReadFile(filepath.Join(targetRoot, spec.ReceiptsFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]spec.ImportReceipt{}, nil
		}
		return nil, err
	}
	var rf receiptsFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", spec.ReceiptsFileName, err)
	}
	if rf.Skills == nil {
		rf.Skills = map[string]spec.ImportReceipt{}
	}
	return rf.Skills, nil
}
