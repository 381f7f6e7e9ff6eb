// Package skillfile reads SKILL.md manifests. Parse is lenient (used by
// import and validation, which must tolerate malformed third-party
// skills); the Validate* helpers carry the strict host rules.
package skillfile

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flexigpt/skillpool-go/spec"
)

const maxSkillMDBytes = 2 << 20 // 2 MiB

// ReadError marks structural failures: the file could not be read at
// all (missing, oversize, symlink, not regular). Frontmatter problems
// are not ReadErrors; the lenient parse tolerates those.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// Parse reads a SKILL.md leniently. Structural read failures return a
// *ReadError; everything else (no frontmatter, invalid YAML, missing
// fields) yields a manifest with the affected fields left zero. The
// metadata blob is inspected, never rejected.
func Parse(ctx context.Context, path string) (spec.SkillManifest, error) {
	if err := ctx.Err(); err != nil {
		return spec.SkillManifest{}, err
	}

	p := strings.TrimSpace(path)
	if p == "" {
		return spec.SkillManifest{}, fmt.Errorf("%w: empty manifest path", spec.ErrInvalidArgument)
	}

	b, sha, err := readManifestBytes(p)
	if err != nil {
		return spec.SkillManifest{}, err
	}

	m := spec.SkillManifest{
		Path:   p,
		Digest: "sha256:" + sha,
	}

	fm, _, hasFM, err := SplitFrontmatter(string(b))
	if err != nil || !hasFM {
		return m, nil
	}

	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(fm), &fields); err != nil {
		return m, nil
	}

	m.Fields = fields
	m.Name = strings.TrimSpace(asString(fields["name"]))
	m.Description = strings.TrimSpace(asString(fields["description"]))
	m.Keywords = asStringList(fields["keywords"])
	m.Metadata = InspectMetadata(fields)
	return m, nil
}

// ParseStrict reads a SKILL.md and reports the frontmatter problems
// Parse tolerates. Used by the host loader.
func ParseStrict(ctx context.Context, path string) (spec.SkillManifest, error) {
	if err := ctx.Err(); err != nil {
		return spec.SkillManifest{}, err
	}

	p := strings.TrimSpace(path)
	if p == "" {
		return spec.SkillManifest{}, fmt.Errorf("%w: empty manifest path", spec.ErrInvalidArgument)
	}

	b, sha, err := readManifestBytes(p)
	if err != nil {
		return spec.SkillManifest{}, err
	}

	fm, _, hasFM, err := SplitFrontmatter(string(b))
	if err != nil {
		return spec.SkillManifest{}, err
	}
	if !hasFM {
		return spec.SkillManifest{}, errors.New("SKILL.md must contain YAML frontmatter")
	}

	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(fm), &fields); err != nil {
		return spec.SkillManifest{}, fmt.Errorf("invalid frontmatter YAML: %w", err)
	}

	return spec.SkillManifest{
		Path:        p,
		Digest:      "sha256:" + sha,
		Fields:      fields,
		Name:        strings.TrimSpace(asString(fields["name"])),
		Description: strings.TrimSpace(asString(fields["description"])),
		Keywords:    asStringList(fields["keywords"]),
		Metadata:    InspectMetadata(fields),
	}, nil
}

// InspectMetadata classifies the `metadata` frontmatter field. The
// value may be an inline YAML map or a serialized YAML/JSON string.
func InspectMetadata(fields map[string]any) spec.MetadataInspection {
	raw, ok := fields["metadata"]
	if !ok || raw == nil {
		return spec.MetadataInspection{Present: false}
	}

	mi := spec.MetadataInspection{Present: true}

	switch v := raw.(type) {
	case map[string]any:
		mi.Parsed = true
		mi.Value = v
	case string:
		if strings.TrimSpace(v) == "" {
			mi.ParseError = "metadata is an empty string"
			return mi
		}
		m := map[string]any{}
		// yaml.Unmarshal also accepts JSON, so a JSON-serialized blob
		// decodes through the same path.
		if err := yaml.Unmarshal([]byte(v), &m); err != nil {
			mi.ParseError = fmt.Sprintf("metadata string does not decode: %v", err)
			return mi
		}
		mi.Parsed = true
		mi.Value = m
	default:
		mi.ParseError = fmt.Sprintf("metadata must be a map or serialized map, got %T", raw)
		return mi
	}

	for _, key := range []string{spec.MetadataKeySkillPool, spec.MetadataKeyLegacy} {
		if _, found := mi.Value[key]; found {
			mi.HostKey = key
			break
		}
	}
	return mi
}

// DecodeHostManifest extracts the host manifest from an inspected
// metadata blob. Returns ok=false when no recognized key was found or
// the sub-document does not decode.
func DecodeHostManifest(mi spec.MetadataInspection) (spec.HostManifest, bool) {
	if !mi.Present || !mi.Parsed || mi.HostKey == "" {
		return spec.HostManifest{}, false
	}
	sub := mi.Value[mi.HostKey]
	if sub == nil {
		return spec.HostManifest{}, false
	}

	raw, err := yaml.Marshal(sub)
	if err != nil {
		return spec.HostManifest{}, false
	}
	var hm spec.HostManifest
	if err := yaml.Unmarshal(raw, &hm); err != nil {
		return spec.HostManifest{}, false
	}
	return hm, true
}

// ValidateName enforces the host naming rules: 1-64 chars of lowercase
// letters, digits, and single interior hyphens.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("frontmatter.name is required")
	}
	if len(name) > 64 {
		return errors.New("frontmatter.name too long (max 64)")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return errors.New("frontmatter.name must not start or end with '-'")
	}
	if strings.Contains(name, "--") {
		return errors.New("frontmatter.name must not contain consecutive '--'")
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("frontmatter.name contains invalid character %q", string(r))
	}
	return nil
}

func ValidateDescription(desc string) error {
	if desc == "" {
		return errors.New("frontmatter.description is required")
	}
	if len(desc) > 1024 {
		return errors.New("frontmatter.description too long (max 1024)")
	}
	return nil
}

// readManifestBytes stats, reads (size-capped), and digests a SKILL.md.
// All failures come back as *ReadError.
func readManifestBytes(p string) (data []byte, dataSHA string, err error) {
	if lst, lerr := os.Lstat(p); lerr == nil {
		if lst.Mode()&os.ModeSymlink != 0 {
			return nil, "", &ReadError{Path: p, Err: errors.New("SKILL.md must not be a symlink")}
		}
		if !lst.Mode().IsRegular() {
			return nil, "", &ReadError{Path: p, Err: errors.New("SKILL.md must be a regular file")}
		}
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, "", &ReadError{Path: p, Err: err}
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, int64(maxSkillMDBytes)+1))
	if err != nil {
		return nil, "", &ReadError{Path: p, Err: err}
	}
	if len(data) > maxSkillMDBytes {
		return nil, "", &ReadError{Path: p, Err: fmt.Errorf("SKILL.md too large (max %d bytes)", maxSkillMDBytes)}
	}

	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// SplitFrontmatter separates the leading "---" delimited YAML block
// from the body. has=false when the file does not start with "---".
func SplitFrontmatter(s string) (frontmatter, body string, has bool, err error) {
	br := bufio.NewReader(strings.NewReader(s))

	first, ferr := br.ReadString('\n')
	if ferr != nil && !errors.Is(ferr, io.EOF) {
		return "", "", false, fmt.Errorf("read first line: %w", ferr)
	}
	first = strings.TrimRight(first, "\r\n")
	if strings.TrimSpace(first) != "---" {
		return "", s, false, nil
	}

	var fmLines []string
	foundEnd := false
	for {
		line, lerr := br.ReadString('\n')
		if lerr != nil && !errors.Is(lerr, io.EOF) {
			return "", "", false, fmt.Errorf("read frontmatter line: %w", lerr)
		}
		lineTrim := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(lineTrim) == "---" {
			foundEnd = true
			break
		}
		fmLines = append(fmLines, lineTrim)
		if errors.Is(lerr, io.EOF) {
			break
		}
	}

	if !foundEnd {
		return "", "", false, errors.New("unterminated frontmatter (missing closing ---)")
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return "", "", false, fmt.Errorf("read body: %w", err)
	}

	return strings.Join(fmLines, "\n"), string(rest), true, nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// asStringList accepts a YAML list or a comma-separated string.
func asStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(asString(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, s := range parts {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SkillFilePath returns the manifest path for a skill directory.
func SkillFilePath(dir string) string {
	return filepath.Join(dir, spec.SkillFileName)
}
