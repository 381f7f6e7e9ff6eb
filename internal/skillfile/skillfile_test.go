package skillfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/flexigpt/skillpool-go/spec"
)

func writeSkillMD(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, spec.SkillFileName)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	return p
}

func TestParse_Lenient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		wantName    string
		wantDesc    string
		wantKeys    []string
		wantFields  bool
		wantPresent bool
		wantParsed  bool
		wantHostKey string
	}{
		{
			name: "full manifest with inline metadata map",
			content: "---\n" +
				"name: invoice-organizer\n" +
				"description: Sorts invoices and receipts.\n" +
				"keywords: [invoice, receipt, organize]\n" +
				"metadata:\n" +
				"  skillpool:\n" +
				"    requires:\n" +
				"      bins: [jq]\n" +
				"---\nBody.\n",
			wantName:    "invoice-organizer",
			wantDesc:    "Sorts invoices and receipts.",
			wantKeys:    []string{"invoice", "receipt", "organize"},
			wantFields:  true,
			wantPresent: true,
			wantParsed:  true,
			wantHostKey: spec.MetadataKeySkillPool,
		},
		{
			name: "metadata as serialized JSON string",
			content: "---\n" +
				"name: git-pushing\n" +
				"description: Pushes branches.\n" +
				`metadata: '{"agentskills": {"requires": {"bins": ["git"]}}}'` + "\n" +
				"---\n",
			wantName:    "git-pushing",
			wantDesc:    "Pushes branches.",
			wantFields:  true,
			wantPresent: true,
			wantParsed:  true,
			wantHostKey: spec.MetadataKeyLegacy,
		},
		{
			name: "metadata string that does not decode",
			content: "---\n" +
				"name: broken-meta\n" +
				"description: Has bad metadata.\n" +
				"metadata: '{not json: ['\n" +
				"---\n",
			wantName:    "broken-meta",
			wantDesc:    "Has bad metadata.",
			wantFields:  true,
			wantPresent: true,
			wantParsed:  false,
		},
		{
			name: "metadata scalar is flagged not rejected",
			content: "---\n" +
				"name: scalar-meta\n" +
				"description: d\n" +
				"metadata: 42\n" +
				"---\n",
			wantName:    "scalar-meta",
			wantDesc:    "d",
			wantFields:  true,
			wantPresent: true,
			wantParsed:  false,
		},
		{
			name:       "keywords as comma separated string",
			content:    "---\nname: kw\ndescription: d\nkeywords: alpha, beta ,\n---\n",
			wantName:   "kw",
			wantDesc:   "d",
			wantKeys:   []string{"alpha", "beta"},
			wantFields: true,
		},
		{
			name:    "no frontmatter yields zero fields",
			content: "# Just a readme-style file\n",
		},
		{
			name:    "unparsable frontmatter yields zero fields",
			content: "---\nname: [unterminated\n---\n",
		},
		{
			name:    "unterminated frontmatter yields zero fields",
			content: "---\nname: x\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := writeSkillMD(t, t.TempDir(), tt.content)
			m, err := Parse(t.Context(), p)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			if m.Name != tt.wantName {
				t.Fatalf("name = %q, want %q", m.Name, tt.wantName)
			}
			if m.Description != tt.wantDesc {
				t.Fatalf("description = %q, want %q", m.Description, tt.wantDesc)
			}
			if len(m.Keywords) != len(tt.wantKeys) {
				t.Fatalf("keywords = %v, want %v", m.Keywords, tt.wantKeys)
			}
			for i := range tt.wantKeys {
				if m.Keywords[i] != tt.wantKeys[i] {
					t.Fatalf("keywords = %v, want %v", m.Keywords, tt.wantKeys)
				}
			}
			if tt.wantFields != (m.Fields != nil) {
				t.Fatalf("fields present = %v, want %v", m.Fields != nil, tt.wantFields)
			}
			if m.Metadata.Present != tt.wantPresent {
				t.Fatalf("metadata.present = %v, want %v", m.Metadata.Present, tt.wantPresent)
			}
			if m.Metadata.Parsed != tt.wantParsed {
				t.Fatalf("metadata.parsed = %v, want %v", m.Metadata.Parsed, tt.wantParsed)
			}
			if m.Metadata.HostKey != tt.wantHostKey {
				t.Fatalf("metadata.hostKey = %q, want %q", m.Metadata.HostKey, tt.wantHostKey)
			}
			if tt.wantPresent && !tt.wantParsed && m.Metadata.ParseError == "" {
				t.Fatalf("expected a parse error message for unparsed metadata")
			}
			if !strings.HasPrefix(m.Digest, "sha256:") {
				t.Fatalf("digest = %q, want sha256 prefix", m.Digest)
			}
		})
	}
}

func TestParse_ReadErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(t.Context(), filepath.Join(t.TempDir(), spec.SkillFileName))
		var re *ReadError
		if !errors.As(err, &re) {
			t.Fatalf("expected *ReadError, got %v", err)
		}
	})

	t.Run("oversize file", func(t *testing.T) {
		t.Parallel()

		big := strings.Repeat("x", maxSkillMDBytes+1)
		p := writeSkillMD(t, t.TempDir(), big)
		_, err := Parse(t.Context(), p)
		var re *ReadError
		if !errors.As(err, &re) {
			t.Fatalf("expected *ReadError for oversize file, got %v", err)
		}
		if !strings.Contains(err.Error(), "too large") {
			t.Fatalf("expected size message, got %v", err)
		}
	})

	t.Run("symlinked manifest", func(t *testing.T) {
		t.Parallel()
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}

		dir := t.TempDir()
		real := filepath.Join(dir, "real.md")
		if err := os.WriteFile(real, []byte("---\nname: x\n---\n"), 0o600); err != nil {
			t.Fatalf("write real: %v", err)
		}
		link := filepath.Join(dir, spec.SkillFileName)
		if err := os.Symlink(real, link); err != nil {
			t.Fatalf("symlink: %v", err)
		}

		_, err := Parse(t.Context(), link)
		var re *ReadError
		if !errors.As(err, &re) {
			t.Fatalf("expected *ReadError for symlink, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		p := writeSkillMD(t, t.TempDir(), "---\nname: x\n---\n")
		if _, err := Parse(ctx, p); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestParseStrict_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{
			name:    "no frontmatter",
			content: "plain text\n",
			wantSub: "must contain YAML frontmatter",
		},
		{
			name:    "unterminated frontmatter",
			content: "---\nname: x\n",
			wantSub: "unterminated frontmatter",
		},
		{
			name:    "invalid YAML",
			content: "---\nname: [bad\n---\n",
			wantSub: "invalid frontmatter YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := writeSkillMD(t, t.TempDir(), tt.content)
			_, err := ParseStrict(t.Context(), p)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("expected err to contain %q, got %v", tt.wantSub, err)
			}
		})
	}
}

func TestDecodeHostManifest(t *testing.T) {
	t.Parallel()

	mi := InspectMetadata(map[string]any{
		"metadata": map[string]any{
			"skillpool": map[string]any{
				"os": []any{"linux", "darwin"},
				"requires": map[string]any{
					"bins":    []any{"jq", "curl"},
					"anyBins": []any{"python3", "python"},
					"env":     []any{"API_KEY"},
				},
				"install": []any{
					map[string]any{"id": "brew-jq", "kind": "brew", "formula": "jq", "bins": []any{"jq"}},
				},
			},
		},
	})

	hm, ok := DecodeHostManifest(mi)
	if !ok {
		t.Fatalf("expected host manifest to decode")
	}
	if len(hm.OS) != 2 || hm.OS[0] != "linux" {
		t.Fatalf("os = %v", hm.OS)
	}
	if len(hm.Requires.Bins) != 2 || hm.Requires.Bins[1] != "curl" {
		t.Fatalf("requires.bins = %v", hm.Requires.Bins)
	}
	if len(hm.Requires.AnyBins) != 2 {
		t.Fatalf("requires.anyBins = %v", hm.Requires.AnyBins)
	}
	if len(hm.Install) != 1 || hm.Install[0].Kind != spec.InstallKindBrew || hm.Install[0].Formula != "jq" {
		t.Fatalf("install = %+v", hm.Install)
	}

	if _, ok := DecodeHostManifest(spec.MetadataInspection{Present: false}); ok {
		t.Fatalf("absent metadata must not decode")
	}
	if _, ok := DecodeHostManifest(spec.MetadataInspection{
		Present: true, Parsed: true, Value: map[string]any{"other": 1},
	}); ok {
		t.Fatalf("metadata without host key must not decode")
	}
}

func TestValidateNameAndDescription(t *testing.T) {
	t.Parallel()

	nameTests := []struct {
		name  string
		in    string
		valid bool
	}{
		{name: "simple", in: "invoice-organizer", valid: true},
		{name: "digits", in: "skill2", valid: true},
		{name: "empty", in: "", valid: false},
		{name: "uppercase", in: "Invoice", valid: false},
		{name: "leading hyphen", in: "-x", valid: false},
		{name: "trailing hyphen", in: "x-", valid: false},
		{name: "double hyphen", in: "a--b", valid: false},
		{name: "too long", in: strings.Repeat("a", 65), valid: false},
		{name: "underscore", in: "a_b", valid: false},
	}
	for _, tt := range nameTests {
		t.Run("name "+tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateName(tt.in)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("expected error for %q", tt.in)
			}
		})
	}

	if err := ValidateDescription(""); err == nil {
		t.Fatalf("empty description must error")
	}
	if err := ValidateDescription(strings.Repeat("d", 1025)); err == nil {
		t.Fatalf("oversize description must error")
	}
	if err := ValidateDescription("fine"); err != nil {
		t.Fatalf("valid description errored: %v", err)
	}
}
