package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/flexigpt/skillpool-go/spec"
)

func TestParseTarget(t *testing.T) {
	cases := []struct {
		in      string
		want    spec.TargetKind
		wantErr bool
	}{
		{in: "", want: spec.TargetWorkspace},
		{in: "workspace", want: spec.TargetWorkspace},
		{in: "managed", want: spec.TargetManaged},
		{in: "global", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseTarget(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseTarget(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseTarget(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestImportThenValidate(t *testing.T) {
	src := t.TempDir()
	skillDir := filepath.Join(src, "tidy-notes")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "---\nname: tidy-notes\ndescription: Keeps meeting notes tidy.\n---\n\nBody.\n"
	if err := os.WriteFile(filepath.Join(skillDir, spec.SkillFileName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	workspace = t.TempDir()
	importTarget = "workspace"

	out := captureOutput(t, func() {
		if err := runImport(&cobra.Command{}, []string{src}); err != nil {
			t.Errorf("runImport: %v", err)
		}
	})
	if !strings.Contains(out, "imported tidy-notes") {
		t.Fatalf("unexpected import output: %s", out)
	}
	installed := filepath.Join(workspace, spec.WorkspaceSkillsDir, "tidy-notes", spec.SkillFileName)
	if _, err := os.Stat(installed); err != nil {
		t.Fatalf("installed manifest missing: %v", err)
	}

	validateTarget = "workspace"
	out = captureOutput(t, func() {
		if err := runValidate(&cobra.Command{}, nil); err != nil {
			t.Errorf("runValidate: %v", err)
		}
	})
	if !strings.Contains(out, "tidy-notes") || !strings.Contains(out, "ready") {
		t.Fatalf("unexpected validate output: %s", out)
	}

	sourcesTarget = "workspace"
	out = captureOutput(t, func() {
		if err := runSources(&cobra.Command{}, nil); err != nil {
			t.Errorf("runSources: %v", err)
		}
	})
	if !strings.Contains(out, "tidy-notes") || !strings.Contains(out, src) {
		t.Fatalf("unexpected sources output: %s", out)
	}
}

func TestValidateEmptyWorkspace(t *testing.T) {
	workspace = t.TempDir()
	validateTarget = "workspace"

	out := captureOutput(t, func() {
		if err := runValidate(&cobra.Command{}, nil); err != nil {
			t.Errorf("runValidate: %v", err)
		}
	})
	if !strings.Contains(out, "no skills installed") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunValidateManagedNeedsDir(t *testing.T) {
	workspace = t.TempDir()
	managedDir = ""
	validateTarget = "managed"
	defer func() { validateTarget = "workspace" }()

	err := runValidate(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "--managed-dir") {
		t.Fatalf("expected managed-dir error, got %v", err)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
