// Package gitx shells out to the system git binary for clone and
// checkout. Terminal prompts are disabled so a source that needs
// interactive credentials fails fast instead of hanging the pipeline.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/flexigpt/skillpool-go/spec"
)

// Client runs git subprocesses.
type Client struct {
	gitPath string
}

type Config struct {
	// GitPath overrides the git executable; empty means "git" from PATH.
	GitPath string
}

func New(cfg Config) *Client {
	p := cfg.GitPath
	if p == "" {
		p = "git"
	}
	return &Client{gitPath: p}
}

// Clone clones url into dir. Depth > 0 requests a shallow clone;
// Ref clones that branch or tag directly.
func (c *Client) Clone(ctx context.Context, url, dir string, opts spec.CloneOptions) (spec.ExecResult, error) {
	return c.run(ctx, "", cloneArgs(url, dir, opts))
}

// Checkout switches the work tree at dir to ref.
func (c *Client) Checkout(ctx context.Context, ref, dir string) (spec.ExecResult, error) {
	return c.run(ctx, dir, []string{"checkout", ref})
}

func cloneArgs(url, dir string, opts spec.CloneOptions) []string {
	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Ref != "" {
		args = append(args, "--branch", opts.Ref, "--single-branch")
	}
	return append(args, url, dir)
}

func (c *Client) run(ctx context.Context, dir string, args []string) (spec.ExecResult, error) {
	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := spec.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var xerr *exec.ExitError
		if errors.As(err, &xerr) {
			res.ExitCode = xerr.ExitCode()
		}
		return res, fmt.Errorf("git %s: %w", args[0], err)
	}
	return res, nil
}
