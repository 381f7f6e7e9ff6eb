// Package installrun executes declared skill installers through the
// llmtools-go shelltool. Each invocation is time-bounded, runs in its
// own throwaway shell session, and reports a structured outcome rather
// than an error for anything the installer process itself did wrong.
package installrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/flexigpt/llmtools-go/shelltool"

	"github.com/flexigpt/skillpool-go/internal/pathutil"
	"github.com/flexigpt/skillpool-go/spec"
)

const defaultInstallTimeout = 10 * time.Minute

// Config configures a Runner. Zero values pick working defaults.
type Config struct {
	// Policy guards the generated installer command lines. Nil selects
	// shelltool.DefaultShellCommandPolicy.
	Policy *shelltool.ShellCommandPolicy

	// Timeout bounds one installer invocation. Defaults to 10 minutes.
	Timeout time.Duration

	Logger *slog.Logger
}

// Runner is the default spec.InstallRunner.
type Runner struct {
	policy  shelltool.ShellCommandPolicy
	timeout time.Duration
	logger  *slog.Logger

	// exec runs one rendered command line; tests replace it.
	exec func(ctx context.Context, shell shelltool.ShellName, command, workdir string) (execResult, error)
}

// execResult is the captured output of one shell command.
type execResult struct {
	exitCode   int
	stdout     string
	stderr     string
	timedOut   bool
	durationMS int64
}

func New(cfg Config) *Runner {
	policy := shelltool.DefaultShellCommandPolicy
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
	r.exec = r.shellExec
	return r
}

// Runnable reports whether the runner can execute installers of this
// kind. Download installers describe a manual step and are never run.
func Runnable(kind spec.InstallKind) bool {
	switch kind {
	case spec.InstallKindBrew, spec.InstallKindGo, spec.InstallKindUV, spec.InstallKindNode:
		return true
	default:
		return false
	}
}

// RunInstall executes one declared installer and captures its outcome.
// It returns an error only for canceled contexts and installers that
// cannot be run at all (spec.ErrInstallerUnavailable); process
// failures and timeouts come back as an Ok=false outcome.
func (r *Runner) RunInstall(ctx context.Context, req spec.InstallRequest) (spec.InstallOutcome, error) {
	if err := ctx.Err(); err != nil {
		return spec.InstallOutcome{}, err
	}

	program, argv, err := installArgv(req.Spec)
	if err != nil {
		return spec.InstallOutcome{}, err
	}
	cmdline := program + " " + strings.Join(argv, " ")

	workdir := strings.TrimSpace(req.RootDir)
	if workdir == "" {
		workdir = os.TempDir()
	}

	shellName, command := buildInstallCommand(program, argv)

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, execErr := r.exec(cctx, shellName, command, workdir)

	out := spec.InstallOutcome{InstallerID: req.InstallerID}
	switch {
	case execErr != nil && ctx.Err() != nil:
		// The caller went away; do not dress this up as an outcome.
		return spec.InstallOutcome{}, ctx.Err()
	case errors.Is(execErr, context.DeadlineExceeded):
		out.TimedOut = true
		out.DurationMS = time.Since(start).Milliseconds()
		out.Message = fmt.Sprintf("%q timed out after %s", cmdline, r.timeout)
	case execErr != nil:
		out.Message = fmt.Sprintf("%q could not run: %v", cmdline, execErr)
	default:
		out.Stdout = res.stdout
		out.Stderr = res.stderr
		out.ExitCode = res.exitCode
		out.TimedOut = res.timedOut
		out.DurationMS = res.durationMS
		switch {
		case res.timedOut:
			out.Message = fmt.Sprintf("%q timed out after %s", cmdline, r.timeout)
		case res.exitCode != 0:
			out.Message = fmt.Sprintf("%q exited with code %d", cmdline, res.exitCode)
		default:
			out.Ok = true
			out.Message = fmt.Sprintf("%q succeeded", cmdline)
		}
	}

	r.logger.Info("installer finished",
		"skill", req.SkillName,
		"installer", req.InstallerID,
		"ok", out.Ok,
		"exitCode", out.ExitCode,
		"timedOut", out.TimedOut)
	return out, nil
}

// installArgv maps a declared installer onto the program and arguments
// to run for it.
func installArgv(ins spec.InstallSpec) (program string, args []string, err error) {
	switch ins.Kind {
	case spec.InstallKindBrew:
		pkg := strings.TrimSpace(ins.Formula)
		if pkg == "" && len(ins.Bins) > 0 {
			pkg = strings.TrimSpace(ins.Bins[0])
		}
		if pkg == "" {
			return "", nil, fmt.Errorf("%w: brew installer %q declares no formula", spec.ErrInstallerUnavailable, ins.ID)
		}
		return "brew", []string{"install", pkg}, nil

	case spec.InstallKindGo:
		mod := strings.TrimSpace(ins.Module)
		if mod == "" {
			return "", nil, fmt.Errorf("%w: go installer %q declares no module", spec.ErrInstallerUnavailable, ins.ID)
		}
		if !strings.Contains(mod, "@") {
			mod += "@latest"
		}
		return "go", []string{"install", mod}, nil

	case spec.InstallKindUV:
		pkg := strings.TrimSpace(ins.Package)
		if pkg == "" {
			return "", nil, fmt.Errorf("%w: uv installer %q declares no package", spec.ErrInstallerUnavailable, ins.ID)
		}
		return "uv", []string{"tool", "install", pkg}, nil

	case spec.InstallKindNode:
		pkg := strings.TrimSpace(ins.Package)
		if pkg == "" {
			return "", nil, fmt.Errorf("%w: node installer %q declares no package", spec.ErrInstallerUnavailable, ins.ID)
		}
		return "npm", []string{"install", "-g", pkg}, nil

	case spec.InstallKindDownload:
		return "", nil, fmt.Errorf("%w: installer %q is a manual download", spec.ErrInstallerUnavailable, ins.ID)

	default:
		return "", nil, fmt.Errorf("%w: unknown installer kind %q", spec.ErrInstallerUnavailable, ins.Kind)
	}
}

// buildInstallCommand picks a shell and renders one command line that
// works cross-platform.
func buildInstallCommand(program string, args []string) (shellName shelltool.ShellName, commandString string) {
	// Windows: prefer pwsh/powershell if available.
	if pathutil.IsWindows() {
		if _, err := exec.LookPath("pwsh"); err == nil {
			return shelltool.ShellNamePwsh, pathutil.PowerShellInvoke(program, args)
		}
		if _, err := exec.LookPath("powershell"); err == nil {
			return shelltool.ShellNamePowershell, pathutil.PowerShellInvoke(program, args)
		}
		return shelltool.ShellNameCmd, pathutil.CmdInvoke(program, args)
	}
	return shelltool.ShellNameSh, pathutil.POSIXInvoke(program, args)
}

// shellExec runs one command through a fresh shelltool instance rooted
// at the workdir.
func (r *Runner) shellExec(ctx context.Context, shell shelltool.ShellName, command, workdir string) (execResult, error) {
	st, err := shelltool.NewShellTool(
		shelltool.WithShellAllowedWorkdirRoots([]string{workdir}),
		shelltool.WithShellCommandPolicy(r.policy),
		// One throwaway session per install run.
		shelltool.WithShellMaxSessions(2),
		shelltool.WithShellSessionTTL(5*time.Minute),
	)
	if err != nil {
		return execResult{}, err
	}

	resp, err := st.Run(ctx, shelltool.ShellCommandArgs{
		Commands: []string{command},
		Workdir:  workdir,
		Shell:    shell,
	})
	if err != nil {
		return execResult{}, err
	}

	out := execResult{}
	if resp != nil && len(resp.Results) > 0 {
		out.exitCode = resp.Results[0].ExitCode
		out.stdout = resp.Results[0].Stdout
		out.stderr = resp.Results[0].Stderr
		out.timedOut = resp.Results[0].TimedOut
		out.durationMS = resp.Results[0].DurationMS
	}
	return out, nil
}
