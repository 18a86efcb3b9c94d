package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// CommandResult holds the result of one shell command. A nonzero exit is
// reported here, not as an error.
type CommandResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Succeeded  bool   `json:"succeeded"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output is the text fed back to the model: stdout on success, stderr
// otherwise.
func (r CommandResult) Output() string {
	if r.Succeeded {
		return r.Stdout
	}
	if r.TimedOut && r.Stderr == "" {
		return fmt.Sprintf("command timed out after %dms", r.DurationMs)
	}
	return r.Stderr
}

// CommandExecutor runs shell command text.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (*CommandResult, error)
	WorkingDirectory() string
}

// SpawnError reports that the shell process could not be started.
type SpawnError struct {
	Shell string
	Dir   string
	Cause error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s in %s: %v", e.Shell, e.Dir, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// OutputDecodeError reports command output that is not valid UTF-8 text.
type OutputDecodeError struct {
	Stream string
}

func (e *OutputDecodeError) Error() string {
	return fmt.Sprintf("command %s is not valid UTF-8", e.Stream)
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are never passed to commands.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// sensitiveEnvNames are dropped by exact name.
var sensitiveEnvNames = map[string]bool{
	"CREDENTIAL":     true,
	"LOG_SINK_TOKEN": true,
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if sensitiveEnvNames[upper] {
		return true
	}
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment drops sensitive variables from environ.
func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// LocalExecutor runs commands through a shell on the local machine with the
// working directory pinned to the sandbox.
type LocalExecutor struct {
	workingDir string
	shell      string
	timeout    time.Duration
	environ    func() []string
}

// ExecutorOption configures a LocalExecutor.
type ExecutorOption func(*LocalExecutor)

// WithShell replaces the default /bin/sh.
func WithShell(shell string) ExecutorOption {
	return func(e *LocalExecutor) {
		if shell != "" {
			e.shell = shell
		}
	}
}

// WithCommandTimeout bounds each command. Zero disables the bound.
func WithCommandTimeout(d time.Duration) ExecutorOption {
	return func(e *LocalExecutor) {
		e.timeout = d
	}
}

// NewLocalExecutor creates an executor rooted at workingDir. Relative paths
// are resolved against the current directory.
func NewLocalExecutor(workingDir string, opts ...ExecutorOption) *LocalExecutor {
	if abs, err := filepath.Abs(workingDir); err == nil {
		workingDir = abs
	}
	e := &LocalExecutor{
		workingDir: workingDir,
		shell:      "/bin/sh",
		environ:    os.Environ,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize creates the sandbox directory.
func (e *LocalExecutor) Initialize() error {
	if err := os.MkdirAll(e.workingDir, 0o755); err != nil {
		return fmt.Errorf("creating sandbox %s: %w", e.workingDir, err)
	}
	return nil
}

func (e *LocalExecutor) WorkingDirectory() string {
	return e.workingDir
}

// Platform returns the GOOS/GOARCH pair commands run on.
func (e *LocalExecutor) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Shell returns the shell binary commands are passed to.
func (e *LocalExecutor) Shell() string {
	return e.shell
}

// Execute runs command with "<shell> -c". The command text is passed through
// unmodified.
func (e *LocalExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.shell, "-c", command)
	cmd.Dir = e.workingDir
	cmd.Env = filterEnvironment(e.environ())

	// Own process group so a timeout takes children down too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &CommandResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Succeeded:  err == nil,
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("executing command: %w", ctx.Err())
		case runCtx.Err() == context.DeadlineExceeded:
			result.TimedOut = true
			result.ExitCode = -1
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, &SpawnError{Shell: e.shell, Dir: e.workingDir, Cause: err}
		}
	}

	if !utf8.ValidString(result.Stdout) {
		return nil, &OutputDecodeError{Stream: "stdout"}
	}
	if !utf8.ValidString(result.Stderr) {
		return nil, &OutputDecodeError{Stream: "stderr"}
	}
	return result, nil
}
