// Package pubtool runs the external package builder. The tool is a black box:
// it takes a project path and an output directory and either produces a
// package or exits non-zero with diagnostic text.
package pubtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultTool is the builder executable looked up when none is configured.
const DefaultTool = "orbis-pub-cmd.exe"

// ErrToolNotFound is returned when no builder executable can be located.
var ErrToolNotFound = errors.New("package builder not found")

// ToolError reports a builder run that exited unsuccessfully. Stderr is the
// tool's diagnostic output, unmodified.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: exit status %d", filepath.Base(e.Tool), strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Result describes a successful build.
type Result struct {
	Package string // Path of the produced package
	Stdout  string
}

// Builder builds a package from a project file.
type Builder interface {
	Build(ctx context.Context, project, outputDir, contentID string) (*Result, error)
}

// Runner invokes the builder executable. Failed runs are never retried.
type Runner struct {
	tool string
	dir  string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkDir sets the working directory the tool runs in.
func WithWorkDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.dir = dir
	}
}

// NewRunner locates the tool and returns a runner for it. An empty tool
// searches PATH and the usual relative locations for DefaultTool.
func NewRunner(tool string, opts ...RunnerOption) (*Runner, error) {
	path, err := Find(tool)
	if err != nil {
		return nil, err
	}

	r := &Runner{tool: path}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Find resolves the builder executable.
func Find(tool string) (string, error) {
	candidates := []string{tool}
	if tool == "" {
		candidates = []string{
			DefaultTool,
			filepath.Join(".", DefaultTool),
			filepath.Join(".", "tools", DefaultTool),
		}
	}

	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrToolNotFound, strings.Join(candidates, ", "))
}

// Tool returns the resolved executable path.
func (r *Runner) Tool() string {
	return r.tool
}

// PackagePath returns where the builder writes the package for a content id.
func PackagePath(outputDir, contentID string) string {
	return filepath.Join(outputDir, contentID+"-A0000-V0100.pkg")
}

// Build runs "<tool> img_create <project> <outputDir>".
func (r *Runner) Build(ctx context.Context, project, outputDir, contentID string) (*Result, error) {
	args := []string{"img_create", project, outputDir}

	cmd := exec.CommandContext(ctx, r.tool, args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		te := &ToolError{Tool: r.tool, Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			te.Err = ctxErr
		}
		return nil, te
	}

	return &Result{
		Package: PackagePath(outputDir, contentID),
		Stdout:  stdout.String(),
	}, nil
}
