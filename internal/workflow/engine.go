// Package workflow provides the execution engine for batched synthesis
// tool runs. It is consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/metrics"
	"github.com/deixis/synthkit/internal/runner"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string, stdin string) (*runner.Result, error)
}

// Engine holds shared dependencies for all workflow operations.
// It keeps no per-run state, so operations may run concurrently.
type Engine struct {
	Config    *config.Config
	Runner    CommandRunner
	Workspace string // tools run from here unless an operation overrides it
	Logger    *zap.Logger
	Metrics   *metrics.Recorder // optional
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// ResolvePath joins a file name with its directory. An empty directory
// means the current one; absolute names are returned unchanged.
func ResolvePath(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}

// QuoteArg wraps s in double quotes when it contains whitespace, a
// separator or a quote, so the tool's command parser keeps it whole.
func QuoteArg(s string, sep byte) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"'\\"+string(sep)) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// CheckTool reports whether the named tool's binary can be found.
func (e *Engine) CheckTool(name string) error {
	tc, err := e.Config.Tool(name)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(tc.Binary); err != nil {
		return NewErrToolUnavailable(tc.Binary)
	}
	return nil
}

// toolInfo holds install metadata for a known tool.
type toolInfo struct {
	Homepage string
	Install  []string
}

// knownTools maps tool binary names to their install metadata.
var knownTools = map[string]toolInfo{
	"abc": {
		Homepage: "https://github.com/berkeley-abc/abc",
		Install:  []string{"git clone https://github.com/berkeley-abc/abc && make -C abc"},
	},
	"yosys": {
		Homepage: "https://github.com/YosysHQ/yosys",
		Install:  []string{"apt install yosys", "brew install yosys"},
	},
}

// ErrToolUnavailable is returned when a required tool is not installed.
// It includes actionable install instructions when the tool is known.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: name}
	if info, ok := knownTools[filepath.Base(name)]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s not found: it is required but not installed or not on PATH.", e.Name)

	if e.Info == nil {
		return b.String()
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "\nSee: %s", e.Info.Homepage)
	if len(e.Info.Install) > 0 {
		fmt.Fprintf(&b, "\nInstall:")
		for _, cmd := range e.Info.Install {
			fmt.Fprintf(&b, "\n  %s", cmd)
		}
	}
	return b.String()
}
