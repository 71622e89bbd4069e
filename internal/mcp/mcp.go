// Package mcp provides the synthkit MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/synthkit"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/metrics"
	"github.com/deixis/synthkit/internal/report"
	"github.com/deixis/synthkit/internal/runner"
	"github.com/deixis/synthkit/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	runner *runner.Runner // retained for updateWorkspaceFromRoots
	store  report.Store
	logger *zap.Logger
	root   string // directory the config was loaded from
}

// NewServer creates an MCP server with all synthkit tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{logger: zap.NewNop()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		engine: &workflow.Engine{
			Config:    cfg,
			Runner:    r,
			Workspace: workspace,
			Logger:    so.logger,
			Metrics:   so.metrics,
		},
		runner: r,
		store:  store,
		logger: so.logger,
		root:   workspace,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "synthkit", Version: synthkit.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "synth_workspace",
		Description: "Summarise the workspace: configuration, timeouts and whether abc and yosys are installed.",
	}, h.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "abc_stats",
		Description: `Map a circuit with a liberty file in ABC and print its statistics.

Runs read_lib; read; map; print_stats as one ABC invocation. The print_stats
output is returned on its own. Results are stored for drill-down via synth_inspect.`,
	}, h.abcStatsHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "abc_resyn2",
		Description: `Optimise a circuit with ABC's resyn2 script, map it and write it back.

The result overwrites the input unless "output" is set.`,
	}, h.abcResyn2Handler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "abc_map",
		Description: `Technology-map a circuit against a liberty file with ABC (strash; dch; map; topo).

The result overwrites the input unless "output" is set.`,
	}, h.abcMapHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "abc_bench",
		Description: `Convert a circuit to BENCH format with ABC. Writes <stem>.bench next to the input unless "output" is set.`,
	}, h.abcBenchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "yosys_opt",
		Description: `Elaborate and optimise a Verilog design with Yosys (proc; opt) and write Verilog back to the input unless "output" is set.`,
	}, h.yosysOptHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "yosys_firrtl",
		Description: `Elaborate and optimise a Verilog design with Yosys and write it as FIRRTL (<stem>.fir unless "output" is set).`,
	}, h.yosysFirrtlHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "synth_batch",
		Description: `Run an arbitrary ";"-separated command sequence in abc or yosys as one process.

Each sub-command's output is attributed separately. The batch is correct only if
the tool exits 0, prints no error marker and every sub-command completed.`,
	}, h.batchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "synth_inspect",
		Description: `Show the full output of sub-commands from an earlier run.

Use the run_id from a previous result and a sub-command: either its exact text
(e.g. "read adder.v", "balance#2") or just its verb (e.g. "balance") for all occurrences.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the synthkit MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// WithLogger sets the logger used by the server and its engine.
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records every tool run in m.
func WithMetrics(m *metrics.Recorder) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's engine, runner, and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.logger.Warn("ignoring workspace root", zap.String("root", workspace), zap.Error(err))
		return
	}

	h.runner.Workspace = workspace
	h.runner.Timeout = loaded.Config.Timeout()
	h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
	h.runner.MergeOutput = loaded.Config.MergeOutputStreams()

	h.engine.Config = loaded.Config
	h.engine.Workspace = workspace
	h.root = loaded.Root
	h.logger.Info("workspace updated from client roots", zap.String("workspace", workspace))
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
