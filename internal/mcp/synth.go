package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/report"
	"github.com/deixis/synthkit/internal/workflow"
)

// maxInlineOutput bounds how much sub-command output a summary repeats.
const maxInlineOutput = 4096

type abcParams struct {
	Input   string `json:"input" jsonschema:"circuit file name, relative to file_dir"`
	Lib     string `json:"lib,omitempty" jsonschema:"liberty file name, relative to lib_dir; required except for abc_bench"`
	FileDir string `json:"file_dir,omitempty" jsonschema:"directory of the circuit file, relative to the workspace. Default: ."`
	LibDir  string `json:"lib_dir,omitempty" jsonschema:"directory of the liberty file, relative to the workspace. Default: ."`
	Output  string `json:"output,omitempty" jsonschema:"file name to write the result to, relative to file_dir"`
}

func (p abcParams) paths() workflow.Paths {
	return workflow.Paths{Input: p.Input, Lib: p.Lib, FileDir: p.FileDir, LibDir: p.LibDir, Output: p.Output}
}

type yosysParams struct {
	Input   string `json:"input" jsonschema:"Verilog file name, relative to file_dir"`
	FileDir string `json:"file_dir,omitempty" jsonschema:"directory of the Verilog file, relative to the workspace. Default: ."`
	Output  string `json:"output,omitempty" jsonschema:"file name to write the result to, relative to file_dir"`
}

func (p yosysParams) paths() workflow.Paths {
	return workflow.Paths{Input: p.Input, FileDir: p.FileDir, Output: p.Output}
}

type batchParams struct {
	Tool       string `json:"tool" jsonschema:"abc or yosys"`
	Command    string `json:"command" jsonschema:"sub-commands separated by ';', e.g. 'read adder.v; strash; print_stats'"`
	Statistics bool   `json:"statistics,omitempty" jsonschema:"attribute output by precomputed offset of the statistics command instead of markers"`
}

func (h *handler) abcStatsHandler(ctx context.Context, req *mcp.CallToolRequest, params abcParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.ABCStats(ctx, params.paths()))
}

func (h *handler) abcResyn2Handler(ctx context.Context, req *mcp.CallToolRequest, params abcParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.ABCResyn2(ctx, params.paths()))
}

func (h *handler) abcMapHandler(ctx context.Context, req *mcp.CallToolRequest, params abcParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.ABCOptimizeWithLib(ctx, params.paths()))
}

func (h *handler) abcBenchHandler(ctx context.Context, req *mcp.CallToolRequest, params abcParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.ABCVerilogToBench(ctx, params.paths()))
}

func (h *handler) yosysOptHandler(ctx context.Context, req *mcp.CallToolRequest, params yosysParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.YosysOptVerilog(ctx, params.paths()))
}

func (h *handler) yosysFirrtlHandler(ctx context.Context, req *mcp.CallToolRequest, params yosysParams) (*mcp.CallToolResult, any, error) {
	return h.respond(h.engine.YosysWriteFirrtl(ctx, params.paths()))
}

func (h *handler) batchHandler(ctx context.Context, req *mcp.CallToolRequest, params batchParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Command) == "" {
		return errorResult("command is required")
	}
	mode := command.Standard
	if params.Statistics {
		mode = command.Statistics
	}
	return h.respond(h.engine.Batch(ctx, params.Tool, params.Command, mode))
}

// respond saves the outcome for synth_inspect and renders its summary.
func (h *handler) respond(o *report.Outcome, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}
	if err := h.store.Save(o); err != nil {
		h.logger.Warn("saving outcome", zap.String("run_id", o.ID), zap.Error(err))
	}
	return textResult(formatOutcome(o))
}

func formatOutcome(o *report.Outcome) string {
	var b strings.Builder

	if o.Correct {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", o.ID)
	fmt.Fprintf(&b, "Tool: %s %s (%s mode, exit %d, %s)\n", o.Tool, o.Operation, o.Mode, o.ExitCode, o.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Command: %s\n", o.Command)
	if !o.Correct {
		fmt.Fprintf(&b, "Failure: %s: %s\n", o.Failure, o.Detail)
	}
	if o.Unattributed {
		fmt.Fprintln(&b, "Note: markers were disabled, output is not split per sub-command.")
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Sub-commands:")
	for _, k := range o.Keys {
		if k == o.Command && !o.Correct {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", k, sizeOf(o.Outputs[k]))
	}
	fmt.Fprintln(&b)

	budget := maxInlineOutput
	elided := false
	for _, k := range o.Keys {
		out := o.Outputs[k]
		if out == "" || (k == o.Command && !o.Correct) {
			continue
		}
		if len(out) > budget {
			elided = true
			continue
		}
		budget -= len(out)
		fmt.Fprintf(&b, "== %s ==\n", k)
		fmt.Fprint(&b, out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Fprintln(&b)
		}
	}
	if elided {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Some output was omitted. Inspect with synth_inspect(run_id=%q, command=\"<sub-command or verb>\").\n", o.ID)
	}
	return b.String()
}

func sizeOf(out string) string {
	if out == "" {
		return "no output"
	}
	lines := strings.Count(out, "\n")
	if !strings.HasSuffix(out, "\n") {
		lines++
	}
	if lines == 1 {
		return fmt.Sprintf("1 line, %d bytes", len(out))
	}
	return fmt.Sprintf("%d lines, %d bytes", lines, len(out))
}
