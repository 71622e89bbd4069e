package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/synthkit/internal/report"
)

type inspectParams struct {
	RunID   string `json:"run_id" jsonschema:"the run ID from a previous synthkit result"`
	Command string `json:"command" jsonschema:"sub-command text as listed in the result (e.g. 'read adder.v', 'balance#2'), or a verb for all its occurrences (e.g. 'balance'), or __rest__"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Command == "" {
		return errorResult("command is required")
	}

	o, entries, err := report.Lookup(h.store, params.RunID, params.Command)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if len(entries) == 0 {
		return textResult(fmt.Sprintf("No output recorded for %q in run %s (%s %s). Sub-commands: %s",
			params.Command, params.RunID, o.Tool, o.Operation, strings.Join(o.Keys, ", ")))
	}

	return textResult(formatInspectOutput(o, entries))
}

func formatInspectOutput(o *report.Outcome, entries []report.Entry) string {
	var b strings.Builder

	status := "PASS"
	if !o.Correct {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Run: %s (%s %s, %s)\n", o.ID, o.Tool, o.Operation, status)

	for _, e := range entries {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s:\n", e.Key)
		if e.Output == "" {
			fmt.Fprintln(&b, "    (no output)")
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(e.Output, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	return b.String()
}
