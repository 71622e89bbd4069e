package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/workflow"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ workspaceParams) (*sdkmcp.CallToolResult, any, error) {
	var b strings.Builder
	cfg := h.engine.Config

	fmt.Fprintf(&b, "Workspace: %s\n", h.engine.Workspace)
	fmt.Fprintf(&b, "Config root: %s\n", h.root)
	fmt.Fprintf(&b, "Timeout: %s\n", cfg.Timeout())
	fmt.Fprintf(&b, "Max output: %d bytes\n", cfg.MaxOutputBytes())
	fmt.Fprintln(&b)

	for _, name := range []string{config.ABC, config.Yosys} {
		tc, err := cfg.Tool(name)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to resolve %s: %v", name, err))
		}

		status := "available"
		if err := h.engine.CheckTool(name); err != nil {
			var unavailable workflow.ErrToolUnavailable
			if errors.As(err, &unavailable) {
				status = "unavailable"
			} else {
				status = "error: " + err.Error()
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", name, status)
		fmt.Fprintf(&b, "  command: %s %s\n", tc.Binary, strings.Join(tc.Args, " "))
		if m := tc.MarkerCommand(); m != "" {
			fmt.Fprintf(&b, "  marker: %s\n", m)
		} else {
			fmt.Fprintln(&b, "  marker: disabled")
		}
		fmt.Fprintf(&b, "  statistics: %s\n", tc.StatsCommand)
	}

	return textResult(b.String())
}
