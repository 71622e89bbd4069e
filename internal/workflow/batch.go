package workflow

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/config"
	"github.com/deixis/synthkit/internal/demux"
	"github.com/deixis/synthkit/internal/report"
)

// Request describes one batched tool operation.
type Request struct {
	Tool      string       // config.ABC or config.Yosys
	Operation string       // label recorded in the outcome and metrics
	Template  string       // composite command with % placeholders
	Values    []any        // one per placeholder
	Mode      command.Mode // zero means command.Standard
	Dir       string       // working directory, relative to the workspace
}

// Run formats the request's template and executes the composite command
// as a single tool invocation.
//
// The returned error is reserved for programmer errors: a placeholder
// count mismatch or an unknown tool. Everything that goes wrong while
// running the tool is reported through the outcome.
func (e *Engine) Run(ctx context.Context, req Request) (*report.Outcome, error) {
	composite, err := command.Format(req.Template, req.Values...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Tool, req.Operation, err)
	}
	return e.execute(ctx, req, composite)
}

// Batch executes an already formatted composite command.
func (e *Engine) Batch(ctx context.Context, tool, composite string, mode command.Mode) (*report.Outcome, error) {
	return e.execute(ctx, Request{Tool: tool, Operation: "batch", Mode: mode}, composite)
}

func (e *Engine) execute(ctx context.Context, req Request, composite string) (*report.Outcome, error) {
	tc, err := e.Config.Tool(req.Tool)
	if err != nil {
		return nil, err
	}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Tool, err)
	}
	sep := tc.Separator[0]
	log := e.logger().With(zap.String("tool", req.Tool), zap.String("operation", req.Operation))

	seg := command.Segmenter{Separator: sep, Lengths: tc.Lengths}
	cmds := seg.Segment(composite)

	mode := req.Mode
	if mode == "" {
		mode = command.Standard
	}
	statsIdx := -1
	if mode == command.Statistics {
		idx, ok := command.StatsIndex(cmds, tc.StatsCommand)
		if !ok {
			log.Debug("statistics offset unknown, falling back to standard mode",
				zap.String("stats_command", tc.StatsCommand))
			mode = command.Standard
		}
		statsIdx = idx
	}

	sent := composite
	var marker func(int) string
	if mode == command.Standard && tc.MarkerCommand() != "" && len(cmds) > 0 {
		b := demux.NewBoundary()
		marker = b.Marker
		sent, err = command.Interleave(cmds, sep, tc.MarkerCommand(), marker)
		if err != nil {
			return nil, fmt.Errorf("%s: marker command: %w", req.Tool, err)
		}
	}

	argv, stdin := buildArgv(tc, sent)
	log.Debug("running batch",
		zap.Int("sub_commands", len(cmds)),
		zap.String("mode", string(mode)),
		zap.String("command", composite))

	d := demux.Demux{ErrorMarkers: demux.Markers(tc.ErrorMarkers)}

	res, runErr := e.Runner.Run(ctx, argv, req.Dir, stdin)
	if runErr != nil {
		o := report.NewOutcome(uuid.New().String(), req.Tool, req.Operation, composite)
		o.Mode = string(mode)
		if errors.Is(runErr, exec.ErrNotFound) {
			runErr = fmt.Errorf("%w (%v)", NewErrToolUnavailable(tc.Binary), runErr)
		}
		d.Fill(o, demux.Exec{Err: runErr}, "", demux.Split{})
		e.finish(log, o, 0)
		return o, nil
	}

	raw := string(res.Output)
	var split demux.Split
	if mode == command.Statistics {
		split = d.Statistics(raw, cmds, statsIdx)
	} else {
		split = d.Standard(raw, cmds, marker)
	}

	o := report.NewOutcome(res.RunID, req.Tool, req.Operation, composite)
	o.Mode = string(mode)
	o.Duration = res.Duration
	d.Fill(o, demux.Exec{
		Launched:  true,
		ExitCode:  res.ExitCode,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
	}, raw, split)

	e.finish(log, o, len(res.Output))
	return o, nil
}

func (e *Engine) finish(log *zap.Logger, o *report.Outcome, outputBytes int) {
	e.Metrics.RecordRun(o.Tool, o.Operation, string(o.Failure), o.Duration, outputBytes)
	if o.Correct {
		log.Info("batch finished", zap.String("run_id", o.ID), zap.Duration("elapsed", o.Duration))
		return
	}
	log.Warn("batch failed",
		zap.String("run_id", o.ID),
		zap.String("failure", string(o.Failure)),
		zap.String("detail", o.Detail))
}

// buildArgv substitutes the composite into the tool's argv. Without a
// placeholder the composite is returned as standard input instead.
func buildArgv(tc config.ToolConfig, composite string) (argv []string, stdin string) {
	argv = make([]string, 0, len(tc.Args)+1)
	argv = append(argv, tc.Binary)
	placed := false
	for _, a := range tc.Args {
		if strings.Contains(a, config.CommandPlaceholder) {
			a = strings.ReplaceAll(a, config.CommandPlaceholder, composite)
			placed = true
		}
		argv = append(argv, a)
	}
	if !placed {
		stdin = composite + "\n"
	}
	return argv, stdin
}
