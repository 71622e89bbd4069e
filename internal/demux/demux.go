// Package demux splits the single output stream of a batched tool run
// back into per-sub-command segments and decides whether the run as a
// whole succeeded.
package demux

import (
	"fmt"
	"strings"

	"github.com/deixis/synthkit/internal/command"
	"github.com/deixis/synthkit/internal/report"
)

// Split is the attribution of raw output to sub-commands.
type Split struct {
	Keys    []string          // output keys in output order
	Outputs map[string]string // key -> output
	// Problem is empty for a well-formed split and describes why the
	// output did not line up with the issued sub-commands otherwise.
	Problem string
	// Unattributed is set when several sub-commands ran without markers
	// and their output was kept as one block under AllKey.
	Unattributed bool
}

func newSplit() Split {
	return Split{Outputs: make(map[string]string)}
}

// WellFormed reports whether output was attributed without problems.
func (s Split) WellFormed() bool {
	return s.Problem == ""
}

func (s *Split) set(key, output string) {
	if _, ok := s.Outputs[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.Outputs[key] = output
}

// Keys returns one unique output key per sub-command. The first
// occurrence of a name keeps it; later ones get the lowest free "#n"
// suffix from n=2: "balance", "balance#2", "balance#3". A suffix already
// used by another sub-command's own text is skipped.
func Keys(cmds []command.SubCommand) []string {
	used := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		used[c.Name] = true
	}

	first := make(map[string]bool, len(cmds))
	next := make(map[string]int, len(cmds))
	keys := make([]string, len(cmds))
	for i, c := range cmds {
		if !first[c.Name] {
			first[c.Name] = true
			keys[i] = c.Name
			continue
		}
		n := max(next[c.Name], 2)
		key := fmt.Sprintf("%s#%d", c.Name, n)
		for used[key] {
			n++
			key = fmt.Sprintf("%s#%d", c.Name, n)
		}
		used[key] = true
		next[c.Name] = n + 1
		keys[i] = key
	}
	return keys
}

// Demux attributes tool output to sub-commands.
type Demux struct {
	ErrorMarkers Markers
}

// Standard splits raw on marker lines. marker(i) must return the line
// printed after sub-command i. A nil marker means the tool ran without
// markers: a single sub-command receives all output, several share it
// under AllKey.
func (d Demux) Standard(raw string, cmds []command.SubCommand, marker func(i int) string) Split {
	s := newSplit()
	keys := Keys(cmds)

	if marker == nil {
		switch {
		case len(cmds) == 1:
			s.set(keys[0], raw)
		case raw != "":
			s.set(report.AllKey, raw)
			s.Unattributed = len(cmds) > 1
		}
		return s
	}

	// Walk the output line by line. A line equal to the next expected
	// marker closes the current sub-command's segment.
	next := 0
	start := 0
	pos := 0
	for pos < len(raw) && next < len(cmds) {
		end := strings.IndexByte(raw[pos:], '\n')
		lineEnd := len(raw)
		if end >= 0 {
			lineEnd = pos + end + 1
		}
		line := strings.TrimRight(raw[pos:lineEnd], "\r\n")
		if strings.TrimSpace(line) == marker(next) {
			s.set(keys[next], raw[start:pos])
			next++
			start = lineEnd
		}
		pos = lineEnd
	}

	if next < len(cmds) {
		// The tool stopped before printing every marker; whatever is left
		// belongs to the sub-command that was running.
		s.set(keys[next], raw[start:])
		s.Problem = fmt.Sprintf("output ended after %d of %d sub-commands (last: %q)", next, len(cmds), cmds[next].Name)
		return s
	}

	if start < len(raw) {
		s.set(report.RestKey, raw[start:])
	}
	return s
}

// Statistics slices raw at the precomputed end of the statistics
// sub-command cmds[idx]: raw[:end] is keyed by that sub-command and the
// remainder by RestKey.
func (d Demux) Statistics(raw string, cmds []command.SubCommand, idx int) Split {
	s := newSplit()
	if idx < 0 || idx >= len(cmds) {
		s.set(report.AllKey, raw)
		s.Problem = "no statistics sub-command"
		return s
	}

	key := Keys(cmds)[idx]
	end := cmds[idx].CumulativeLength
	switch {
	case end == command.Unknown:
		s.set(key, raw)
		s.Problem = fmt.Sprintf("output length of %q is not known in advance", cmds[idx].Name)
	case len(raw) < end:
		s.set(key, raw)
		s.Problem = fmt.Sprintf("output is %d bytes, statistics expected to end at %d", len(raw), end)
	default:
		s.set(key, raw[:end])
		s.set(report.RestKey, raw[end:])
	}
	return s
}

// Exec is the executor's view of a finished run.
type Exec struct {
	Launched  bool
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Err       error // launch error, if any
}

// Fill copies split into o and decides o.Correct. The error markers are
// checked against the full raw output, so an error printed by any one
// sub-command fails the whole batch.
func (d Demux) Fill(o *report.Outcome, exec Exec, raw string, split Split) {
	o.ExitCode = exec.ExitCode
	if !exec.Launched {
		msg := "failed to launch"
		if exec.Err != nil {
			msg = exec.Err.Error()
		}
		o.Fail(report.LaunchFailure, msg)
		o.Set(o.Command, string(o.Failure)+": "+o.Detail)
		return
	}

	for _, k := range split.Keys {
		o.Set(k, split.Outputs[k])
	}
	o.Unattributed = split.Unattributed
	o.Correct = true

	switch {
	case exec.TimedOut:
		o.Fail(report.Timeout, "process killed after exceeding its timeout")
	case exec.ExitCode != 0:
		o.Fail(report.ToolError, fmt.Sprintf("exit status %d", exec.ExitCode))
	}

	if m, ok := d.ErrorMarkers.Find(raw); ok {
		o.Fail(report.ToolError, fmt.Sprintf("output contains error marker %q", m))
	}
	if exec.Truncated {
		o.Fail(report.Malformed, "output exceeded the capture limit and was truncated")
	}
	if !split.WellFormed() {
		o.Fail(report.Malformed, split.Problem)
	}

	// A failure diagnostic lives under the attempted command text.
	if !o.Correct && o.Command != "" {
		prev, ok := o.Outputs[o.Command]
		diag := string(o.Failure) + ": " + o.Detail
		if ok && prev != "" {
			diag = prev + "\n" + diag
		}
		o.Set(o.Command, diag)
	}
}
