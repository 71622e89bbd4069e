// Package report holds the outcome of a batched tool run and provides
// structured persistence and retrieval of those outcomes. Outcomes can be
// queried by sub-command name or verb.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Failure classifies why an outcome is not correct.
type Failure string

const (
	// None means the run succeeded.
	None Failure = ""
	// LaunchFailure means the subprocess could not be started.
	LaunchFailure Failure = "launch_failure"
	// ToolError means the tool exited non-zero or printed an error marker.
	ToolError Failure = "tool_error"
	// Timeout means the subprocess exceeded its time budget and was killed.
	Timeout Failure = "timeout"
	// Malformed means the output could not be attributed to the
	// sub-commands as issued (missing markers, short or truncated output).
	Malformed Failure = "malformed"
)

// Reserved output keys.
const (
	// RestKey holds output following the last attributed sub-command.
	RestKey = "__rest__"
	// AllKey holds output that could not be attributed per sub-command.
	AllKey = "__all__"
)

// Store persists and retrieves outcomes.
type Store interface {
	Save(outcome *Outcome) error
	Load(runID string) (*Outcome, error)
}

// Outcome is the result of one batched tool invocation.
type Outcome struct {
	ID        string `json:"id"`
	Tool      string `json:"tool"`
	Operation string `json:"operation"`
	Command   string `json:"command"` // composite as formatted, without markers
	Mode      string `json:"mode"`

	// Correct is true only when the process succeeded, no error marker was
	// printed and the output split cleanly across the sub-commands.
	Correct bool    `json:"correct"`
	Failure Failure `json:"failure,omitempty"`
	Detail  string  `json:"detail,omitempty"`

	// Outputs maps sub-command name to its output. Keys lists the map keys
	// in the order the output appeared.
	Outputs map[string]string `json:"outputs"`
	Keys    []string          `json:"keys"`
	// Unattributed is set when several sub-commands ran without boundary
	// markers and their output is kept whole under AllKey.
	Unattributed bool `json:"unattributed,omitempty"`

	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// NewOutcome returns an empty outcome with an allocated output map.
func NewOutcome(id, tool, operation, command string) *Outcome {
	return &Outcome{
		ID:        id,
		Tool:      tool,
		Operation: operation,
		Command:   command,
		Outputs:   make(map[string]string),
	}
}

// Set records output under key, keeping Keys in insertion order.
func (o *Outcome) Set(key, output string) {
	if _, ok := o.Outputs[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Outputs[key] = output
}

// Fail marks the outcome incorrect. The first recorded failure wins.
func (o *Outcome) Fail(f Failure, detail string) {
	o.Correct = false
	if o.Failure == None {
		o.Failure = f
		o.Detail = detail
	}
}

// Err returns nil for a correct outcome and a descriptive error otherwise.
func (o *Outcome) Err() error {
	if o.Correct {
		return nil
	}
	if o.Detail != "" {
		return fmt.Errorf("%s %s: %s: %s", o.Tool, o.Operation, o.Failure, o.Detail)
	}
	return fmt.Errorf("%s %s: %s", o.Tool, o.Operation, o.Failure)
}

// Entry is one sub-command's output selected from an outcome.
type Entry struct {
	Key    string
	Output string
}

// ByCommand returns the entries whose key equals query, or, when there
// is no exact match, whose verb equals query (including "#n" duplicates).
// Entries are returned in output order.
func ByCommand(o *Outcome, query string) []Entry {
	query = strings.TrimSpace(query)
	if out, ok := o.Outputs[query]; ok {
		return []Entry{{Key: query, Output: out}}
	}

	var entries []Entry
	for _, k := range o.Keys {
		if verbOf(k) == query {
			entries = append(entries, Entry{Key: k, Output: o.Outputs[k]})
		}
	}
	return entries
}

// verbOf returns the first word of a key, ignoring any "#n" suffix.
func verbOf(key string) string {
	if i := strings.LastIndex(key, "#"); i > 0 && isDigits(key[i+1:]) {
		key = key[:i]
	}
	if i := strings.IndexAny(key, " \t"); i >= 0 {
		return key[:i]
	}
	return key
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
