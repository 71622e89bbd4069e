package command

import (
	"strings"
)

// Unknown is the CumulativeLength of a sub-command whose output end
// cannot be computed before the tool runs.
const Unknown = -1

// DefaultSeparator joins sub-commands for both ABC and Yosys.
const DefaultSeparator = ';'

// Mode selects how the output of a composite command is attributed.
type Mode string

const (
	// Standard attributes output using markers printed between sub-commands.
	Standard Mode = "standard"
	// Statistics slices output at the precomputed end of one designated
	// sub-command.
	Statistics Mode = "statistics"
)

// SubCommand describes one logical directive within a composite command.
type SubCommand struct {
	Name string `json:"name"` // trimmed sub-command text

	// CumulativeLength is the byte offset, from the start of the output
	// stream, at which this sub-command's output ends. Unknown when any
	// sub-command up to and including this one has unpredictable output.
	CumulativeLength int `json:"cumulative_length"`
}

// Verb returns the first word of the sub-command, e.g. "read" for "read in.v".
func (c SubCommand) Verb() string {
	return Verb(c.Name)
}

// Verb returns the first whitespace-separated word of s.
func Verb(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// Segmenter splits composite commands into SubCommands.
type Segmenter struct {
	// Separator joins sub-commands. Zero means DefaultSeparator.
	Separator byte

	// Lengths maps a verb to the exact number of bytes the tool prints
	// for it. Verbs not listed have unknown output length.
	Lengths map[string]int
}

// Segment parses composite into its sub-commands in issue order.
// An empty composite yields an empty slice.
func (s Segmenter) Segment(composite string) []SubCommand {
	parts := Split(composite, s.separator())
	cmds := make([]SubCommand, 0, len(parts))

	total := 0
	for _, p := range parts {
		if total != Unknown {
			n, ok := s.Lengths[Verb(p)]
			if ok && n >= 0 {
				total += n
			} else {
				total = Unknown
			}
		}
		cmds = append(cmds, SubCommand{Name: p, CumulativeLength: total})
	}
	return cmds
}

func (s Segmenter) separator() byte {
	if s.Separator == 0 {
		return DefaultSeparator
	}
	return s.Separator
}

// Split splits composite on sep, ignoring separators inside single or
// double quotes and separators escaped with a backslash. A quote opens
// only at the start of a word, so an apostrophe inside a word ("don't")
// is plain text. Pieces are trimmed and empty pieces dropped.
func Split(composite string, sep byte) []string {
	var (
		parts   []string
		quote   byte
		escaped bool
		start   int
	)

	flush := func(end int) {
		if p := strings.TrimSpace(composite[start:end]); p != "" {
			parts = append(parts, p)
		}
	}

	for i := 0; i < len(composite); i++ {
		c := composite[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case (c == '"' || c == '\'') && wordStart(composite, i, sep):
			quote = c
		case c == sep:
			flush(i)
			start = i + 1
		}
	}
	flush(len(composite))
	return parts
}

func wordStart(s string, i int, sep byte) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case ' ', '\t', '\n', '\r', sep:
		return true
	}
	return false
}

// StatsIndex returns the index of the first sub-command whose verb is
// verb. ok is false when no such sub-command exists or its cumulative
// length is Unknown, in which case statistics mode cannot be used.
func StatsIndex(cmds []SubCommand, verb string) (idx int, ok bool) {
	for i, c := range cmds {
		if c.Verb() == verb {
			return i, c.CumulativeLength != Unknown
		}
	}
	return -1, false
}

// Interleave joins cmds with sep, appending after every sub-command a
// marker command built from markerTemplate (one placeholder) and marker(i).
func Interleave(cmds []SubCommand, sep byte, markerTemplate string, marker func(i int) string) (string, error) {
	if len(cmds) == 0 {
		return "", nil
	}

	joiner := string(sep) + " "
	parts := make([]string, 0, 2*len(cmds))
	for i, c := range cmds {
		m, err := Format(markerTemplate, marker(i))
		if err != nil {
			return "", err
		}
		parts = append(parts, c.Name, m)
	}
	return strings.Join(parts, joiner), nil
}
