package demux

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Markers is a list of substrings whose presence in tool output means
// the run failed, even when the process exited zero. Matching ignores case.
type Markers []string

// Find returns the first marker contained in out.
func (m Markers) Find(out string) (string, bool) {
	if len(m) == 0 || out == "" {
		return "", false
	}
	lower := strings.ToLower(out)
	for _, marker := range m {
		if marker == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(marker)) {
			return marker, true
		}
	}
	return "", false
}

// Boundary generates the per-run marker lines injected between
// sub-commands in standard mode.
type Boundary struct {
	nonce string
}

// NewBoundary returns a Boundary with a fresh random nonce.
func NewBoundary() Boundary {
	return Boundary{nonce: strings.ReplaceAll(uuid.NewString(), "-", "")}
}

// Marker returns the line printed after sub-command i.
func (b Boundary) Marker(i int) string {
	return fmt.Sprintf("@@synthkit:%s:%d@@", b.nonce, i)
}
