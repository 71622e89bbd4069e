// Package command builds composite tool commands and splits them back
// into the ordered sub-commands they were made of.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholder is the marker replaced by Format.
const Placeholder = '%'

// ErrArgumentCountMismatch is returned when a template's placeholder count
// differs from the number of supplied values.
var ErrArgumentCountMismatch = errors.New("argument count mismatch")

// Format replaces each placeholder in template, left to right, with the
// fmt.Sprint form of the corresponding value.
func Format(template string, values ...any) (string, error) {
	n := strings.Count(template, string(Placeholder))
	if n != len(values) {
		return "", fmt.Errorf("%w: template %q has %d placeholders, got %d values",
			ErrArgumentCountMismatch, template, n, len(values))
	}

	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for _, v := range values {
		j := strings.IndexByte(rest, Placeholder)
		b.WriteString(rest[:j])
		fmt.Fprint(&b, v)
		rest = rest[j+1:]
	}
	b.WriteString(rest)
	return b.String(), nil
}
