// Package testkey extracts the issue key embedded in suite and spec names,
// e.g. "Login page @PROJ-123 shows the form" -> "PROJ-123".
package testkey

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultDelimiter marks the start of the embedded key.
const DefaultDelimiter = "@"

var ErrNoKey = errors.New("no test key")

// ExtractWith returns the text between the first delimiter and the next whitespace.
// An empty delimiter means DefaultDelimiter.
func ExtractWith(raw, delimiter string) (string, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	_, rest, found := strings.Cut(raw, delimiter)
	if !found {
		return "", fmt.Errorf("%w: %q has no %q", ErrNoKey, raw, delimiter)
	}
	key := rest
	if idx := strings.IndexFunc(rest, unicode.IsSpace); idx >= 0 {
		key = rest[:idx]
	}
	if key == "" {
		return "", fmt.Errorf("%w: %q has nothing after %q", ErrNoKey, raw, delimiter)
	}
	return key, nil
}
