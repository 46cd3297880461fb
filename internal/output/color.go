package output

import (
	"io"
	"os"

	"golang.org/x/term"
)

var getenv = os.Getenv

// ColorEnabled honors NO_COLOR, CLICOLOR, CLICOLOR_FORCE, and CI, then asks whether w is a terminal.
func ColorEnabled(w io.Writer) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if forced := getenv("CLICOLOR_FORCE"); forced != "" && forced != "0" {
		return true
	}
	if getenv("CLICOLOR") == "0" || getenv("CI") != "" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
