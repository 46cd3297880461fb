package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// CommandScreenshotter runs a command line whose stdout is a PNG image,
// e.g. "import -window root png:-" or a small WebDriver client.
type CommandScreenshotter struct {
	args []string
	dir  string
}

func NewCommandScreenshotter(commandLine, dir string) (*CommandScreenshotter, error) {
	trimmed := strings.TrimSpace(commandLine)
	if trimmed == "" {
		return nil, errors.New("screenshot command is empty")
	}
	args, err := shellwords.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse screenshot command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no args parsed from %q", commandLine)
	}
	return &CommandScreenshotter{args: args, dir: dir}, nil
}

func (s *CommandScreenshotter) Screenshot(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	cmd.Dir = s.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", strings.Join(cmd.Args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", strings.Join(cmd.Args, " "), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: produced no output", strings.Join(cmd.Args, " "))
	}
	return out, nil
}
