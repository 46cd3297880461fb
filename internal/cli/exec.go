package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codalotl/xrayreport/internal/output"
)

func newExecCmd(flags *globalFlags) *cobra.Command {
	var commandLine string
	var dir string
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "exec [--cmd=<command line>] [-- runner args...]",
		Short: "Run a test runner and report the events it prints on stdout",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			argv, err := runnerArgs(commandLine, args)
			if err != nil {
				return err
			}
			s, err := newSession(ctx, flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.close(); err == nil {
					err = closeErr
				}
			}()
			return runRunner(ctx, s.printer, dir, argv, func(ctx context.Context, r io.Reader) error {
				return s.consume(ctx, r)
			})
		},
	})
	cmd.Flags().StringVar(&commandLine, "cmd", "", "runner command line, split like a shell would")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory for the runner")
	return cmd
}

func runnerArgs(commandLine string, args []string) ([]string, error) {
	if commandLine != "" && len(args) > 0 {
		return nil, errors.New("use either --cmd or arguments after --, not both")
	}
	if commandLine != "" {
		argv, err := shellwords.Parse(commandLine)
		if err != nil {
			return nil, fmt.Errorf("parse --cmd: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("--cmd is empty")
		}
		return argv, nil
	}
	if len(args) == 0 {
		return nil, errors.New("required flag --cmd or a command after -- is missing")
	}
	return args, nil
}

// runRunner starts argv, hands its stdout to consume, and relays its stderr through the printer.
// A consume error wins over the runner's exit status.
func runRunner(ctx context.Context, printer *output.Printer, dir string, argv []string, consume func(context.Context, io.Reader) error) error {
	if err := printer.Command(argv[0], argv[1:]...); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consume(gctx, stdout)
		// Keep draining so the runner never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(printer.CommandOutput(), stderr)
		return err
	})
	consumeErr := g.Wait()
	waitErr := cmd.Wait()

	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return fmt.Errorf("runner failed: %w", waitErr)
	}
	return nil
}
