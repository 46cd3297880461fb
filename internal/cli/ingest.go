package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "ingest [events.jsonl|-]",
		Short: "Build and deliver a report from a JSON-lines event stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
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
			return s.consume(ctx, in)
		},
	})
	return cmd
}
