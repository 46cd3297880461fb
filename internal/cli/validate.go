package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newValidateConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			shown := *cfg
			if shown.Xray.Password != "" {
				shown.Xray.Password = redacted
			}
			if shown.S3 != nil {
				s3 := *shown.S3
				if s3.SecretKey != "" {
					s3.SecretKey = redacted
				}
				if s3.SessionToken != "" {
					s3.SessionToken = redacted
				}
				shown.S3 = &s3
			}
			formatted, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("format config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(formatted))
			fmt.Fprintln(out, "valid")
			return nil
		},
	})
	return cmd
}
