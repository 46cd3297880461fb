package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codalotl/xrayreport/internal/config"
)

// Execute runs the CLI.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	executed, err := root.ExecuteContextC(ctx)
	if err != nil {
		maybePrintUsage(executed, root, err)
	}
	return err
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	runID      string
	noColor    bool
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := silenceUsageAndErrors(&cobra.Command{
		Use:   "xrayreport",
		Short: "Aggregate test runner events into an Xray execution report.",
	})
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default "+config.DefaultPath+" if present)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", config.DefaultEnvFile, "dotenv file read before environment overrides")
	root.PersistentFlags().StringVar(&flags.runID, "run-id", "", "run id used in logs and report names (default: random uuid)")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "never color output")

	root.AddCommand(newIngestCmd(flags))
	root.AddCommand(newExecCmd(flags))
	root.AddCommand(newValidateConfigCmd(flags))
	return root
}

func (f *globalFlags) load() (*config.Config, error) {
	path := f.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return config.Load(config.LoadOptions{
		Path:      path,
		EnvFile:   f.envFile,
		LookupEnv: lookupEnv,
	})
}

func silenceUsageAndErrors(cmd *cobra.Command) *cobra.Command {
	silenceErrors(cmd)
	cmd.SilenceUsage = true
	return cmd
}

func silenceErrors(cmd *cobra.Command) *cobra.Command {
	cmd.SilenceErrors = true
	return cmd
}

func maybePrintUsage(cmd, root *cobra.Command, err error) {
	if err == nil {
		return
	}
	target := cmd
	if target == nil {
		target = root
	}
	if target == nil {
		return
	}
	if shouldShowUsage(err) {
		_ = target.Usage()
	}
}

func shouldShowUsage(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.HasPrefix(msg, "unknown command") {
		return true
	}
	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return true
	}
	if strings.Contains(msg, "accepts") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "requires at least") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "required flag") {
		return true
	}
	if strings.Contains(msg, "flag needs an argument") {
		return true
	}
	if strings.HasPrefix(msg, "invalid argument") {
		return true
	}
	return false
}
