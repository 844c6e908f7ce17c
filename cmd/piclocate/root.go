package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "piclocate",
		Short:         "piclocate-engine: index and search property photos by natural-language description",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("root-folder-id", "", "source-store root folder to index/search against (overrides SOURCE_ROOT_ID)")
	root.PersistentFlags().String("env", "", "runtime environment: local, development, production (overrides ENVIRONMENT)")
	bindEnvOverride(root, "root-folder-id", "SOURCE_ROOT_ID")
	bindEnvOverride(root, "env", "ENVIRONMENT")

	root.AddCommand(newServeCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())

	return root
}

// bindEnvOverride promotes a cobra flag to the environment variable
// config.Load reads, via viper, so `--root-folder-id` and `SOURCE_ROOT_ID`
// are two names for the same knob instead of two independent ones.
func bindEnvOverride(cmd *cobra.Command, flag, envVar string) {
	_ = viper.BindPFlag(flag, cmd.PersistentFlags().Lookup(flag))
	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if prev != nil {
			if err := prev(c, args); err != nil {
				return err
			}
		}
		if v := viper.GetString(flag); v != "" {
			_ = os.Setenv(envVar, v)
		}
		return nil
	}
}

func exitWith(err error) {
	code := exitCode(1)
	var be *bootstrapError
	if errors.As(err, &be) {
		code = be.code
	}
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(int(code))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitWith(err)
	}
}
