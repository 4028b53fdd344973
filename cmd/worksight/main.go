// Command worksight is the WorkSight endpoint agent and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/okian/worksight/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "worksight",
		Short:         "WorkSight endpoint agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv(config.EnvConfigFile, configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML config file (overrides $"+config.EnvConfigFile+")")

	root.AddCommand(newRunCmd(), newQueueCmd(), newBaselineCmd())
	return root
}
