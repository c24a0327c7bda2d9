package main

import (
	"os"

	"github.com/spf13/cobra"

	lperrors "github.com/logflow/logprune/pkg/errors"
)

var configSave bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, config files
(/etc/logprune/config.yaml, ~/.logprune/config.yaml, ./.logprune.yaml, --config),
LOGPRUNE_* environment variables and flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		if configSave {
			if err := a.manager.Save(); err != nil {
				return lperrors.Wrap(err, lperrors.CodeWriteFailed, "save config")
			}
		}

		data, err := a.manager.Marshal()
		if err != nil {
			return err
		}
		for _, p := range a.manager.GetPaths() {
			a.logger.Debug("config file", "path", p)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().BoolVar(&configSave, "save", false, "Also write it to ~/.logprune/config.yaml")
}
