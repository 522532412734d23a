package main

import (
	"github.com/spf13/cobra"

	"github.com/jun/notabl/backend/internal/config"
	"github.com/jun/notabl/backend/internal/logging"
)

type commandContext struct {
	envFiles []string
	logLevel string
	cfg      *config.Config
}

// config loads the .env files and the environment once.
func (c *commandContext) config() config.Config {
	if c.cfg == nil {
		config.LoadDotEnv(c.envFiles...)
		cfg := config.Load()
		if c.logLevel != "" {
			cfg.LogLevel = c.logLevel
		}
		logging.Setup(logging.Options{Level: cfg.LogLevel, Console: cfg.DevMode})
		c.cfg = &cfg
	}
	return *c.cfg
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "notabl",
		Short:         "Notabl API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&ctx.envFiles, "env-file", nil, "Environment files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	return rootCmd
}
