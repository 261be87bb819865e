package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/internal/config"
	"github.com/xkilldash9x/nafauto/internal/observability"
)

const envPrefix = "NAFAUTO"

// rootOptions carries state shared by every subcommand of one command tree.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "nafauto",
		Short:         "Copies NAF inquiry records into an external Google Form.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initializeConfig(opts.v, opts.cfgFile)
			if err != nil {
				// Still give the error somewhere to go.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "nafauto"})
				return err
			}
			opts.cfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting nafauto", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSubmitCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line against ctx, which should be canceled on
// SIGINT or SIGTERM.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	return err
}

// initializeConfig layers defaults, the config file and NAFAUTO_* variables.
func initializeConfig(v *viper.Viper, cfgFile string) (*config.Config, error) {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	return config.NewConfigFromViper(v)
}
