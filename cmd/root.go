// File: cmd/root.go

// Package cmd wires the CLI surface: configuration loading, logger
// initialization, and the serve/version subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/tokensmith/internal/config"
	"github.com/xkilldash9x/tokensmith/internal/observability"
)

// configHolder carries the loaded configuration from the root command's
// PersistentPreRunE into the subcommands.
type configHolder struct {
	cfg *config.Config
}

// NewRootCommand constructs a fresh command tree. Built per call so tests
// never share flag or viper state.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()
	holder := &configHolder{}

	rootCmd := &cobra.Command{
		Use:           "tokensmith",
		Short:         "Browser-driven OAuth login automation service",
		Long:          "tokensmith drives a headless browser through the identity provider's hosted login UI and exchanges the resulting authorization code for tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tokensmith.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
	_ = v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v, cfgFile)
		if err != nil {
			return err
		}
		holder.cfg = cfg
		observability.InitializeLogger(cfg.Logger)
		return nil
	}

	rootCmd.AddCommand(
		newServeCommand(holder),
		newVersionCommand(),
	)
	return rootCmd
}

// loadConfig layers defaults, an optional config file, and TOKENSMITH_*
// environment overrides into a validated Config.
func loadConfig(v *viper.Viper, cfgFile string) (*config.Config, error) {
	config.SetDefaults(v)

	v.SetEnvPrefix("TOKENSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tokensmith")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tokensmith")
	}

	if err := v.ReadInConfig(); err != nil {
		// Running purely on defaults and environment is a supported setup;
		// only an explicitly requested file is required to exist.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return config.NewConfigFromViper(v)
}

// Execute runs the CLI under a signal-aware context. SIGINT/SIGTERM cancel
// the context, which drains the HTTP server gracefully.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
