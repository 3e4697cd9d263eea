package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-tenant-auth"
)

const envPrefix = "TENANT_AUTH"

var (
	endpoint       string
	operatorSecret string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tenant-auth",
	Short: "Multi-tenant authentication service",
	Long:  `Multi-tenant authentication service. Configuration is read from TENANT_AUTH_* environment variables.`,
}

// Execute adds all child commands to the root command. It is called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "http://localhost:8080", "service base URL used by client commands")
	rootCmd.PersistentFlags().StringVar(&operatorSecret, "operator-secret", os.Getenv(envPrefix+"_OPERATOR_SECRET"), "operator secret used by client commands")
}

func loadRuntime() (*auth.Config, *auth.ZapLogger, error) {
	cfg, err := auth.LoadConfig(envPrefix)
	if err != nil {
		return nil, nil, err
	}

	logger, err := auth.NewZapLogger(cfg.LogLevel, cfg.LogFormat, "tenant-auth")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
