// kpayctl is the operator CLI for the Kinesis Pay adapter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kinesis-pay/internal/app"
	"kinesis-pay/internal/config"
	"kinesis-pay/pkg/logger"
)

var Version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "kpayctl",
		Short:         "kpayctl - operate the Kinesis Pay gateway adapter",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults to environment variables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(rateCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load(), nil
	}
	return config.LoadFile(configPath)
}

func newLogger(cfg *config.Config) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	return logger.New(logger.Options{
		Service:     "kpayctl",
		Environment: "development",
		Debug:       true,
		Secrets:     []string{cfg.SecretToken, cfg.AccessToken, cfg.LinkSecret},
	})
}

// withApp wires the application for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer log.Sync()

	a, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
