package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/salesintel/app"
	"github.com/kilianp07/salesintel/config"
	"github.com/kilianp07/salesintel/infra/logger"
)

const defaultConfigPath = "config.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "salesintel",
	Short:        "Sales intelligence pipeline and dashboard API",
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API and refresh the pipeline on schedule",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration file. A missing default file falls back
// to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withService builds the service and closes it after fn.
func withService(cfg *config.Config, fn func(*app.Service) error) error {
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(svc)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(cfg, func(svc *app.Service) error { return svc.Run(ctx) })
}
