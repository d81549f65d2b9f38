package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"adherence-agent/internal/app"
	"adherence-agent/internal/config"
	"adherence-agent/internal/integrations/careapi"
	"adherence-agent/internal/integrations/paramstore"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "adherence-console",
	Short: "Drive and inspect medication check-in conversations locally",
	Long: `adherence-console runs the check-in dialog against the configured care
service from a terminal, and lists the session summaries stored for a
patient.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default $ADHERENCE_CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log dialog transitions to stderr")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the same configuration as the Lambda but always keeps
// the conversation context in memory.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.FilePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ContextStore = config.StoreMemory
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// careClient uses the static key when configured and falls back to SSM.
func careClient(ctx context.Context, cfg *config.Config) (*careapi.Client, error) {
	if cfg.CareAPIKey != "" {
		return app.NewCareClient(cfg, nil)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	keys, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("creating SSM client: %w", err)
	}
	return app.NewCareClient(cfg, keys)
}
