package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/gateway"
	"diary/internal/logging"
)

var (
	verbose     bool
	envFile     string
	timeout     time.Duration
	concurrency int

	cfg    config.App
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "diaryctl",
	Short: "Query a student's school diary from the terminal",
	Long: `diaryctl opens a diary session with the token from DNEVNIK_TOKEN and
prints reconciled schedule, marks and ranking views as JSON.

Dates are YYYY-MM-DD. Quarter-based commands accept --year to pick an
earlier academic year.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load(envFile)
		if concurrency > 0 {
			cfg.MaxConcurrent = concurrency
		}
		var err error
		logger, err = logging.New(verbose || cfg.Debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file with DNEVNIK_TOKEN and friends")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 0, "Max in-flight upstream requests (1 = sequential)")

	registerCommands(rootCmd)
}

// session opens a diary service bound to the command's deadline.
func session(cmd *cobra.Command) (context.Context, context.CancelFunc, *diary.Service, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	gw := gateway.New(cfg.DnevnikAPIURL, cfg.DnevnikToken, cfg.GatewayTimeout, logger)
	svc, err := diary.New(ctx, gw, diary.Options{
		Concurrency:  cfg.MaxConcurrent,
		SubjectRetry: diary.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff},
		Location:     cfg.Location(),
		Logger:       logger,
	})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("open diary session: %w", err)
	}
	return ctx, cancel, svc, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
