package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinical-ops-console/internal/app"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "opsctl",
		Short:         "Clinical operations console: appointment and account maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(bucketsCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(rescheduleCmd())
	rootCmd.AddCommand(removeAccountCmd())
	rootCmd.AddCommand(retryDeactivationCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// withApp loads config, wires the core and hands it to fn. Logs go to
// stderr so command output stays clean.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, "opsctl")

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID: %w", what, err)
	}
	return id, nil
}
