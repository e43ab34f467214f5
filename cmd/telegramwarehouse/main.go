package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"TelegramWarehouse/internal/app"
	"TelegramWarehouse/internal/config"
	"TelegramWarehouse/internal/logging"
	"TelegramWarehouse/internal/report"
	"TelegramWarehouse/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
	app    *app.Application
}

func setup() (*runtime, error) {
	cfg := config.Load()
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("build application: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, closer: closer, app: application}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "telegramwarehouse",
		Short:        "Scrape Telegram channels into a Postgres warehouse",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newScheduleCmd(), newMigrateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		jobName string
		date    string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline job now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := usecase.ParseJob(jobName)
			if err != nil {
				return err
			}
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.closer.Close()

			day := time.Now()
			if date != "" {
				day, err = time.ParseInLocation("2006-01-02", date, rt.cfg.Scheduler.Location())
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			result, runErr := rt.app.Run(cmd.Context(), job, day)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.Render(result))
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&jobName, "job", string(usecase.JobFull), "job to run: full, daily or analysis")
	cmd.Flags().StringVar(&date, "date", "", "partition day (YYYY-MM-DD), defaults to today")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured job on its cron schedule and serve metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.closer.Close()
			return rt.app.Schedule(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the raw warehouse tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.closer.Close()
			if err := rt.app.Migrate(cmd.Context()); err != nil {
				return err
			}
			rt.logger.Info("migrations applied")
			return nil
		},
	}
}
