package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/repository"
	"github.com/noah-isme/libratrack-api/internal/service"
	"github.com/noah-isme/libratrack-api/pkg/config"
	"github.com/noah-isme/libratrack-api/pkg/database"
	"github.com/noah-isme/libratrack-api/pkg/logger"
	"github.com/noah-isme/libratrack-api/pkg/mailer"
)

const runTimeout = 10 * time.Minute

// deps bundles everything a subcommand needs. Built once in PersistentPreRunE
// so every command shares the same config, logger and connection pool.
type deps struct {
	cfg           *config.Config
	logger        *zap.Logger
	close         func()
	notifications *service.NotificationService
	scans         *service.ScanService
}

var (
	queueLimit   int
	queueWorkers int

	env *deps

	rootCmd = &cobra.Command{
		Use:           "libratrack-cron",
		Short:         "Scheduled jobs for the LibraTrack circulation system",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = buildDeps()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env != nil {
				env.close()
			}
		},
	}

	processQueueCmd = &cobra.Command{
		Use:   "process-queue",
		Short: "Deliver queued email notifications",
		RunE:  runProcessQueue,
	}

	scanDueSoonCmd = &cobra.Command{
		Use:   "scan-due-soon",
		Short: "Queue reminders for loans that come due soon",
		RunE:  runScanDueSoon,
	}

	scanOverdueCmd = &cobra.Command{
		Use:   "scan-overdue",
		Short: "Queue overdue notices and escalate long-overdue loans",
		RunE:  runScanOverdue,
	}
)

func init() {
	processQueueCmd.Flags().IntVar(&queueLimit, "limit", 0, "max notifications to claim this run (0 uses the configured batch size)")
	processQueueCmd.Flags().IntVar(&queueWorkers, "workers", 0, "delivery worker count (0 uses the configured default)")

	rootCmd.AddCommand(processQueueCmd, scanDueSoonCmd, scanOverdueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sync() //nolint:errcheck
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	settingsSvc := service.NewSettingsService(settingsRepo, auditRepo, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, settingsSvc, mailer.New(), nil, logr)
	scanSvc := service.NewScanService(loanRepo, userRepo, bookRepo, settingsSvc, notificationSvc, logr)

	return &deps{
		cfg:    cfg,
		logger: logr,
		close: func() {
			if err := db.Close(); err != nil {
				log.Printf("closing database: %v", err)
			}
			logr.Sync() //nolint:errcheck
		},
		notifications: notificationSvc,
		scans:         scanSvc,
	}, nil
}

func runProcessQueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	limit := queueLimit
	if limit <= 0 {
		limit = env.cfg.Cron.QueueBatchSize
	}
	workers := queueWorkers
	if workers <= 0 {
		workers = env.cfg.Cron.DispatchWorkers
	}

	fmt.Printf("Processing notification queue (limit %d, workers %d)...\n", limit, workers)

	result, err := env.notifications.ProcessQueue(ctx, limit, workers)
	if err != nil {
		return fmt.Errorf("process queue: %w", err)
	}

	fmt.Printf("Queue run complete: claimed %d, sent %d, failed %d\n", result.Claimed, result.Sent, result.Failed)
	return nil
}

func runScanDueSoon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := env.scans.RunDueSoonScan(ctx)
	if err != nil {
		return fmt.Errorf("due-soon scan: %w", err)
	}

	fmt.Printf("Due-soon scan completed: scanned %d loans, queued %d notifications\n", result.Scanned, result.Queued)
	return nil
}

func runScanOverdue(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := env.scans.RunOverdueScan(ctx)
	if err != nil {
		return fmt.Errorf("overdue scan: %w", err)
	}

	fmt.Printf("Overdue scan completed: scanned %d loans, queued %d notifications\n", result.Scanned, result.Queued)
	return nil
}
