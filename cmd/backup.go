package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/capture"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/database"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/orchestrator"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/preflight"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/state"
)

var (
	forceFull       bool
	continueOnError bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every user database on the server",
	Long: `Back up every user database on the server.

A database seen for the first time gets a full logical dump and its binary
log position is recorded. On later runs the binary log window from that
position up to the server's current position is captured as an incremental,
so the newest full plus the newest incremental are always enough to restore.

Examples:
  # Incremental run (fulls only where no baseline exists yet)
  mysql-backup-restore backup --config=config.yaml

  # Force fresh full baselines everywhere
  mysql-backup-restore backup --config=config.yaml --full`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&forceFull, "full", false, "capture a fresh full baseline for every database")
	backupCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going when one database fails to back up")

	viper.BindPFlag("backup.continue_on_error", backupCmd.Flags().Lookup("continue-on-error"))

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	config, err := buildConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(config)
	if err != nil {
		return err
	}
	printer := newPrinter()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := database.NewService(config.Database, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	checker := preflight.NewChecker(service, config.Backup.Root, logger)
	tools, err := checker.CheckBackup(ctx)
	if err != nil {
		printer.Errorf("preflight failed: %v", err)
		return err
	}

	engine := capture.NewEngine(config.Database, service, tools, capture.Config{
		Root:             config.Backup.Root,
		Compression:      capture.CompressionType(config.Backup.Compression),
		CompressionLevel: config.Backup.CompressionLevel,
		ToolVersion:      version,
	}, logger)

	policy := orchestrator.Policy{
		ForceFull:       forceFull,
		RebaselineAfter: config.Backup.RebaselineAfter,
		ContinueOnError: config.Backup.ContinueOnError,
	}

	backup := orchestrator.NewBackup(service, engine, state.NewStore(config.Backup.Root), config.Backup.Root, policy, logger, printer)
	result, err := backup.Run(ctx)
	if err != nil {
		return err
	}

	printer.Infof("backup complete: %d full, %d incremental in %s",
		result.Fulls, result.Incrementals, result.Duration.Round(time.Millisecond))
	return nil
}
