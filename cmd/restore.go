package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/capture"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/database"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/orchestrator"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/preflight"
)

var validateWindow bool

var restoreCmd = &cobra.Command{
	Use:   "restore [database...]",
	Short: "Restore databases from the backup root",
	Long: `Restore databases from the backup root.

Each database is dropped, recreated, and rebuilt by replaying its newest full
dump followed by its newest incremental capture. With no arguments every
database found under the backup root is restored.

Examples:
  # Restore everything under the backup root
  mysql-backup-restore restore --config=config.yaml

  # Restore specific databases only
  mysql-backup-restore restore --config=config.yaml shop billing`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&validateWindow, "validate-window", true, "check the incremental's window against the full before replay")

	viper.BindPFlag("restore.validate_window", restoreCmd.Flags().Lookup("validate-window"))

	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
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
	tools, err := checker.CheckRestore(ctx)
	if err != nil {
		printer.Errorf("preflight failed: %v", err)
		return err
	}

	engine := capture.NewEngine(config.Database, service, tools, capture.Config{
		Root:        config.Backup.Root,
		ToolVersion: version,
	}, logger)

	restore := orchestrator.NewRestore(service, engine, config.Backup.Root, config.Restore.ValidateWindow, logger, printer)
	result, err := restore.Run(ctx, args)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("restore complete: %d restored", len(result.Restored))
	if len(result.Skipped) > 0 {
		summary += fmt.Sprintf(", %d skipped (%s)", len(result.Skipped), strings.Join(result.Skipped, ", "))
	}
	printer.Infof("%s in %s", summary, result.Duration.Round(time.Millisecond))
	return nil
}
