// Package preflight validates the environment before a run touches any
// database. Every check failure is fatal for the whole invocation.
package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/capture"
	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
)

// Server is the subset of database queries preflight needs
type Server interface {
	GetVersion(ctx context.Context) (string, error)
	BinaryLoggingEnabled(ctx context.Context) (bool, error)
}

// Checker runs the environment checks shared by backup and restore
type Checker struct {
	server Server
	root   string
	logger *logging.Logger
}

// NewChecker creates a preflight checker for the given backup root
func NewChecker(server Server, root string, logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Checker{server: server, root: root, logger: logger}
}

// CheckBackup validates everything a backup run depends on: the client tools
// on PATH, a reachable server with binary logging enabled, and a writable
// backup root. Returns the resolved tools for the capture engine.
func (c *Checker) CheckBackup(ctx context.Context) (capture.Tools, error) {
	tools, err := capture.LookupTools()
	if err != nil {
		return tools, err
	}
	c.logger.Debugf("Resolved client tools: dump=%s binlog=%s client=%s", tools.Dump, tools.Binlog, tools.Client)

	version, err := c.server.GetVersion(ctx)
	if err != nil {
		return tools, apperrors.NewPreflightError("database server is not reachable", err)
	}
	c.logger.Debugf("Server version: %s", version)

	enabled, err := c.server.BinaryLoggingEnabled(ctx)
	if err != nil {
		return tools, apperrors.NewPreflightError("failed to query binary logging status", err)
	}
	if !enabled {
		return tools, apperrors.NewPreflightError(
			"binary logging is disabled on the server; incremental backups are impossible without it", nil)
	}

	if err := c.checkRootWritable(); err != nil {
		return tools, err
	}

	return tools, nil
}

// CheckRestore validates a restore run: the client tools and a reachable
// server. The backup root only needs to be readable.
func (c *Checker) CheckRestore(ctx context.Context) (capture.Tools, error) {
	tools, err := capture.LookupTools()
	if err != nil {
		return tools, err
	}

	if _, err := c.server.GetVersion(ctx); err != nil {
		return tools, apperrors.NewPreflightError("database server is not reachable", err)
	}

	if _, err := os.Stat(c.root); err != nil {
		return tools, apperrors.NewPreflightError(
			fmt.Sprintf("backup root %s is not accessible", c.root), err)
	}

	return tools, nil
}

func (c *Checker) checkRootWritable() error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return apperrors.NewPreflightError(
			fmt.Sprintf("cannot create backup root %s", c.root), err)
	}

	probe, err := os.CreateTemp(c.root, ".preflight-*")
	if err != nil {
		return apperrors.NewPreflightError(
			fmt.Sprintf("backup root %s is not writable", c.root), err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
