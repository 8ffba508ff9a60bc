package capture

import (
	"os/exec"

	apperrors "github.com/yashkhokhar28/mysql-backup-restore/internal/errors"
)

// Tools holds the resolved paths of the client binaries the engine shells
// out to.
type Tools struct {
	Dump   string // mysqldump or mariadb-dump
	Binlog string // mysqlbinlog or mariadb-binlog
	Client string // mysql or mariadb
}

// LookupTools resolves the dump, binlog and client binaries on PATH,
// preferring the MariaDB names when present.
func LookupTools() (Tools, error) {
	var tools Tools

	dump, err := lookupEither("mariadb-dump", "mysqldump")
	if err != nil {
		return tools, err
	}
	tools.Dump = dump

	binlogTool, err := lookupEither("mariadb-binlog", "mysqlbinlog")
	if err != nil {
		return tools, err
	}
	tools.Binlog = binlogTool

	client, err := lookupEither("mariadb", "mysql")
	if err != nil {
		return tools, err
	}
	tools.Client = client

	return tools, nil
}

func lookupEither(preferred, fallback string) (string, error) {
	if path, err := exec.LookPath(preferred); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath(fallback); err == nil {
		return path, nil
	}
	return "", apperrors.NewPreflightError(
		preferred+" or "+fallback+" not found in PATH", nil)
}
