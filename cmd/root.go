package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/yashkhokhar28/mysql-backup-restore/internal/capture"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/database"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/display"
	"github.com/yashkhokhar28/mysql-backup-restore/internal/logging"
)

var cfgFile string

// CLI flag variables
var (
	// Database connection flags
	dbHost     string
	dbPort     int
	dbUsername string
	dbPassword string

	// Operation flags
	backupRoot       string
	compression      string
	compressionLevel int
	timeout          time.Duration
	verbose          bool
	quiet            bool
	logFile          string
	noColor          bool
)

// Config is the resolved application configuration, combining config file,
// environment variables and CLI flags.
type Config struct {
	Database database.Config `mapstructure:"database" yaml:"database"`
	Backup   BackupConfig    `mapstructure:"backup" yaml:"backup"`
	Restore  RestoreConfig   `mapstructure:"restore" yaml:"restore"`
	LogFile  string          `mapstructure:"log_file" yaml:"log_file"`
	Verbose  bool            `mapstructure:"verbose" yaml:"verbose"`
	Quiet    bool            `mapstructure:"quiet" yaml:"quiet"`
}

// BackupConfig holds the backup-side settings
type BackupConfig struct {
	Root             string        `mapstructure:"root" yaml:"root"`
	Compression      string        `mapstructure:"compression" yaml:"compression"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level"`
	ContinueOnError  bool          `mapstructure:"continue_on_error" yaml:"continue_on_error"`
	RebaselineAfter  time.Duration `mapstructure:"rebaseline_after" yaml:"rebaseline_after"`
}

// RestoreConfig holds the restore-side settings
type RestoreConfig struct {
	ValidateWindow bool `mapstructure:"validate_window" yaml:"validate_window"`
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mysql-backup-restore",
	Short: "Logical backup and restore for MySQL with binlog-based incrementals",
	Long: `mysql-backup-restore captures every user database on a MySQL server as a
full logical dump plus incremental binary-log captures, and restores them by
replaying the newest full followed by the newest incremental.

Each database gets a full dump on first contact. After that, runs extract the
binary log window from the full's recorded position up to the server's current
position, so a restore needs exactly two artifacts per database.

Examples:
  # Back up every user database
  mysql-backup-restore backup --host=localhost --user=root --backup-root=/var/backups/mysql

  # Force a fresh full baseline for all databases
  mysql-backup-restore backup --config=config.yaml --full

  # Restore everything found under the backup root
  mysql-backup-restore restore --config=config.yaml

  # Restore two specific databases
  mysql-backup-restore restore --config=config.yaml shop billing`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mysql-backup-restore.yaml)")

	// Database connection flags
	rootCmd.PersistentFlags().StringVar(&dbHost, "host", "localhost", "database host")
	rootCmd.PersistentFlags().IntVar(&dbPort, "port", 3306, "database port")
	rootCmd.PersistentFlags().StringVar(&dbUsername, "user", "", "database username")
	rootCmd.PersistentFlags().StringVar(&dbPassword, "password", "", "database password (prompted when omitted)")

	// Operation flags
	rootCmd.PersistentFlags().StringVar(&backupRoot, "backup-root", "", "directory holding per-database artifact folders")
	rootCmd.PersistentFlags().StringVar(&compression, "compression", "gzip", "artifact compression (none, gzip, lz4, zstd)")
	rootCmd.PersistentFlags().IntVar(&compressionLevel, "compression-level", 6, "compression level (codec specific)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "database operation timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	// Bind flags to viper
	viper.BindPFlag("database.host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("database.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("database.username", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("database.password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("database.timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	viper.BindPFlag("backup.root", rootCmd.PersistentFlags().Lookup("backup-root"))
	viper.BindPFlag("backup.compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("backup.compression_level", rootCmd.PersistentFlags().Lookup("compression-level"))

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// buildConfig resolves the effective configuration from viper and validates it
func buildConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if config.Verbose && config.Quiet {
		return nil, fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}
	if config.Database.Username == "" {
		return nil, fmt.Errorf("database username is required (--user, config file, or MYSQL_BACKUP_DATABASE_USERNAME)")
	}
	if config.Backup.Root == "" {
		return nil, fmt.Errorf("backup root is required (--backup-root, config file, or MYSQL_BACKUP_BACKUP_ROOT)")
	}
	if config.Database.Timeout == 0 {
		config.Database.Timeout = 30 * time.Second
	}
	if config.Backup.Compression == "" {
		config.Backup.Compression = string(capture.CompressionGzip)
	}
	if config.Backup.CompressionLevel == 0 {
		config.Backup.CompressionLevel = 6
	}

	if err := config.Database.Validate(); err != nil {
		return nil, err
	}

	// A password is never required on the command line. When none arrived
	// through any channel, ask for it on the terminal.
	if config.Database.Password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", config.Database.Username, config.Database.Host)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		config.Database.Password = string(raw)
	}

	return config, nil
}

// newLogger builds the run logger from the resolved configuration
func newLogger(config *Config) (*logging.Logger, error) {
	level := logging.LogLevelNormal
	if config.Verbose {
		level = logging.LogLevelVerbose
	}
	if config.Quiet {
		level = logging.LogLevelQuiet
	}
	return logging.NewLogger(logging.Config{
		Level:   level,
		LogFile: config.LogFile,
	})
}

// newPrinter builds the terminal status printer
func newPrinter() *display.StatusPrinter {
	return display.NewStatusPrinter(noColor)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mysql-backup-restore" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mysql-backup-restore")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("MYSQL_BACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for mysql-backup-restore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mysql-backup-restore version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	var effective bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

With --effective, print the resolved configuration (config file, environment
and flags merged) instead of the annotated template. The password is redacted.

Examples:
  mysql-backup-restore config > config.yaml
  mysql-backup-restore config --effective`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if effective {
				config := &Config{}
				if err := viper.Unmarshal(config); err != nil {
					return fmt.Errorf("failed to unmarshal configuration: %w", err)
				}
				if config.Database.Password != "" {
					config.Database.Password = "<redacted>"
				}
				out, err := yaml.Marshal(config)
				if err != nil {
					return fmt.Errorf("failed to render configuration: %w", err)
				}
				fmt.Print(string(out))
				return nil
			}
			sampleConfig := `# mysql-backup-restore configuration file

# Database server connection
database:
  host: localhost         # Database hostname or IP
  port: 3306              # Database port
  username: root          # Database username
  password: ""            # Database password (use env var for security)
  timeout: 30s            # Connection timeout

# Backup settings
backup:
  root: /var/backups/mysql  # Directory holding per-database artifact folders
  compression: gzip         # Artifact compression (none, gzip, lz4, zstd)
  compression_level: 6      # Compression level (codec specific)
  continue_on_error: false  # Keep going when one database fails to back up
  rebaseline_after: 0s      # Re-take a full after the baseline reaches this age (0 = never)

# Restore settings
restore:
  validate_window: true     # Check the incremental's window against the full before replay

# Operation settings
verbose: false            # Enable verbose output
quiet: false              # Suppress non-error output (mutually exclusive with verbose)
log_file: ""              # Optional log file path (logs also go to stdout)

# Security recommendations:
# 1. Store the password in an environment variable:
#    export MYSQL_BACKUP_DATABASE_PASSWORD=your_password
# 2. Set restrictive file permissions: chmod 600 config.yaml
# 3. Use a dedicated database user with RELOAD, REPLICATION CLIENT and SELECT

# Environment variable examples:
# MYSQL_BACKUP_DATABASE_HOST=prod-db.example.com
# MYSQL_BACKUP_BACKUP_ROOT=/var/backups/mysql
# MYSQL_BACKUP_BACKUP_COMPRESSION=zstd
`
			fmt.Print(sampleConfig)
			return nil
		},
	}

	configCmd.Flags().BoolVar(&effective, "effective", false, "print the resolved configuration instead of the template")
	return configCmd
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}
