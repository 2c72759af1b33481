package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tkdb "github.com/tropotek/tk-database"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"
	"net"
	"strconv"
	"strings"
)

// config keys - each can also be set with a TKDB_ prefixed environment variable (e.g. TKDB_DSN, TKDB_BACKUP_DIR)
const (
	cfgKeyDriver         = "driver"
	cfgKeyDSN            = "dsn"
	cfgKeyHost           = "host"
	cfgKeyPort           = "port"
	cfgKeyName           = "name"
	cfgKeyUser           = "user"
	cfgKeyPass           = "pass"
	cfgKeyLogLevel       = "log_level"
	cfgKeyMigratePath    = "migrate.path"
	cfgKeyMigrateTemp    = "migrate.temp_path"
	cfgKeyMigrateBackup  = "migrate.backup"
	cfgKeyBackupDir      = "backup.dir"
	cfgKeyBackupExclude  = "backup.exclude"
	cfgKeyBackupGzip     = "backup.gzip"
	defaultDriver        = "mysql"
	defaultMigratePath   = "db"
	defaultBackupDir     = "."
	defaultMigrationTemp = "/tmp"
)

// app holds the state shared by the commands of one invocation
type app struct {
	config     *viper.Viper
	configFile string
	logger     *zap.Logger
	conn       *tkdb.Connection
}

func newRootCmd() *cobra.Command {
	a := &app{config: viper.New()}
	root := &cobra.Command{
		Use:           "tkdb",
		Short:         "Database migration, backup and inspection tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./tkdb.yaml if present)")
	flags.String("driver", defaultDriver, "database driver: mysql, postgres, pgx or sqlite")
	flags.String("dsn", "", "data source name passed to the driver")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	_ = a.config.BindPFlag(cfgKeyDriver, flags.Lookup("driver"))
	_ = a.config.BindPFlag(cfgKeyDSN, flags.Lookup("dsn"))
	_ = a.config.BindPFlag(cfgKeyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(newVersionCmd())
	root.AddCommand(newTablesCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newBackupCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	v := a.config
	v.SetDefault(cfgKeyDriver, defaultDriver)
	v.SetDefault(cfgKeyMigratePath, defaultMigratePath)
	v.SetDefault(cfgKeyMigrateTemp, defaultMigrationTemp)
	v.SetDefault(cfgKeyBackupDir, defaultBackupDir)
	v.SetEnvPrefix("TKDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("tkdb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	level, err := zapcore.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if a.logger, err = zc.Build(); err != nil {
		return err
	}
	return nil
}

// connect opens the configured database (once)
func (a *app) connect(ctx context.Context) (*tkdb.Connection, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	v := a.config
	driver := v.GetString(cfgKeyDriver)
	dsn := v.GetString(cfgKeyDSN)
	if dsn == "" {
		return nil, errors.New("no dsn configured (use --dsn, the dsn config key or TKDB_DSN)")
	}
	opts, err := connectionOptions(driver, dsn)
	if err != nil {
		return nil, err
	}
	if h := v.GetString(cfgKeyHost); h != "" {
		opts.Host = h
	}
	if p := v.GetInt(cfgKeyPort); p > 0 {
		opts.Port = p
	}
	if n := v.GetString(cfgKeyName); n != "" {
		opts.Name = n
	}
	if u := v.GetString(cfgKeyUser); u != "" {
		opts.User = u
	}
	if p := v.GetString(cfgKeyPass); p != "" {
		opts.Pass = p
	}
	conn, err := tkdb.Open(driver, dsn, a.logger, opts)
	if err != nil {
		return nil, err
	}
	if err = conn.DB().PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.conn = conn
	a.logger.Debug("connected", zap.String("driver", driver), zap.String("database", opts.Name))
	return conn, nil
}

func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}

// connectionOptions extracts the host/port/name/user/pass details from a dsn, as needed by the backup tools
func connectionOptions(driver string, dsn string) (tkdb.ConnectionOptions, error) {
	opts := tkdb.ConnectionOptions{}
	switch tkdb.DialectFromDriver(driver) {
	case tkdb.MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return opts, err
		}
		opts.Name, opts.User, opts.Pass = cfg.DBName, cfg.User, cfg.Passwd
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			opts.Host = cfg.Addr
		} else {
			opts.Host = host
			opts.Port, _ = strconv.Atoi(port)
		}
	case tkdb.Postgres:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return opts, err
		}
		opts.Host, opts.Port, opts.Name = cfg.Host, int(cfg.Port), cfg.Database
		opts.User, opts.Pass = cfg.User, cfg.Password
	default:
		opts.Name = strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
	}
	return opts, nil
}
