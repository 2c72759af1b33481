package migrate

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	tkdb "github.com/tropotek/tk-database"
	"go.uber.org/zap"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTable is the table recording applied migrations
const DefaultTable = "migration"

// Table is an option that can be passed to New to change the tracking table name
type Table string

// TempPath is an option that can be passed to New to set the directory pre-migration backups are written to (default "/tmp")
type TempPath string

// BasePath is an option that can be passed to New - recorded migration paths are made relative to it
type BasePath string

// Func is a migration implemented in Go
type Func func(ctx context.Context, conn *tkdb.Connection) error

// Backuper saves and restores the whole database
//
// when given to New, a backup is taken before pending migrations run and restored if any of them fail
type Backuper interface {
	Save(ctx context.Context, path string) (string, error)
	Restore(ctx context.Context, file string) error
	Remove(file string) error
}

// Migrator applies sql migration files (and registered Go migrations) exactly once each
type Migrator struct {
	conn      *tkdb.Connection
	fs        afero.Fs
	logger    *zap.Logger
	backuper  Backuper
	table     string
	tempPath  string
	basePath  string
	mutex     sync.Mutex
	installed bool
	funcs     map[string]Func
}

// New creates a Migrator
//
// options can be any of: *zap.Logger, afero.Fs, Backuper, Table, TempPath or BasePath
func New(conn *tkdb.Connection, options ...any) (*Migrator, error) {
	if conn == nil {
		return nil, errors.New("migrator requires a connection")
	}
	m := &Migrator{
		conn:     conn,
		fs:       afero.NewOsFs(),
		logger:   conn.Logger(),
		table:    DefaultTable,
		tempPath: "/tmp",
		funcs:    map[string]Func{},
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case *zap.Logger:
				m.logger = option
			case Table:
				m.table = string(option)
			case TempPath:
				m.tempPath = string(option)
			case BasePath:
				m.basePath = string(option)
			case afero.Fs:
				m.fs = option
			case Backuper:
				m.backuper = option
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	if !tkdb.ValidTableIdentifier(m.table) {
		return nil, fmt.Errorf("invalid migration table %q", m.table)
	}
	return m, nil
}

// MustNew is the same as New, except it panics on error
func MustNew(conn *tkdb.Connection, options ...any) *Migrator {
	m, err := New(conn, options...)
	if err != nil {
		panic(err)
	}
	return m
}

// Register adds a Go migration - name is recorded in the tracking table like a file path
//
// Go migrations run after the sql files of a Migrate call, in name order
func (m *Migrator) Register(name string, fn Func) *Migrator {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.funcs[name] = fn
	return m
}

// Migrate applies every pending migration found in dir (and dir/<dialect>), returning the applied paths
func (m *Migrator) Migrate(ctx context.Context, dir string) ([]string, error) {
	if err := m.install(ctx); err != nil {
		return nil, err
	}
	files, err := m.FileList(dir)
	if err != nil {
		return nil, err
	}
	pendingFiles := make([]string, 0, len(files))
	for _, file := range files {
		done, err := m.hasPath(ctx, m.relative(file))
		if err != nil {
			return nil, err
		}
		if !done {
			pendingFiles = append(pendingFiles, file)
		}
	}
	pendingFuncs, err := m.pendingFuncs(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0)
	if len(pendingFiles) == 0 && len(pendingFuncs) == 0 {
		return applied, nil
	}

	backupFile := ""
	if m.backuper != nil {
		target := path.Join(m.tempPath, "migrate-"+uuid.NewString()+".sql")
		if backupFile, err = m.backuper.Save(ctx, target); err != nil {
			return nil, fmt.Errorf("pre-migration backup: %w", err)
		}
		m.logger.Info("pre-migration backup saved", zap.String("file", backupFile))
		defer func() {
			if rErr := m.backuper.Remove(backupFile); rErr != nil {
				m.logger.Warn("cannot remove pre-migration backup", zap.String("file", backupFile), zap.Error(rErr))
			}
		}()
	}

	for _, file := range pendingFiles {
		if err = m.migrateFile(ctx, file); err != nil {
			return applied, m.restore(ctx, backupFile, err)
		}
		applied = append(applied, m.relative(file))
	}
	for _, name := range pendingFuncs {
		if err = m.migrateFunc(ctx, name); err != nil {
			return applied, m.restore(ctx, backupFile, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func (m *Migrator) restore(ctx context.Context, backupFile string, cause error) error {
	if backupFile == "" {
		return cause
	}
	m.logger.Warn("migration failed, restoring backup", zap.String("file", backupFile), zap.Error(cause))
	if err := m.backuper.Restore(ctx, backupFile); err != nil {
		return errors.Join(cause, fmt.Errorf("restore %s: %w", backupFile, err))
	}
	return cause
}

// IsPending reports whether any migration in dir (or any registered Go migration) has not been applied
func (m *Migrator) IsPending(ctx context.Context, dir string) (bool, error) {
	if err := m.install(ctx); err != nil {
		return false, err
	}
	files, err := m.FileList(dir)
	if err != nil {
		return false, err
	}
	for _, file := range files {
		done, err := m.hasPath(ctx, m.relative(file))
		if err != nil {
			return false, err
		}
		if !done {
			return true, nil
		}
	}
	funcs, err := m.pendingFuncs(ctx)
	return len(funcs) > 0, err
}

// FileList returns the sorted migration files in dir and dir/<dialect>
//
// only .sql files are listed, names starting with _ or . are skipped, missing directories are ignored
func (m *Migrator) FileList(dir string) ([]string, error) {
	result := make([]string, 0)
	for _, d := range []string{dir, path.Join(dir, DialectDir(m.conn.Dialect()))} {
		files, err := m.search(d)
		if err != nil {
			return nil, err
		}
		result = append(result, files...)
	}
	sort.Strings(result)
	return result, nil
}

func (m *Migrator) search(dir string) ([]string, error) {
	if ok, err := afero.DirExists(m.fs, dir); err != nil || !ok {
		return nil, err
	}
	infos, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") ||
			!strings.EqualFold(path.Ext(name), ".sql") {
			continue
		}
		result = append(result, path.Join(dir, name))
	}
	return result, nil
}

// DialectDir is the name of the sub-directory holding dialect specific migrations
func DialectDir(d tkdb.Dialect) string {
	return string(d)
}

func (m *Migrator) relative(file string) string {
	if m.basePath != "" {
		file = strings.TrimPrefix(file, strings.TrimSuffix(m.basePath, "/"))
	}
	return strings.TrimSuffix(file, "/")
}

func (m *Migrator) pendingFuncs(ctx context.Context) ([]string, error) {
	m.mutex.Lock()
	names := make([]string, 0, len(m.funcs))
	for name := range m.funcs {
		names = append(names, name)
	}
	m.mutex.Unlock()
	sort.Strings(names)
	result := make([]string, 0, len(names))
	for _, name := range names {
		done, err := m.hasPath(ctx, name)
		if err != nil {
			return nil, err
		}
		if !done {
			result = append(result, name)
		}
	}
	return result, nil
}

func (m *Migrator) migrateFile(ctx context.Context, file string) error {
	script, err := afero.ReadFile(m.fs, file)
	if err != nil {
		return err
	}
	rel := m.relative(file)
	statements := SplitStatements(string(script))
	err = m.conn.Transaction(ctx, func(ctx context.Context) error {
		for i, stmt := range statements {
			if _, err := m.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s: statement %d failed: %w", rel, i+1, err)
			}
		}
		return m.insertPath(ctx, rel)
	})
	if err == nil {
		m.logger.Info("migrated", zap.String("path", rel), zap.Int("statements", len(statements)))
	}
	return err
}

func (m *Migrator) migrateFunc(ctx context.Context, name string) error {
	m.mutex.Lock()
	fn := m.funcs[name]
	m.mutex.Unlock()
	err := m.conn.Transaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx, m.conn); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return m.insertPath(ctx, name)
	})
	if err == nil {
		m.logger.Info("migrated", zap.String("path", name))
	}
	return err
}

func (m *Migrator) install(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.installed {
		return nil
	}
	exists, err := m.conn.TableExists(ctx, m.table)
	if err != nil {
		return err
	}
	if !exists {
		query := "CREATE TABLE IF NOT EXISTS " + m.conn.Quote(m.table) + " (" +
			m.conn.Quote("path") + " VARCHAR(128) NOT NULL DEFAULT '', " +
			m.conn.Quote("created") + " TIMESTAMP, " +
			"PRIMARY KEY (" + m.conn.Quote("path") + "))"
		if _, err = m.conn.ExecContext(ctx, query); err != nil {
			return err
		}
		m.logger.Info("migration table installed", zap.String("table", m.table))
	}
	m.installed = true
	return nil
}

func (m *Migrator) hasPath(ctx context.Context, rel string) (bool, error) {
	query := m.conn.Dialect().Rebind("SELECT COUNT(*) FROM " + m.conn.Quote(m.table) + " WHERE " + m.conn.Quote("path") + " = ?")
	var count int64
	if err := m.conn.QueryRowContext(ctx, query, rel).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Migrator) insertPath(ctx context.Context, rel string) error {
	query := m.conn.Dialect().Rebind("INSERT INTO " + m.conn.Quote(m.table) + " (" + m.conn.Quote("path") + ", " +
		m.conn.Quote("created") + ") VALUES (?, ?)")
	_, err := m.conn.ExecContext(ctx, query, rel, time.Now().Format(tkdb.DefaultDateFormat))
	return err
}

// Applied returns the recorded migration paths, oldest first
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	if err := m.install(ctx); err != nil {
		return nil, err
	}
	rows, err := m.conn.QueryRows(ctx, "SELECT "+m.conn.Quote("path")+" FROM "+m.conn.Quote(m.table)+
		" ORDER BY "+m.conn.Quote("created")+", "+m.conn.Quote("path"))
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(rows))
	for _, row := range rows {
		result = append(result, fmt.Sprint(row["path"]))
	}
	return result, nil
}
