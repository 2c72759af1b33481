package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	tkdb "github.com/tropotek/tk-database"
	"go.uber.org/zap"
	"io"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"
)

var ErrUnsupportedDialect = errors.New("backup: unsupported database dialect")

// Exclude is an option that can be passed to New - the named tables are left out of dumps
type Exclude []string

// Gzip is an option that can be passed to New - when true, saved dumps are gzip compressed (.sql.gz)
type Gzip bool

// CommandFunc creates the command for a dump/restore tool (default exec.CommandContext)
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Backup dumps and restores a database using the database's own command line tools
// (mysqldump/mysql or pg_dump/psql) - commands are never run through a shell and
// the password is passed through the environment
type Backup struct {
	conn    *tkdb.Connection
	fs      afero.Fs
	logger  *zap.Logger
	exclude []string
	gzip    bool
	command CommandFunc
	now     func() time.Time
}

// New creates a Backup for the connection - the connection must carry tkdb.ConnectionOptions
//
// options can be any of: *zap.Logger, afero.Fs, Exclude, Gzip or CommandFunc
func New(conn *tkdb.Connection, options ...any) (*Backup, error) {
	if conn == nil {
		return nil, errors.New("backup requires a connection")
	}
	b := &Backup{
		conn:    conn,
		fs:      afero.NewOsFs(),
		logger:  conn.Logger(),
		command: exec.CommandContext,
		now:     time.Now,
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case *zap.Logger:
				b.logger = option
			case Exclude:
				b.exclude = append(b.exclude, option...)
			case Gzip:
				b.gzip = bool(option)
			case CommandFunc:
				b.command = option
			case func(ctx context.Context, name string, args ...string) *exec.Cmd:
				b.command = option
			case afero.Fs:
				b.fs = option
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	return b, nil
}

// MustNew is the same as New, except it panics on error
func MustNew(conn *tkdb.Connection, options ...any) *Backup {
	b, err := New(conn, options...)
	if err != nil {
		panic(err)
	}
	return b
}

// Dump returns the database dump
func (b *Backup) Dump(ctx context.Context) (string, error) {
	var out bytes.Buffer
	if err := b.dump(ctx, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Save writes a dump to target and returns the file written
//
// when target does not name a .sql (or .sql.gz) file it is treated as a directory (created if needed)
// and the file is named <database>_<dialect>_<yyyy-mm-dd-hh-mm-ss>.sql
func (b *Backup) Save(ctx context.Context, target string) (file string, err error) {
	file = target
	if !strings.HasSuffix(target, ".sql") && !strings.HasSuffix(target, ".sql.gz") {
		dir := strings.TrimSuffix(target, "/")
		if err = b.fs.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		file = path.Join(dir, fmt.Sprintf("%s_%s_%s.sql", b.conn.Options().Name, b.conn.Dialect(), b.now().Format("2006-01-02-15-04-05")))
	} else if err = b.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return "", err
	}
	if b.gzip && !strings.HasSuffix(file, ".gz") {
		file += ".gz"
	}
	f, err := b.fs.Create(file)
	if err != nil {
		return "", err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
		if err != nil {
			_ = b.fs.Remove(file)
			file = ""
		}
	}()
	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(file, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	counter := &countingWriter{w: w}
	if err = b.dump(ctx, counter); err != nil {
		return file, err
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return file, err
		}
	}
	if counter.n == 0 {
		return file, fmt.Errorf("backup: dump of %s is empty", b.conn.Options().Name)
	}
	b.logger.Info("database saved", zap.String("file", file), zap.Int64("bytes", counter.n))
	return file, nil
}

// Restore loads a dump file (gzip compressed when its name ends in .gz) into the database
func (b *Backup) Restore(ctx context.Context, file string) error {
	f, err := b.fs.Open(file)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	var r io.Reader = f
	if strings.HasSuffix(file, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer func() {
			_ = zr.Close()
		}()
		r = zr
	}
	opts := b.conn.Options()
	var cmd *exec.Cmd
	switch b.conn.Dialect() {
	case tkdb.MySQL:
		cmd = b.command(ctx, "mysql", append(mysqlConnArgs(opts), opts.Name)...)
		withEnv(cmd, "MYSQL_PWD="+opts.Pass)
	case tkdb.Postgres:
		cmd = b.command(ctx, "psql", append(pgConnArgs(opts), "-q", "-v", "ON_ERROR_STOP=1", "-d", opts.Name)...)
		withEnv(cmd, "PGPASSWORD="+opts.Pass)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDialect, b.conn.Dialect())
	}
	cmd.Stdin = r
	if err = run(cmd, io.Discard); err != nil {
		return err
	}
	b.logger.Info("database restored", zap.String("file", file))
	return nil
}

// Remove deletes a saved dump file
func (b *Backup) Remove(file string) error {
	return b.fs.Remove(file)
}

func (b *Backup) dump(ctx context.Context, w io.Writer) error {
	opts := b.conn.Options()
	var cmd *exec.Cmd
	switch b.conn.Dialect() {
	case tkdb.MySQL:
		args := mysqlConnArgs(opts)
		args = append(args, "--opt")
		views, err := b.mysqlViews(ctx, opts.Name)
		if err != nil {
			return err
		}
		for _, t := range append(append([]string{}, b.exclude...), views...) {
			args = append(args, "--ignore-table="+opts.Name+"."+t)
		}
		cmd = b.command(ctx, "mysqldump", append(args, opts.Name)...)
		withEnv(cmd, "MYSQL_PWD="+opts.Pass)
	case tkdb.Postgres:
		args := append(pgConnArgs(opts), "--inserts", "-O")
		for _, t := range b.exclude {
			args = append(args, "--exclude-table="+t)
		}
		cmd = b.command(ctx, "pg_dump", append(args, opts.Name)...)
		withEnv(cmd, "PGPASSWORD="+opts.Pass)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDialect, b.conn.Dialect())
	}
	return run(cmd, w)
}

// mysqldump writes views as tables, so they are excluded
func (b *Backup) mysqlViews(ctx context.Context, database string) ([]string, error) {
	rows, err := b.conn.QueryRows(ctx, "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'VIEW'", database)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(rows))
	for _, row := range rows {
		result = append(result, fmt.Sprint(row["TABLE_NAME"]))
	}
	return result, nil
}

func mysqlConnArgs(opts tkdb.ConnectionOptions) []string {
	args := []string{"-h", hostOrDefault(opts.Host)}
	if opts.Port > 0 {
		args = append(args, "-P", strconv.Itoa(opts.Port))
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	return args
}

func pgConnArgs(opts tkdb.ConnectionOptions) []string {
	args := []string{"-h", hostOrDefault(opts.Host)}
	if opts.Port > 0 {
		args = append(args, "-p", strconv.Itoa(opts.Port))
	}
	if opts.User != "" {
		args = append(args, "-U", opts.User)
	}
	return args
}

func hostOrDefault(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

func withEnv(cmd *exec.Cmd, vars ...string) {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, vars...)
}

func run(cmd *exec.Cmd, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", path.Base(cmd.Path), err, msg)
		}
		return fmt.Errorf("%s: %w", path.Base(cmd.Path), err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
