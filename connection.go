package tkdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"regexp"
	"strings"
	"sync"
	"time"
)

// LogEntry is a record of a single executed statement
type LogEntry struct {
	SQL      string
	Args     []any
	Duration time.Duration
	Err      error
}

// LogListener is an option that can be passed to NewConnection, it is called after every executed statement
type LogListener func(entry LogEntry)

// LogEnabled is an option that determines whether executed statements are kept in the Connection log buffer
//
// the buffer grows until ClearLog is called - by default it is disabled
type LogEnabled bool

// TableCacheSize is an option that sets the number of tables whose column info is cached (default 64)
type TableCacheSize int

// ConnectionOptions are the connection details used by collaborators that shell out (e.g. backup)
type ConnectionOptions struct {
	Host string
	Port int
	Name string
	User string
	Pass string
}

// ColumnInfo describes a single table column
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	Key      bool
	Default  any
}

// Connection wraps a *sql.DB adding statement logging, re-entrant transactions,
// dialect aware quoting, found rows counting and table introspection
//
// Transactions are connection scoped - while a transaction is open every statement issued
// through the Connection runs inside it
type Connection struct {
	db         *sql.DB
	dialect    Dialect
	logger     *zap.Logger
	options    ConnectionOptions
	mutex      sync.Mutex
	logEnabled bool
	log        []LogEntry
	listeners  []LogListener
	tx         *sql.Tx
	txCount    int
	tables     *lru.Cache
}

// Open opens a database with the driver and dsn and wraps it in a Connection
//
// options can be any of: *zap.Logger, ConnectionOptions, LogEnabled, LogListener or TableCacheSize
func Open(driverName string, dsn string, options ...any) (*Connection, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	c, err := NewConnection(db, DialectFromDriver(driverName), options...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewConnection wraps an existing *sql.DB
//
// options can be any of: *zap.Logger, ConnectionOptions, LogEnabled, LogListener or TableCacheSize
func NewConnection(db *sql.DB, dialect Dialect, options ...any) (*Connection, error) {
	c := &Connection{
		db:      db,
		dialect: dialect,
		logger:  zap.NewNop(),
	}
	cacheSize := 64
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case *zap.Logger:
				c.logger = option
			case ConnectionOptions:
				c.options = option
			case LogEnabled:
				c.logEnabled = bool(option)
			case LogListener:
				c.listeners = append(c.listeners, option)
			case TableCacheSize:
				cacheSize = int(option)
			default:
				if fn, ok := o.(func(LogEntry)); ok {
					c.listeners = append(c.listeners, fn)
				} else {
					return nil, fmt.Errorf("unknown option type: %T", o)
				}
			}
		}
	}
	var err error
	if c.tables, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNewConnection is the same as NewConnection, except it panics on error
func MustNewConnection(db *sql.DB, dialect Dialect, options ...any) *Connection {
	c, err := NewConnection(db, dialect, options...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Connection) DB() *sql.DB {
	return c.db
}

func (c *Connection) Dialect() Dialect {
	return c.dialect
}

func (c *Connection) Logger() *zap.Logger {
	return c.logger
}

func (c *Connection) Options() ConnectionOptions {
	return c.options
}

// Quote quotes an identifier for the connection dialect
func (c *Connection) Quote(name string) string {
	return c.dialect.Quote(name)
}

// Close closes the underlying database
func (c *Connection) Close() error {
	return c.db.Close()
}

// AddLogListener adds a listener that is called after every executed statement
func (c *Connection) AddLogListener(listener LogListener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *Connection) SetLogEnabled(enabled bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.logEnabled = enabled
}

// Log returns a copy of the log buffer
func (c *Connection) Log() []LogEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]LogEntry{}, c.log...)
}

// LastLog returns the most recent log entry (false if the buffer is empty)
func (c *Connection) LastLog() (LogEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.log) == 0 {
		return LogEntry{}, false
	}
	return c.log[len(c.log)-1], true
}

// LastQuery returns the SQL of the most recent log entry
func (c *Connection) LastQuery() string {
	e, _ := c.LastLog()
	return e.SQL
}

func (c *Connection) ClearLog() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.log = nil
}

func (c *Connection) record(query string, args []any, start time.Time, err error) {
	entry := LogEntry{
		SQL:      query,
		Args:     args,
		Duration: time.Since(start),
		Err:      err,
	}
	c.mutex.Lock()
	if c.logEnabled {
		c.log = append(c.log, entry)
	}
	listeners := append([]LogListener{}, c.listeners...)
	c.mutex.Unlock()
	if err != nil {
		c.logger.Warn("statement failed", zap.String("sql", query), zap.Any("args", args), zap.Duration("took", entry.Duration), zap.Error(err))
	} else {
		c.logger.Debug("statement", zap.String("sql", query), zap.Any("args", args), zap.Duration("took", entry.Duration))
	}
	for _, l := range listeners {
		l(entry)
	}
}

func (c *Connection) session() SqlInterface {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.queryOn(ctx, c.session(), query, args...)
}

func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := c.session().QueryRowContext(ctx, query, args...)
	c.record(query, args, start, row.Err())
	return row
}

func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := c.session().ExecContext(ctx, query, args...)
	c.record(query, args, start, err)
	if err != nil {
		return nil, storageError(err, query, args)
	}
	return result, nil
}

func (c *Connection) queryOn(ctx context.Context, sqli SqlInterface, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := sqli.QueryContext(ctx, query, args...)
	c.record(query, args, start, err)
	if err != nil {
		return nil, storageError(err, query, args)
	}
	return rows, nil
}

// QueryRows runs the query and reads all resulting rows
func (c *Connection) QueryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	return c.queryRowsOn(ctx, c.session(), query, nil, args...)
}

func (c *Connection) queryRowsOn(ctx context.Context, sqli SqlInterface, query string, scanners ColumnScanners, args ...any) ([]Row, error) {
	rows, err := c.queryOn(ctx, sqli, query, args...)
	if err != nil {
		return nil, err
	}
	result, err := readRows(rows, scanners)
	if err != nil {
		return nil, storageError(err, query, args)
	}
	return result, nil
}

// QueryFoundRows runs a (limited) select and also determines the number of rows the
// select would have returned without its LIMIT
//
// On MySQL, a query containing SQL_CALC_FOUND_ROWS is followed by SELECT FOUND_ROWS() on the same session,
// otherwise the count is taken with a SELECT COUNT(*) wrapper around the query with its LIMIT removed
func (c *Connection) QueryFoundRows(ctx context.Context, query string, scanners ColumnScanners, args ...any) (rows []Row, found int64, err error) {
	if c.dialect.CalcFoundRows() && strings.Contains(query, "SQL_CALC_FOUND_ROWS") {
		sqli := c.session()
		if _, inTx := sqli.(*sql.Tx); !inTx {
			var conn *sql.Conn
			if conn, err = c.db.Conn(ctx); err != nil {
				return nil, 0, err
			}
			defer func() {
				_ = conn.Close()
			}()
			sqli = conn
		}
		if rows, err = c.queryRowsOn(ctx, sqli, query, scanners, args...); err != nil {
			return nil, 0, err
		}
		const foundQuery = "SELECT FOUND_ROWS()"
		start := time.Now()
		err = sqli.QueryRowContext(ctx, foundQuery).Scan(&found)
		c.record(foundQuery, nil, start, err)
		if err != nil {
			return nil, 0, storageError(err, foundQuery, nil)
		}
		return rows, found, nil
	}
	if rows, err = c.queryRowsOn(ctx, c.session(), query, scanners, args...); err != nil {
		return nil, 0, err
	}
	found, err = c.CountRows(ctx, query, args...)
	return rows, found, err
}

var limitClause = regexp.MustCompile(`(?is)\s+LIMIT\s+\d+(\s*,\s*\d+)?(\s+OFFSET\s+\d+)?\s*$`)

// CountRows counts the rows the query would return without its trailing LIMIT/OFFSET clause
func (c *Connection) CountRows(ctx context.Context, query string, args ...any) (int64, error) {
	query = limitClause.ReplaceAllString(strings.TrimSpace(query), "")
	query = strings.Replace(query, "SQL_CALC_FOUND_ROWS ", "", 1)
	countQuery := "SELECT COUNT(*) AS i FROM (" + query + ") AS t"
	var count int64
	start := time.Now()
	err := c.session().QueryRowContext(ctx, countQuery, args...).Scan(&count)
	c.record(countQuery, args, start, err)
	if err != nil {
		return 0, storageError(err, countQuery, args)
	}
	return count, nil
}

// Begin starts a transaction - nested calls only increment a counter,
// the underlying transaction is started by the outermost call
func (c *Connection) Begin(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.txCount == 0 {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		c.tx = tx
		c.logger.Debug("transaction started")
	}
	c.txCount++
	return nil
}

// Commit ends a transaction level - only the outermost Commit commits the underlying transaction
func (c *Connection) Commit() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.txCount == 0 {
		return ErrNoTransaction
	}
	c.txCount--
	if c.txCount > 0 {
		return nil
	}
	tx := c.tx
	c.tx = nil
	c.logger.Debug("transaction committed")
	return tx.Commit()
}

// Rollback rolls back the underlying transaction, regardless of nesting level
func (c *Connection) Rollback() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.txCount == 0 {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	c.txCount = 0
	c.logger.Debug("transaction rolled back")
	return tx.Rollback()
}

// InTransaction reports whether a transaction is currently open
func (c *Connection) InTransaction() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.txCount > 0
}

// Transaction runs fn within a (possibly nested) transaction - committing if fn succeeds, rolling back if it fails
func (c *Connection) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rErr := c.Rollback(); rErr != nil && !errors.Is(rErr, ErrNoTransaction) {
			return errors.Join(err, rErr)
		}
		return err
	}
	return c.Commit()
}

// TableList returns the names of all tables in the database
func (c *Connection) TableList(ctx context.Context) ([]string, error) {
	var query string
	switch c.dialect {
	case MySQL:
		query = "SHOW TABLES"
	case Postgres:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	default:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
	rows, err := c.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	result := make([]string, 0)
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, storageError(err, query, nil)
		}
		result = append(result, name)
	}
	return result, rows.Err()
}

// TableExists reports whether the named table exists
func (c *Connection) TableExists(ctx context.Context, table string) (bool, error) {
	tables, err := c.TableList(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// TableInfo returns the column info for a table
//
// results are cached, DropTable evicts the cached entry
func (c *Connection) TableInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	if !ValidTableIdentifier(table) {
		return nil, configError(ErrInvalidIdentifier, "invalid table %q", table)
	}
	if cached, ok := c.tables.Get(table); ok {
		return cached.([]ColumnInfo), nil
	}
	var (
		result []ColumnInfo
		err    error
	)
	switch c.dialect {
	case MySQL:
		result, err = c.mysqlTableInfo(ctx, table)
	case Postgres:
		result, err = c.postgresTableInfo(ctx, table)
	default:
		result, err = c.sqliteTableInfo(ctx, table)
	}
	if err != nil {
		return nil, err
	}
	c.tables.Add(table, result)
	return result, nil
}

func (c *Connection) mysqlTableInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := c.QueryRows(ctx, "DESCRIBE "+c.Quote(table))
	if err != nil {
		return nil, err
	}
	result := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		result = append(result, ColumnInfo{
			Name:     fmt.Sprint(r["Field"]),
			Type:     fmt.Sprint(r["Type"]),
			Nullable: fmt.Sprint(r["Null"]) == "YES",
			Key:      fmt.Sprint(r["Key"]) == "PRI",
			Default:  r["Default"],
		})
	}
	return result, nil
}

func (c *Connection) postgresTableInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	const query = `SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
  EXISTS (SELECT 1 FROM information_schema.key_column_usage k
    JOIN information_schema.table_constraints tc ON tc.constraint_name = k.constraint_name AND tc.constraint_type = 'PRIMARY KEY'
    WHERE k.table_name = c.table_name AND k.column_name = c.column_name) AS is_key
  FROM information_schema.columns c WHERE c.table_name = $1 ORDER BY c.ordinal_position`
	rows, err := c.QueryRows(ctx, query, table)
	if err != nil {
		return nil, err
	}
	result := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		isKey, _ := r["is_key"].(bool)
		result = append(result, ColumnInfo{
			Name:     fmt.Sprint(r["column_name"]),
			Type:     fmt.Sprint(r["data_type"]),
			Nullable: fmt.Sprint(r["is_nullable"]) == "YES",
			Key:      isKey,
			Default:  r["column_default"],
		})
	}
	return result, nil
}

func (c *Connection) sqliteTableInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := c.QueryRows(ctx, "PRAGMA table_info("+c.Quote(table)+")")
	if err != nil {
		return nil, err
	}
	result := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		result = append(result, ColumnInfo{
			Name:     fmt.Sprint(r["name"]),
			Type:     fmt.Sprint(r["type"]),
			Nullable: fmt.Sprint(r["notnull"]) == "0",
			Key:      fmt.Sprint(r["pk"]) != "0",
			Default:  r["dflt_value"],
		})
	}
	return result, nil
}

// DropTable drops the named table (if it exists)
func (c *Connection) DropTable(ctx context.Context, table string) error {
	if !ValidTableIdentifier(table) {
		return configError(ErrInvalidIdentifier, "invalid table %q", table)
	}
	query := "DROP TABLE IF EXISTS " + c.Quote(table)
	if c.dialect == Postgres {
		query += " CASCADE"
	}
	c.tables.Remove(table)
	_, err := c.ExecContext(ctx, query)
	return err
}

// DropAllTables drops every table except those named in exclude
func (c *Connection) DropAllTables(ctx context.Context, exclude ...string) error {
	tables, err := c.TableList(ctx)
	if err != nil {
		return err
	}
	skip := make(map[string]bool, len(exclude))
	for _, x := range exclude {
		skip[x] = true
	}
	for _, t := range tables {
		if !skip[t] {
			if err = c.DropTable(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}
