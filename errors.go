package tkdb

import (
	"errors"
	"fmt"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/omeid/pgerror"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTarget is returned when a DataMap is asked to load into a nil (or otherwise unusable) target
	ErrInvalidTarget = errors.New("cannot load a non model object")
	// ErrNoPrimaryKey is returned when a model has no primary key property map
	ErrNoPrimaryKey = errors.New("no valid primary key found")
	// ErrNoFormMap is returned by form conversions on a Mapper without a form DataMap
	ErrNoFormMap = errors.New("no form data map configured")
	// ErrMissingKey is returned by the encrypted text codec when no key is configured
	ErrMissingKey = errors.New("missing encryption key")
	// ErrNoTransaction is returned by Commit or Rollback when no transaction is open
	ErrNoTransaction = errors.New("no transaction in progress")
	// ErrInvalidIdentifier is returned when a table, alias or column name fails the identifier allow-list
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// ConfigError signals a mapper or data map that has been configured incorrectly
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(err error, format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ConversionError signals a value that could not be converted between its storage and property representations
type ConversionError struct {
	Property string
	Column   string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert property %q (column %q): %s", e.Property, e.Column, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// StorageError wraps any failing statement together with the SQL that caused it
type StorageError struct {
	SQL  string
	Args []any
	// Code is the driver reported error code (e.g. "1062" for MySQL, "23505" for PostgreSQL) - empty if unknown
	Code string
	Err  error
}

func (e *StorageError) Error() string {
	return e.Err.Error() + "\n\nQuery: \n" + FormatSQL(e.SQL)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(err error, query string, args []any) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{
		SQL:  query,
		Args: args,
		Code: driverErrorCode(err),
		Err:  err,
	}
}

func driverErrorCode(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	return ""
}

const pgUniqueViolation = "23505"

// IsUniqueViolation returns true if the error was caused by a unique/primary key constraint violation
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgerror.UniqueViolation(pqErr) != nil
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == "1062" || se.Code == pgUniqueViolation
	}
	return false
}

var sqlBreaks = strings.NewReplacer(
	",", ", ",
	" WHERE", "\n  WHERE",
	" FROM", "\n  FROM",
	" LIMIT", "\n  LIMIT",
	" ORDER", "\n  ORDER",
	" LEFT JOIN", "\n  LEFT JOIN",
)

// FormatSQL breaks a statement onto multiple indented lines for error and log output
func FormatSQL(query string) string {
	lines := strings.Split(sqlBreaks.Replace(query), "\n")
	for i, l := range lines {
		lines[i] = "  " + wordWrap(strings.TrimLeft(l, " "), 120, "\n  ")
	}
	return strings.Join(lines, "\n")
}

func wordWrap(s string, width int, brk string) string {
	if len(s) <= width {
		return s
	}
	var sb strings.Builder
	lineLen := 0
	for i, word := range strings.Split(s, " ") {
		if i > 0 {
			if lineLen+1+len(word) > width {
				sb.WriteString(brk)
				lineLen = 0
			} else {
				sb.WriteByte(' ')
				lineLen++
			}
		}
		sb.WriteString(word)
		lineLen += len(word)
	}
	return sb.String()
}
