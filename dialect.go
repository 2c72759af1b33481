package tkdb

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour spoken by a Connection
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "pgsql"
	SQLite   Dialect = "sqlite"
)

// DialectFromDriver returns the Dialect for a database/sql driver name
//
// unknown drivers are treated as SQLite (ANSI quoting, ? placeholders)
func DialectFromDriver(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "mysql":
		return MySQL
	case "postgres", "postgresql", "pgx", "pgsql":
		return Postgres
	}
	return SQLite
}

// Quote quotes an identifier for the dialect - already quoted identifiers are re-quoted
// and dotted names (e.g. "a.name") have each part quoted
func (d Dialect) Quote(name string) string {
	q := d.quoteChar()
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.Trim(p, "`\"")
		if p == "*" {
			parts[i] = p
			continue
		}
		parts[i] = q + p + q
	}
	return strings.Join(parts, ".")
}

func (d Dialect) quoteChar() string {
	if d == MySQL {
		return "`"
	}
	return `"`
}

// Placeholder returns the n'th (1 based) bind parameter placeholder
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// LimitsModify reports whether UPDATE and DELETE accept a LIMIT clause
func (d Dialect) LimitsModify() bool {
	return d == MySQL
}

// CalcFoundRows reports whether the dialect supports SQL_CALC_FOUND_ROWS / FOUND_ROWS()
func (d Dialect) CalcFoundRows() bool {
	return d == MySQL
}

// Returning reports whether INSERT ... RETURNING is used to obtain generated keys
func (d Dialect) Returning() bool {
	return d == Postgres
}

// Rebind rewrites ? placeholders to the dialect placeholder style
//
// only Postgres is rewritten, placeholders inside single quoted literals are left alone and ?? is written as a literal ?
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case ch == '?' && !inQuote:
			if i+1 < len(query) && query[i+1] == '?' {
				sb.WriteByte('?')
				i++
				continue
			}
			n++
			sb.WriteString(d.Placeholder(n))
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
