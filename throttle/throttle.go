package throttle

import (
	"context"
	"errors"
	"fmt"
	tkdb "github.com/tropotek/tk-database"
	"go.uber.org/zap"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// DefaultTable is the table hits are logged to
const DefaultTable = "_ipthrottle"

// Table is an option that can be passed to New to change the hit table name
type Table string

// Hit is a single logged submission
type Hit struct {
	ID        int64
	IP        string
	Key       string
	Timestamp time.Time
}

// Throttle logs hits per client IP (and optional key, e.g. a request path) so the number of
// submissions within a time window can be limited
type Throttle struct {
	mapper    *tkdb.Mapper[Hit]
	logger    *zap.Logger
	now       func() time.Time
	mutex     sync.Mutex
	installed bool
}

func hitMap(location *time.Location) *tkdb.DataMap[Hit] {
	return tkdb.MustNewDataMap([]*tkdb.PropertyMap[Hit]{
		tkdb.Key("id", tkdb.Bind(func(h *Hit) int64 { return h.ID }, func(h *Hit, v int64) { h.ID = v })),
		tkdb.Text("ip", tkdb.Bind(func(h *Hit) string { return h.IP }, func(h *Hit, v string) { h.IP = v })),
		tkdb.Text("key", tkdb.Bind(func(h *Hit) string { return h.Key }, func(h *Hit, v string) { h.Key = v })),
		tkdb.NewPropertyMap("timestamp", tkdb.DateCodec{Location: location},
			tkdb.Bind(func(h *Hit) time.Time { return h.Timestamp }, func(h *Hit, v time.Time) { h.Timestamp = v })),
	})
}

// New creates a Throttle - the hit table is installed by the first LogIP
//
// options can be any of: *zap.Logger, Table or *time.Location (the zone timestamps are stored in, default UTC)
func New(conn *tkdb.Connection, options ...any) (*Throttle, error) {
	if conn == nil {
		return nil, errors.New("throttle requires a connection")
	}
	t := &Throttle{
		logger: conn.Logger(),
		now:    time.Now,
	}
	table := DefaultTable
	location := time.UTC
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case *zap.Logger:
				t.logger = option
			case Table:
				table = string(option)
			case *time.Location:
				location = option
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	var err error
	if t.mapper, err = tkdb.NewMapper(conn, hitMap(location), tkdb.Table(table), tkdb.Config{}); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is the same as New, except it panics on error
func MustNew(conn *tkdb.Connection, options ...any) *Throttle {
	t, err := New(conn, options...)
	if err != nil {
		panic(err)
	}
	return t
}

// LogIP logs a hit for the ip and key - returns false (and logs nothing) when ip is not a valid IPv4/IPv6 address
func (t *Throttle) LogIP(ctx context.Context, ip string, key string) (bool, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false, nil
	}
	if err = t.install(ctx); err != nil {
		return false, err
	}
	hit := &Hit{IP: addr.Unmap().String(), Key: key, Timestamp: t.now()}
	if _, err = t.mapper.Insert(ctx, hit); err != nil {
		return false, err
	}
	return true, nil
}

// IPSubmissions returns the hits from ip (optionally only for key) logged after from and up to to (zero to means now)
func (t *Throttle) IPSubmissions(ctx context.Context, ip string, from time.Time, to time.Time, key string) ([]*Hit, error) {
	where := "a.ip = ?"
	args := []any{normalizeIP(ip)}
	if key != "" {
		where += " AND a." + t.mapper.Connection().Quote("key") + " = ?"
		args = append(args, key)
	}
	return t.submissions(ctx, where, args, from, to)
}

// KeySubmissions returns the hits for key (optionally only from ip) logged after from and up to to (zero to means now)
func (t *Throttle) KeySubmissions(ctx context.Context, key string, from time.Time, to time.Time, ip string) ([]*Hit, error) {
	where := "a." + t.mapper.Connection().Quote("key") + " = ?"
	args := []any{key}
	if ip != "" {
		where += " AND a.ip = ?"
		args = append(args, normalizeIP(ip))
	}
	return t.submissions(ctx, where, args, from, to)
}

// Exceeded reports whether ip has logged max (or more) hits for key within the window ending now
func (t *Throttle) Exceeded(ctx context.Context, ip string, key string, max int, window time.Duration) (bool, error) {
	hits, err := t.IPSubmissions(ctx, ip, t.now().Add(-window), time.Time{}, key)
	if err != nil {
		return false, err
	}
	return len(hits) >= max, nil
}

func (t *Throttle) submissions(ctx context.Context, where string, args []any, from time.Time, to time.Time) ([]*Hit, error) {
	result := make([]*Hit, 0)
	if to.IsZero() {
		to = t.now()
	}
	if !from.Before(to) {
		return result, nil
	}
	exists, err := t.tableExists(ctx)
	if err != nil || !exists {
		return result, err
	}
	ts := t.mapper.DataMap().PropertyMap("timestamp")
	fromValue, err := ts.Codec().ToColumnValue(tkdb.Field{}, from)
	if err != nil {
		return nil, err
	}
	toValue, err := ts.Codec().ToColumnValue(tkdb.Field{}, to)
	if err != nil {
		return nil, err
	}
	q := t.mapper.Connection().Quote("timestamp")
	where += " AND a." + q + " > ? AND a." + q + " <= ?"
	args = append(args, fromValue, toValue)
	rs, err := t.mapper.Select(ctx, where, tkdb.NewTool("timestamp", 0, 0).SetDistinct(false), args...)
	if err != nil {
		return nil, err
	}
	return rs.Objects()
}

func (t *Throttle) tableExists(ctx context.Context) (bool, error) {
	t.mutex.Lock()
	installed := t.installed
	t.mutex.Unlock()
	if installed {
		return true, nil
	}
	return t.mapper.Connection().TableExists(ctx, t.mapper.Table())
}

func (t *Throttle) install(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.installed {
		return nil
	}
	conn := t.mapper.Connection()
	table := t.mapper.Table()
	exists, err := conn.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		statements := make([]string, 0, 4)
		switch conn.Dialect() {
		case tkdb.MySQL:
			statements = append(statements, "CREATE TABLE IF NOT EXISTS "+conn.Quote(table)+" ("+
				"`id` INT(10) UNSIGNED AUTO_INCREMENT PRIMARY KEY, "+
				"`ip` VARCHAR(64) NOT NULL DEFAULT '', "+
				"`key` VARCHAR(255) NOT NULL DEFAULT '', "+
				"`timestamp` DATETIME NOT NULL, "+
				"KEY `ip` (`ip`), KEY `key` (`key`), KEY `ip_key` (`ip`, `key`)) ENGINE=InnoDB")
		default:
			id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
			if conn.Dialect() == tkdb.Postgres {
				id = "id SERIAL PRIMARY KEY"
			}
			idx := strings.Trim(strings.ReplaceAll(table, ".", "_"), "_")
			statements = append(statements,
				"CREATE TABLE IF NOT EXISTS "+conn.Quote(table)+" ("+id+", "+
					`ip VARCHAR(64) NOT NULL DEFAULT '', "key" VARCHAR(255) NOT NULL DEFAULT '', "timestamp" TIMESTAMP NOT NULL)`,
				"CREATE INDEX IF NOT EXISTS "+conn.Quote(idx+"_ip")+" ON "+conn.Quote(table)+" (ip)",
				"CREATE INDEX IF NOT EXISTS "+conn.Quote(idx+"_key")+" ON "+conn.Quote(table)+` ("key")`,
				"CREATE INDEX IF NOT EXISTS "+conn.Quote(idx+"_ip_key")+" ON "+conn.Quote(table)+` (ip, "key")`)
		}
		for _, stmt := range statements {
			if _, err = conn.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		t.logger.Info("throttle table installed", zap.String("table", table))
	}
	t.installed = true
	return nil
}

func normalizeIP(ip string) string {
	if addr, err := netip.ParseAddr(strings.TrimSpace(ip)); err == nil {
		return addr.Unmap().String()
	}
	return ip
}

// ClientIP returns the client address of a request, preferring the Client-IP then the (first) X-Forwarded-For
// header over the connection's remote address
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("Client-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
