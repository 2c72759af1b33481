package tkdb

import (
	"database/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

type testUser struct {
	ID       int64
	Name     string
	Email    string
	Active   bool
	Score    decimal.Decimal
	Tags     []string
	Created  time.Time
	Modified time.Time
	Del      bool
	Extra    map[string]any
}

func (u *testUser) SetDynamicField(name string, value any) {
	if u.Extra == nil {
		u.Extra = map[string]any{}
	}
	u.Extra[name] = value
}

func testUserMaps() []*PropertyMap[testUser] {
	return []*PropertyMap[testUser]{
		Key("id", Bind(func(u *testUser) int64 { return u.ID }, func(u *testUser, v int64) { u.ID = v })),
		Text("name", Bind(func(u *testUser) string { return u.Name }, func(u *testUser, v string) { u.Name = v })),
		Text("email", Bind(func(u *testUser) string { return u.Email }, func(u *testUser, v string) { u.Email = v }), "email_address"),
		Boolean("active", Bind(func(u *testUser) bool { return u.Active }, func(u *testUser, v bool) { u.Active = v })),
		Decimal("score", Bind(func(u *testUser) decimal.Decimal { return u.Score }, func(u *testUser, v decimal.Decimal) { u.Score = v })),
		StringList("tags", Bind(func(u *testUser) []string { return u.Tags }, func(u *testUser, v []string) { u.Tags = v })),
		Date("created", Bind(func(u *testUser) time.Time { return u.Created }, func(u *testUser, v time.Time) { u.Created = v })),
		Date("modified", Bind(func(u *testUser) time.Time { return u.Modified }, func(u *testUser, v time.Time) { u.Modified = v })),
		Boolean("del", Bind(func(u *testUser) bool { return u.Del }, func(u *testUser, v bool) { u.Del = v })),
	}
}

func testUserMap(options ...any) *DataMap[testUser] {
	return MustNewDataMap(testUserMaps(), options...)
}

func newMockConnection(t *testing.T, dialect Dialect, options ...any) (*Connection, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	conn, err := NewConnection(db, dialect, options...)
	require.NoError(t, err)
	return conn, mock
}

const testUserSchema = `CREATE TABLE test_user (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL DEFAULT '',
  email_address TEXT NOT NULL DEFAULT '',
  active INTEGER NOT NULL DEFAULT 0,
  score TEXT NOT NULL DEFAULT '0',
  tags TEXT NOT NULL DEFAULT '',
  created TEXT,
  modified TEXT,
  del INTEGER NOT NULL DEFAULT 0
)`

func newSqliteConnection(t *testing.T, options ...any) *Connection {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every pooled connection to :memory: would otherwise get its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	conn, err := NewConnection(db, SQLite, options...)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, testUserSchema)
	require.NoError(t, err)
	return conn
}
