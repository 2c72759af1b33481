package tkdb

import (
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDialectFromDriver(t *testing.T) {
	require.Equal(t, MySQL, DialectFromDriver("mysql"))
	require.Equal(t, Postgres, DialectFromDriver("postgres"))
	require.Equal(t, Postgres, DialectFromDriver("pgx"))
	require.Equal(t, Postgres, DialectFromDriver("PGSQL"))
	require.Equal(t, SQLite, DialectFromDriver("sqlite"))
	require.Equal(t, SQLite, DialectFromDriver("other"))
}

func TestDialect_Quote(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		name    string
		expect  string
	}{
		{MySQL, "user", "`user`"},
		{MySQL, "a.name", "`a`.`name`"},
		{MySQL, "`user`", "`user`"},
		{MySQL, "a.*", "`a`.*"},
		{Postgres, "user", `"user"`},
		{Postgres, `"user"`, `"user"`},
		{Postgres, "public.user", `"public"."user"`},
		{SQLite, "user", `"user"`},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, tc.dialect.Quote(tc.name))
		})
	}
}

func TestDialect_Features(t *testing.T) {
	require.True(t, MySQL.LimitsModify())
	require.True(t, MySQL.CalcFoundRows())
	require.False(t, MySQL.Returning())
	require.False(t, Postgres.LimitsModify())
	require.False(t, Postgres.CalcFoundRows())
	require.True(t, Postgres.Returning())
	require.False(t, SQLite.LimitsModify())
	require.False(t, SQLite.Returning())

	require.Equal(t, "?", MySQL.Placeholder(3))
	require.Equal(t, "$3", Postgres.Placeholder(3))
}

func TestDialect_Rebind(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		query   string
		expect  string
	}{
		{MySQL, "a = ? AND b = ?", "a = ? AND b = ?"},
		{SQLite, "a = ??", "a = ??"},
		{Postgres, "SELECT 1", "SELECT 1"},
		{Postgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{Postgres, "a = '?' AND b = ?", "a = '?' AND b = $1"},
		{Postgres, "data ?? 'key' AND b = ?", "data ? 'key' AND b = $1"},
		{Postgres, "a = 'it''s ?' AND b = ?", "a = 'it''s ?' AND b = $1"},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, tc.dialect.Rebind(tc.query))
		})
	}
}
