package tkdb

import (
	"context"
	"errors"
	"fmt"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

var ctx = context.Background()

const testUserColumns = `"name", "email_address", "active", "score", "tags", "created", "modified", "del"`

func TestNewMapper(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m, err := NewMapper(conn, testUserMap())
	require.NoError(t, err)
	require.Equal(t, "test_user", m.Table())
	require.Equal(t, "a", m.Alias())
	require.Equal(t, "id", m.PrimaryKey())
	require.Equal(t, "", m.MarkDeleted())

	cfg := DefaultConfig()
	cfg.TablePrefix = "tk_"
	m, err = NewMapper(conn, testUserMap(), cfg, Table("member"))
	require.NoError(t, err)
	require.Equal(t, "tk_member", m.Table())
}

func TestNewMapper_WithOptions(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m, err := NewMapper(conn, testUserMap(),
		Table("users"),
		Alias("u."),
		PrimaryKey("id"),
		MarkDeleted("del"),
		UseFormMap(testUserMap()),
		NewModel[testUser](func() *testUser { return &testUser{Name: "new"} }),
		&testErrorTranslator{},
		PostMapProcessorFunc[testUser](func(row Row, obj *testUser) error { return nil }),
		ColumnScanners{},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, "users", m.Table())
	require.Equal(t, "u", m.Alias())
	require.Equal(t, "del", m.MarkDeleted())
	require.NotNil(t, m.FormDataMap())
	require.Equal(t, 1, len(m.postProcessors))
	obj, err := m.Map(Row{})
	require.NoError(t, err)
	require.Equal(t, "new", obj.Name)

	_, err = NewMapper(conn, testUserMap(), "not a valid option")
	require.Error(t, err)
	require.Equal(t, "unknown option type: string", err.Error())

	_, err = NewMapper(conn, testUserMap(), Alias("a b"))
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = NewMapper(conn, testUserMap(), Table("users; DROP TABLE x"))
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = NewMapper(conn, testUserMap(), MarkDeleted("del--"))
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
}

func TestMustNewMapper(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	require.Panics(t, func() {
		_ = MustNewMapper(conn, testUserMap(), nil, "not a valid option")
	})
	require.NotPanics(t, func() {
		_ = MustNewMapper(conn, testUserMap(), nil)
	})
}

func TestMapper_PrimaryKeyFromKeyTag(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	dm := MustNewDataMap([]*PropertyMap[Record]{
		Text("code", RecordField("code")).SetTag(KeyTag),
		Text("name", RecordField("name")),
	})
	m, err := NewMapper(conn, dm, Table("country"))
	require.NoError(t, err)
	require.Equal(t, "code", m.PrimaryKey())
}

func TestMapper_MapUnmap(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	u, err := m.Map(Row{
		"id":            int64(3),
		"name":          "Bob",
		"email_address": "bob@example.com",
		"active":        "yes",
		"score":         "12.50",
		"tags":          "a,b",
		"created":       "2024-01-02 03:04:05",
		"modified":      "0000-00-00 00:00:00",
		"del":           int64(0),
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), u.ID)
	require.Equal(t, "bob@example.com", u.Email)
	require.True(t, u.Active)
	require.True(t, decimal.RequireFromString("12.5").Equal(u.Score))
	require.Equal(t, []string{"a", "b"}, u.Tags)
	require.Equal(t, 2024, u.Created.Year())
	require.True(t, u.Modified.IsZero())

	row, err := m.Unmap(u)
	require.NoError(t, err)
	require.Equal(t, int64(3), row["id"])
	require.Equal(t, "bob@example.com", row["email_address"])
	require.Equal(t, 1, row["active"])
	require.Equal(t, "12.5", row["score"])
	require.Equal(t, "a,b", row["tags"])
	require.Equal(t, "2024-01-02 03:04:05", row["created"])
	require.Nil(t, row["modified"])
	require.Equal(t, 0, row["del"])
}

func TestMapper_Map_ConversionError(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	_, err := m.Map(Row{"created": "not a date"})
	require.Error(t, err)
	var ce *ConversionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "created", ce.Property)
}

func TestMapper_Map_PostMapProcessor(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap(), PostMapProcessorFunc[testUser](func(row Row, obj *testUser) error {
		obj.Name = obj.Name + "!"
		return nil
	}))
	u, err := m.Map(Row{"name": "Bob"})
	require.NoError(t, err)
	require.Equal(t, "Bob!", u.Name)

	m = MustNewMapper(conn, testUserMap(), PostMapProcessorFunc[testUser](func(row Row, obj *testUser) error {
		return errors.New("foo")
	}))
	_, err = m.Map(Row{"name": "Bob"})
	require.Error(t, err)
}

func TestMapper_MapForm(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	_, err := m.MapForm(Row{}, nil)
	require.ErrorIs(t, err, ErrNoFormMap)
	_, err = m.UnmapForm(&testUser{})
	require.ErrorIs(t, err, ErrNoFormMap)

	form := MustNewDataMap([]*PropertyMap[testUser]{
		Key("id", Bind(func(u *testUser) int64 { return u.ID }, func(u *testUser, v int64) { u.ID = v })),
		FormText("name", Bind(func(u *testUser) string { return u.Name }, func(u *testUser, v string) { u.Name = v })),
		FormBoolean("active", Bind(func(u *testUser) bool { return u.Active }, func(u *testUser, v bool) { u.Active = v })),
		FormMoney("score", Bind(func(u *testUser) decimal.Decimal { return u.Score }, func(u *testUser, v decimal.Decimal) { u.Score = v })),
	})
	m = MustNewMapper(conn, testUserMap(), UseFormMap(form))
	u := &testUser{ID: 5}
	u, err = m.MapForm(Row{"id": "99", "name": "Bob", "active": "active", "score": "$1,234.50"}, u)
	require.NoError(t, err)
	require.Equal(t, int64(5), u.ID)
	require.Equal(t, "Bob", u.Name)
	require.True(t, u.Active)
	require.Equal(t, "1234.5", u.Score.String())

	row, err := m.UnmapForm(u)
	require.NoError(t, err)
	require.Equal(t, "active", row["active"])
	require.Equal(t, "1234.50", row["score"])
}

func TestMapper_Insert(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectExec(`INSERT INTO "test_user" (`+testUserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`).
		WithArgs("Bob", "bob@example.com", 1, "0", "", sqlmock.AnyArg(), sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(7, 1))

	u := &testUser{Name: "Bob", Email: "bob@example.com", Active: true}
	id, err := m.Insert(ctx, u)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.Equal(t, int64(7), u.ID)
	require.False(t, u.Created.IsZero())
	require.False(t, u.Modified.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Insert_NoAutoDates(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	cfg := DefaultConfig()
	cfg.AutoDates = false
	m := MustNewMapper(conn, testUserMap(), cfg)
	mock.ExpectExec(`INSERT INTO "test_user" (`+testUserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`).
		WithArgs("Bob", "", 0, "0", "", nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	u := &testUser{Name: "Bob"}
	_, err := m.Insert(ctx, u)
	require.NoError(t, err)
	require.True(t, u.Created.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Insert_Postgres(t *testing.T) {
	conn, mock := newMockConnection(t, Postgres)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectQuery(`INSERT INTO "test_user" (` + testUserColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	u := &testUser{Name: "Bob"}
	id, err := m.Insert(ctx, u)
	require.NoError(t, err)
	require.Equal(t, int64(9), id)
	require.Equal(t, int64(9), u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Insert_Error(t *testing.T) {
	conn, mock := newMockConnection(t, MySQL)
	m := MustNewMapper(conn, testUserMap(), &testErrorTranslator{})
	mock.ExpectExec("INSERT INTO `test_user` (`name`, `email_address`, `active`, `score`, `tags`, `created`, `modified`, `del`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := m.Insert(ctx, &testUser{Name: "Bob"})
	require.Error(t, err)
	require.Equal(t, errDuplicate, err)

	m = MustNewMapper(conn, testUserMap())
	mock.ExpectExec("INSERT INTO `test_user` (`name`, `email_address`, `active`, `score`, `tags`, `created`, `modified`, `del`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	_, err = m.Insert(ctx, &testUser{Name: "Bob"})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "1062", se.Code)
	require.Contains(t, se.Error(), "Query:")
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Update(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectExec(`UPDATE "test_user" SET "name" = ?, "email_address" = ?, "active" = ?, "score" = ?, "tags" = ?, "created" = ?, "modified" = ?, "del" = ? WHERE "id" = ?`).
		WithArgs("Bob", "", 0, "0", "", nil, sqlmock.AnyArg(), 0, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &testUser{ID: 4, Name: "Bob"}
	n, err := m.Update(ctx, u)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.False(t, u.Modified.IsZero())
	require.True(t, u.Created.IsZero())

	mock.ExpectExec(`UPDATE "test_user" SET "name" = ?, "email_address" = ?, "active" = ?, "score" = ?, "tags" = ?, "created" = ?, "modified" = ?, "del" = ? WHERE "id" = ?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	n, err = m.Update(ctx, &testUser{ID: 5})
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Delete(t *testing.T) {
	conn, mock := newMockConnection(t, MySQL)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectExec("DELETE FROM `test_user` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := m.Delete(ctx, &testUser{ID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	m = MustNewMapper(conn, testUserMap(), MarkDeleted("del"))
	mock.ExpectExec("UPDATE `test_user` SET `del` = 1 WHERE `id` = ? LIMIT 1").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err = m.Delete(ctx, &testUser{ID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Delete_NoLimitOnPostgres(t *testing.T) {
	conn, mock := newMockConnection(t, Postgres)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectExec(`DELETE FROM "test_user" WHERE "id" = $1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	n, err := m.Delete(ctx, &testUser{ID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Save(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectExec(`INSERT INTO "test_user" (` + testUserColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`).
		WillReturnResult(sqlmock.NewResult(3, 1))
	u := &testUser{Name: "Bob"}
	require.NoError(t, m.Save(ctx, u))
	require.Equal(t, int64(3), u.ID)

	mock.ExpectExec(`UPDATE "test_user" SET "name" = ?, "email_address" = ?, "active" = ?, "score" = ?, "tags" = ?, "created" = ?, "modified" = ?, "del" = ? WHERE "id" = ?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.Save(ctx, u))
	require.NoError(t, mock.ExpectationsWereMet())

	noKey := MustNewMapper(conn, MustNewDataMap([]*PropertyMap[Record]{Text("name", RecordField("name"))}), Table("thing"))
	err := noKey.Save(ctx, &Record{"name": "x"})
	require.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestMapper_Select(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap(), MarkDeleted("del"))
	query := `SELECT DISTINCT a.* FROM "test_user" a WHERE a."del" = 0 AND (a.name = ?) ORDER BY a."name" LIMIT 10`
	mock.ExpectQuery(query).
		WithArgs("Bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email_address"}).AddRow(1, "Bob", "bob@example.com"))
	mock.ExpectQuery(`SELECT COUNT(*) AS i FROM (SELECT DISTINCT a.* FROM "test_user" a WHERE a."del" = 0 AND (a.name = ?) ORDER BY a."name") AS t`).
		WithArgs("Bob").
		WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(31))

	tool := NewTool("name", 10, 0)
	rs, err := m.Select(ctx, "a.name = ?", tool, "Bob")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	require.Equal(t, int64(31), rs.FoundRows())
	require.Equal(t, int64(31), rs.CountAll())
	require.Equal(t, int64(31), tool.FoundRows())
	require.Equal(t, query, rs.SQL())
	require.Same(t, tool, rs.Tool())
	u, err := rs.Get(0)
	require.NoError(t, err)
	require.Equal(t, "Bob", u.Name)
	require.Equal(t, "bob@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Select_WhereReferencesMarkDeleted(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap(), MarkDeleted("del"))
	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a WHERE a.del = 1 ORDER BY a."id" DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COUNT(*) AS i FROM (SELECT DISTINCT a.* FROM "test_user" a WHERE a.del = 1 ORDER BY a."id" DESC) AS t`).
		WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(0))
	rs, err := m.Select(ctx, "a.del = 1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, rs.Len())

	cfg := DefaultConfig()
	cfg.HideDeleted = false
	m = MustNewMapper(conn, testUserMap(), MarkDeleted("del"), cfg)
	require.Equal(t, `SELECT DISTINCT a.* FROM "test_user" a ORDER BY a."id" DESC`, m.SelectSQL("", "", "", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_SelectSQL(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	testCases := []struct {
		selectList string
		from       string
		where      string
		tool       *Tool
		expect     string
	}{
		{
			expect: `SELECT DISTINCT a.* FROM "test_user" a ORDER BY a."id" DESC`,
		},
		{
			tool:   NewTool("", 0, 0).SetDistinct(false),
			expect: `SELECT a.* FROM "test_user" a`,
		},
		{
			selectList: "a.id, a.name",
			from:       `"test_user" a LEFT JOIN "team" b ON (a.team_id = b.id)`,
			where:      "b.name = ?",
			tool:       NewTool("name, id DESC", 5, 10).SetGroupBy("a.id").SetHaving("COUNT(*) > 1"),
			expect:     `SELECT DISTINCT a.id, a.name FROM "test_user" a LEFT JOIN "team" b ON (a.team_id = b.id) WHERE b.name = ? GROUP BY a.id HAVING COUNT(*) > 1 ORDER BY a."name", a."id" DESC LIMIT 5 OFFSET 10`,
		},
		{
			where:  "a.name = 'x'; DROP TABLE test_user -- ",
			tool:   NewTool("RAND()", 0, 0),
			expect: `SELECT DISTINCT a.* FROM "test_user" a WHERE a.name = 'x'  DROP TABLE test_user ORDER BY RAND()`,
		},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, m.SelectSQL(tc.selectList, tc.from, tc.where, tc.tool))
		})
	}
}

func TestMapper_Select_OrderPropertyRewrite(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a ORDER BY a."email_address" DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COUNT(*) AS i FROM (SELECT DISTINCT a.* FROM "test_user" a ORDER BY a."email_address" DESC) AS t`).
		WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(0))
	tool := NewTool("email DESC", 0, 0)
	_, err := m.Select(ctx, "", tool)
	require.NoError(t, err)
	require.Equal(t, "email DESC", tool.OrderBy())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Select_MySQLFoundRows(t *testing.T) {
	conn, mock := newMockConnection(t, MySQL)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectQuery("SELECT SQL_CALC_FOUND_ROWS DISTINCT a.* FROM `test_user` a ORDER BY a.`id` DESC LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(2, "b").AddRow(1, "a"))
	mock.ExpectQuery("SELECT FOUND_ROWS()").
		WillReturnRows(sqlmock.NewRows([]string{"FOUND_ROWS()"}).AddRow(42))
	rs, err := m.Select(ctx, "", NewTool("id DESC", 2, 0))
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	require.Equal(t, int64(42), rs.FoundRows())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Select_Error(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a ORDER BY a."id" DESC`).WillReturnError(errors.New("foo"))
	_, err := m.FindAll(ctx, nil)
	require.Error(t, err)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "foo", errors.Unwrap(err).Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_SelectWhere(t *testing.T) {
	conn, mock := newMockConnection(t, Postgres)
	m := MustNewMapper(conn, testUserMap(), MarkDeleted("del"))
	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a WHERE a."del" = 0 AND (a."active" = $1 OR a."name" = $2) ORDER BY a."id" DESC`).
		WithArgs(1, "Bob").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT(*) AS i FROM (SELECT DISTINCT a.* FROM "test_user" a WHERE a."del" = 0 AND (a."active" = $1 OR a."name" = $2) ORDER BY a."id" DESC) AS t`).
		WithArgs(1, "Bob").
		WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(1))
	rs, err := m.SelectWhere(ctx, map[string]any{"name": "Bob", "active": 1}, nil, "or")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())

	_, err = m.SelectWhere(ctx, map[string]any{"name = 1 OR 1": 1}, nil, "AND")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_SelectFilter(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	f := NewFilter(map[string]any{"team": "red"}, NewTool("name", 0, 0))
	f.AppendFrom(", team b").
		AppendWhere("a.team_id = b.id").
		AppendWhere(" AND b.name = ?", f.Get("team"))
	f.Select = "a.*, b.name AS team_name"
	mock.ExpectQuery(`SELECT DISTINCT a.*, b.name AS team_name FROM "test_user" a , team b WHERE a.team_id = b.id AND b.name = ? ORDER BY a."name"`).
		WithArgs("red").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_name"}).AddRow(1, "red"))
	mock.ExpectQuery(`SELECT COUNT(*) AS i FROM (SELECT DISTINCT a.*, b.name AS team_name FROM "test_user" a , team b WHERE a.team_id = b.id AND b.name = ? ORDER BY a."name") AS t`).
		WithArgs("red").
		WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(1))
	rs, err := m.SelectFilter(ctx, f)
	require.NoError(t, err)
	require.Equal(t, "red", rs.Record(0)["team_name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_Find(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	m := MustNewMapper(conn, testUserMap())
	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a WHERE a."id" = ? LIMIT 1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "Bob"))
	u, err := m.Find(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "Bob", u.Name)

	mock.ExpectQuery(`SELECT DISTINCT a.* FROM "test_user" a WHERE a."id" = ? LIMIT 1`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	u, err = m.Find(ctx, 4)
	require.NoError(t, err)
	require.Nil(t, u)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapper_MakeMultiQuery(t *testing.T) {
	conn, _ := newMockConnection(t, MySQL)
	m := MustNewMapper(conn, testUserMap())
	where, args, err := m.MakeMultiQuery([]any{"a", "", nil, "b", 0, 3}, "a.name", "or", "=")
	require.NoError(t, err)
	assert.Equal(t, "`a`.`name` = ? OR `a`.`name` = ? OR `a`.`name` = ?", where)
	assert.Equal(t, []any{"a", "b", 3}, args)

	where, args, err = m.MakeMultiQuery([]any{"x%"}, "name", "AND", "like")
	require.NoError(t, err)
	assert.Equal(t, "`name` LIKE ?", where)
	assert.Equal(t, []any{"x%"}, args)

	where, _, err = m.MakeMultiQuery([]any{1}, "id", "; DROP", "= 1 OR")
	require.NoError(t, err)
	assert.Equal(t, "`id` = ?", where)

	where, args, err = m.MakeMultiQuery(nil, "id", "OR", "=")
	require.NoError(t, err)
	assert.Equal(t, "", where)
	assert.Empty(t, args)

	for _, column := range []string{"id = 1 OR 1", "name; DROP TABLE x", "a.b.c", "LOWER(name)"} {
		where, args, err = m.MakeMultiQuery([]any{1}, column, "OR", "=")
		require.ErrorIs(t, err, ErrInvalidIdentifier)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "", where)
		assert.Nil(t, args)
	}
}
