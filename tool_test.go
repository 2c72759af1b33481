package tkdb

import (
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNewTool(t *testing.T) {
	tool := NewTool("name", -5, -1)
	require.Equal(t, "name", tool.OrderBy())
	require.Equal(t, 0, tool.Limit())
	require.Equal(t, 0, tool.Offset())
	require.True(t, tool.Distinct())
	require.Equal(t, 1, tool.PageNo())

	def := DefaultTool()
	require.Equal(t, DefaultOrderBy, def.OrderBy())
	require.Equal(t, "id", def.OrderProperty())
}

func TestTool_PageNo(t *testing.T) {
	testCases := []struct {
		limit  int
		offset int
		expect int
	}{
		{0, 0, 1},
		{0, 50, 1},
		{10, 0, 1},
		{10, 10, 2},
		{10, 15, 3},
		{25, 100, 5},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, NewTool("", tc.limit, tc.offset).PageNo())
		})
	}
}

func TestToolFromParams(t *testing.T) {
	tool := ToolFromParams(map[string]any{
		"orderBy":  "name DESC",
		"limit":    "20",
		"offset":   40,
		"groupBy":  "team",
		"having":   "COUNT(*) > 1",
		"distinct": "false",
	}, "id", 50, "")
	require.Equal(t, "name DESC", tool.OrderBy())
	require.Equal(t, 20, tool.Limit())
	require.Equal(t, 40, tool.Offset())
	require.Equal(t, "team", tool.GroupBy())
	require.Equal(t, "COUNT(*) > 1", tool.Having())
	require.False(t, tool.Distinct())

	tool = ToolFromParams(map[string]any{"limit": 5, "t1-limit": 15, "t1-orderBy": "created"}, "id", 50, "t1")
	require.Equal(t, "t1", tool.InstanceID())
	require.Equal(t, 15, tool.Limit())
	require.Equal(t, "created", tool.OrderBy())

	tool = ToolFromParams(nil, "id", 50, "")
	require.Equal(t, "id", tool.OrderBy())
	require.Equal(t, 50, tool.Limit())
}

func TestTool_UpdateFromParams(t *testing.T) {
	tool := NewTool("id", 10, 30)
	require.False(t, tool.UpdateFromParams(map[string]any{"other": 1}))

	require.True(t, tool.UpdateFromParams(map[string]any{"limit": 10}))
	require.Equal(t, 30, tool.Offset())

	require.True(t, tool.UpdateFromParams(map[string]any{"limit": 20}))
	require.Equal(t, 20, tool.Limit())
	require.Equal(t, 0, tool.Offset())

	require.True(t, tool.UpdateFromParams(map[string]any{"offset": "40", "orderBy": "name"}))
	require.Equal(t, 40, tool.Offset())
	require.Equal(t, "name", tool.OrderBy())
}

func TestTool_Params(t *testing.T) {
	tool := NewTool("name", 10, 20).SetInstanceID("list")
	require.Equal(t, map[string]any{
		"list-orderBy": "name",
		"list-limit":   10,
		"list-offset":  20,
	}, tool.Params())
	tool.SetGroupBy("a").SetHaving("b")
	require.Equal(t, "a", tool.Params()["list-groupBy"])
	require.Equal(t, "b", tool.Params()["list-having"])

	back := ToolFromParams(tool.Params(), "", 0, "list")
	require.Equal(t, tool.OrderBy(), back.OrderBy())
	require.Equal(t, tool.Limit(), back.Limit())
	require.Equal(t, tool.Offset(), back.Offset())
}

func TestTool_Clone(t *testing.T) {
	tool := NewTool("name", 10, 20)
	c := tool.Clone()
	c.SetOrderBy("other").SetFoundRows(5)
	require.Equal(t, "name", tool.OrderBy())
	require.Equal(t, int64(0), tool.FoundRows())
	require.Equal(t, int64(5), c.FoundRows())
}

func TestTool_OrderProperty(t *testing.T) {
	testCases := []struct {
		orderBy string
		expect  string
	}{
		{"", ""},
		{"name", "name"},
		{"name DESC", "name"},
		{"a.name DESC", "name"},
		{"date_created, id", "date_created"},
		{"FIELD(id, 3, 1)", "FIELD(id, 3, 1)"},
		{"RAND()", "RAND()"},
		{"CASE WHEN x THEN 1 END", "CASE WHEN x THEN 1 END"},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, NewTool(tc.orderBy, 0, 0).OrderProperty())
		})
	}
}

func TestTool_SQL(t *testing.T) {
	testCases := []struct {
		tool   *Tool
		alias  string
		quoter Quoter
		expect string
	}{
		{
			tool:   NewTool("", 0, 0),
			expect: "",
		},
		{
			tool:   NewTool("name DESC", 10, 0),
			expect: "ORDER BY name DESC LIMIT 10",
		},
		{
			tool:   NewTool("name DESC", 10, 0),
			alias:  "a",
			quoter: MySQL,
			expect: "ORDER BY a.`name` DESC LIMIT 10",
		},
		{
			tool:   NewTool("name desc nulls, b.id, COUNT(x)", 0, 5),
			alias:  "a.",
			quoter: Postgres,
			expect: `ORDER BY a."name" desc, b.id, COUNT(x)`,
		},
		{
			tool:   NewTool("FIELD(id, 1, 2)", 5, 5).SetGroupBy("a.team").SetHaving("COUNT(*) > 1"),
			alias:  "a",
			quoter: SQLite,
			expect: "GROUP BY a.team HAVING COUNT(*) > 1 ORDER BY FIELD(id, 1, 2) LIMIT 5 OFFSET 5",
		},
		{
			tool:   NewTool("id; DELETE FROM x", 1, 0),
			alias:  "a",
			quoter: SQLite,
			expect: `ORDER BY a."id" LIMIT 1`,
		},
		{
			tool:   NewTool("", 0, 0).SetGroupBy("a.name; DROP x -- ").SetHaving("COUNT(*) > 0 /* x"),
			expect: "GROUP BY a.name  DROP x HAVING COUNT(*) > 0   x",
		},
		{
			tool:   NewTool("name -- x", 0, 0),
			expect: "ORDER BY name   x",
		},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, tc.tool.SQL(tc.alias, tc.quoter))
		})
	}
}
