package tkdb

import (
	"github.com/spf13/cast"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	ParamGroupBy   = "groupBy"
	ParamHaving    = "having"
	ParamOrderBy   = "orderBy"
	ParamLimit     = "limit"
	ParamOffset    = "offset"
	ParamDistinct  = "distinct"
	ParamFoundRows = "foundRows"
)

// DefaultOrderBy is the order by used by DefaultTool
const DefaultOrderBy = "id DESC"

// Tool holds the ordering, grouping and paging applied to a select
type Tool struct {
	orderBy    string
	groupBy    string
	having     string
	limit      int
	offset     int
	distinct   bool
	foundRows  int64
	instanceID string
}

// NewTool creates a Tool - negative limit/offset values are clamped to 0
func NewTool(orderBy string, limit int, offset int) *Tool {
	t := &Tool{distinct: true}
	return t.SetOrderBy(orderBy).SetLimit(limit).SetOffset(offset)
}

// DefaultTool creates a Tool ordered by DefaultOrderBy with no limit
func DefaultTool() *Tool {
	return NewTool(DefaultOrderBy, 0, 0)
}

// ToolFromParams creates a Tool from request style parameters (keys optionally prefixed by the instance id)
func ToolFromParams(params map[string]any, defaultOrderBy string, defaultLimit int, instanceID string) *Tool {
	t := NewTool(defaultOrderBy, defaultLimit, 0)
	t.instanceID = instanceID
	if v, ok := params[t.MakeInstanceKey(ParamOffset)]; ok {
		t.SetOffset(cast.ToInt(v))
	}
	if v, ok := params[t.MakeInstanceKey(ParamOrderBy)]; ok {
		t.SetOrderBy(cast.ToString(v))
	}
	if v, ok := params[t.MakeInstanceKey(ParamLimit)]; ok {
		t.SetLimit(cast.ToInt(v))
	}
	if v, ok := params[t.MakeInstanceKey(ParamGroupBy)]; ok {
		t.SetGroupBy(cast.ToString(v))
	}
	if v, ok := params[t.MakeInstanceKey(ParamHaving)]; ok {
		t.SetHaving(cast.ToString(v))
	}
	if v, ok := params[t.MakeInstanceKey(ParamDistinct)]; ok {
		t.SetDistinct(cast.ToBool(v))
	}
	return t
}

// UpdateFromParams applies any parameters present - returns true if any Tool parameter was present
//
// a changed limit resets the offset to 0
func (t *Tool) UpdateFromParams(params map[string]any) bool {
	updated := false
	if v, ok := params[t.MakeInstanceKey(ParamOrderBy)]; ok {
		t.SetOrderBy(cast.ToString(v))
		updated = true
	}
	if v, ok := params[t.MakeInstanceKey(ParamLimit)]; ok {
		if l := cast.ToInt(v); l != t.limit {
			t.SetLimit(l)
			t.offset = 0
		}
		updated = true
	}
	if v, ok := params[t.MakeInstanceKey(ParamOffset)]; ok {
		t.SetOffset(cast.ToInt(v))
		updated = true
	}
	if v, ok := params[t.MakeInstanceKey(ParamGroupBy)]; ok {
		t.SetGroupBy(cast.ToString(v))
		updated = true
	}
	if v, ok := params[t.MakeInstanceKey(ParamHaving)]; ok {
		t.SetHaving(cast.ToString(v))
		updated = true
	}
	if v, ok := params[t.MakeInstanceKey(ParamDistinct)]; ok {
		t.SetDistinct(cast.ToBool(v))
		updated = true
	}
	return updated
}

// Params returns the Tool as parameters (group by and having only when set)
func (t *Tool) Params() map[string]any {
	result := map[string]any{
		t.MakeInstanceKey(ParamOrderBy): t.orderBy,
		t.MakeInstanceKey(ParamLimit):   t.limit,
		t.MakeInstanceKey(ParamOffset):  t.offset,
	}
	if t.groupBy != "" {
		result[t.MakeInstanceKey(ParamGroupBy)] = t.groupBy
	}
	if t.having != "" {
		result[t.MakeInstanceKey(ParamHaving)] = t.having
	}
	return result
}

// MakeInstanceKey prefixes the key with the instance id (if set)
func (t *Tool) MakeInstanceKey(key string) string {
	if t.instanceID != "" {
		return t.instanceID + "-" + key
	}
	return key
}

// Clone returns a copy of the Tool
func (t *Tool) Clone() *Tool {
	c := *t
	return &c
}

func (t *Tool) OrderBy() string {
	return t.orderBy
}

func (t *Tool) SetOrderBy(orderBy string) *Tool {
	t.orderBy = orderBy
	return t
}

func (t *Tool) GroupBy() string {
	return t.groupBy
}

func (t *Tool) SetGroupBy(groupBy string) *Tool {
	t.groupBy = groupBy
	return t
}

func (t *Tool) Having() string {
	return t.having
}

func (t *Tool) SetHaving(having string) *Tool {
	t.having = having
	return t
}

func (t *Tool) Limit() int {
	return t.limit
}

func (t *Tool) SetLimit(limit int) *Tool {
	t.limit = max(limit, 0)
	return t
}

func (t *Tool) Offset() int {
	return t.offset
}

func (t *Tool) SetOffset(offset int) *Tool {
	t.offset = max(offset, 0)
	return t
}

func (t *Tool) Distinct() bool {
	return t.distinct
}

func (t *Tool) SetDistinct(distinct bool) *Tool {
	t.distinct = distinct
	return t
}

// FoundRows is the total number of rows (without limit) found by the last select using this Tool
func (t *Tool) FoundRows() int64 {
	return t.foundRows
}

func (t *Tool) SetFoundRows(found int64) *Tool {
	t.foundRows = found
	return t
}

func (t *Tool) InstanceID() string {
	return t.instanceID
}

func (t *Tool) SetInstanceID(id string) *Tool {
	t.instanceID = id
	return t
}

// PageNo returns the 1 based page number for the offset - 1 when there is no limit
func (t *Tool) PageNo() int {
	if t.limit == 0 {
		return 1
	}
	return int(math.Ceil(float64(t.offset)/float64(t.limit))) + 1
}

var (
	complexOrderProperty = regexp.MustCompile(`^(ASC|DESC|FIELD\(|IFNULL\(|RAND\(|IF\(|NULL|CASE)`)
	orderPropertyToken   = regexp.MustCompile(`(?i)^([a-z0-9]+\.)?([a-z0-9_\-]+)`)
	complexOrderField    = regexp.MustCompile(`(?i)^(ASC|DESC|FIELD\(|'|RAND|CONCAT|SUBSTRING\(|IF\(|NULL|CASE)`)
)

// OrderProperty returns the bare property name the Tool orders by - the order by unchanged if it is a complex expression
func (t *Tool) OrderProperty() string {
	order := t.orderBy
	if order != "" && !complexOrderProperty.MatchString(order) {
		if m := orderPropertyToken.FindStringSubmatch(order); m != nil {
			order = strings.TrimSpace(m[2])
		}
	}
	return order
}

// Quoter quotes identifiers (Dialect and Connection are both Quoters)
type Quoter interface {
	Quote(name string) string
}

// SQL renders the GROUP BY, HAVING, ORDER BY and LIMIT/OFFSET clauses
//
// when alias and quoter are given, unqualified order fields are alias qualified and quoted
func (t *Tool) SQL(alias string, quoter Quoter) string {
	parts := make([]string, 0, 4)
	if t.groupBy != "" {
		parts = append(parts, "GROUP BY "+strings.TrimSpace(Fragment(t.groupBy).Sanitize()))
	}
	if t.having != "" {
		parts = append(parts, "HAVING "+strings.TrimSpace(Fragment(t.having).Sanitize()))
	}
	if t.orderBy != "" {
		fields := strings.TrimSpace(Fragment(t.orderBy).Sanitize())
		if alias != "" && quoter != nil && !complexOrderField.MatchString(fields) {
			fields = qualifyOrderFields(fields, alias, quoter)
		}
		if fields != "" {
			parts = append(parts, "ORDER BY "+fields)
		}
	}
	if t.limit > 0 {
		limit := "LIMIT " + strconv.Itoa(t.limit)
		if t.offset > 0 {
			limit += " OFFSET " + strconv.Itoa(t.offset)
		}
		parts = append(parts, limit)
	}
	return strings.Join(parts, " ")
}

func qualifyOrderFields(fields string, alias string, quoter Quoter) string {
	if !strings.HasSuffix(alias, ".") {
		alias += "."
	}
	list := strings.Split(fields, ",")
	for i, f := range list {
		f = strings.TrimSpace(f)
		if !complexOrderField.MatchString(f) && !strings.ContainsAny(f, ".(") {
			words := strings.Fields(f)
			if len(words) > 0 {
				f = alias + quoter.Quote(words[0])
				if len(words) > 1 && (strings.EqualFold(words[1], "ASC") || strings.EqualFold(words[1], "DESC")) {
					f += " " + words[1]
				}
			}
		}
		list[i] = f
	}
	return strings.Join(list, ", ")
}
