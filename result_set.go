package tkdb

import (
	"iter"
)

// RowMapper maps a fetched row to a model (Mapper is a RowMapper)
type RowMapper[T any] interface {
	Map(row Row) (*T, error)
}

// ResultSet is a page of fetched rows, mapped to models on access
type ResultSet[T any] struct {
	rows      []Row
	mapper    RowMapper[T]
	sql       string
	args      []any
	tool      *Tool
	foundRows int64
	idx       int
}

// NewResultSet creates a result set over already fetched rows
//
// mapper may be nil, in which case only the generic Record accessors are usable
func NewResultSet[T any](rows []Row, mapper RowMapper[T], foundRows int64) *ResultSet[T] {
	if rows == nil {
		rows = []Row{}
	}
	return &ResultSet[T]{
		rows:      rows,
		mapper:    mapper,
		foundRows: foundRows,
		tool:      DefaultTool(),
		idx:       -1,
	}
}

// Len returns the number of fetched rows (the page size)
func (rs *ResultSet[T]) Len() int {
	return len(rs.rows)
}

// FoundRows returns the number of rows the select would have returned without a limit
func (rs *ResultSet[T]) FoundRows() int64 {
	return rs.foundRows
}

// CountAll is the same as FoundRows
func (rs *ResultSet[T]) CountAll() int64 {
	return rs.foundRows
}

// SQL returns the statement that produced the result set
func (rs *ResultSet[T]) SQL() string {
	return rs.sql
}

func (rs *ResultSet[T]) Args() []any {
	return rs.args
}

func (rs *ResultSet[T]) Tool() *Tool {
	return rs.tool
}

// Rows returns the raw fetched rows
func (rs *ResultSet[T]) Rows() []Row {
	return rs.rows
}

// Get maps the i'th row - nil, nil if i is out of range
func (rs *ResultSet[T]) Get(i int) (*T, error) {
	if i < 0 || i >= len(rs.rows) {
		return nil, nil
	}
	if rs.mapper == nil {
		return nil, &ConversionError{Err: ErrInvalidTarget}
	}
	return rs.mapper.Map(rs.rows[i])
}

// Record returns the i'th row as a generic Record - nil if i is out of range
func (rs *ResultSet[T]) Record(i int) Record {
	if i < 0 || i >= len(rs.rows) {
		return nil
	}
	r := make(Record, len(rs.rows[i]))
	for k, v := range rs.rows[i] {
		r[k] = v
	}
	return r
}

// Reset restarts iteration
func (rs *ResultSet[T]) Reset() {
	rs.idx = -1
}

// Next advances to the next row, returning false when there are no more rows
func (rs *ResultSet[T]) Next() bool {
	if rs.idx < len(rs.rows) {
		rs.idx++
	}
	return rs.idx < len(rs.rows)
}

// Key returns the index of the current row
func (rs *ResultSet[T]) Key() int {
	return rs.idx
}

// Current maps the current row
func (rs *ResultSet[T]) Current() (*T, error) {
	return rs.Get(rs.idx)
}

// All iterates over every mapped row - iteration stops after the first mapping error is yielded
func (rs *ResultSet[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for i := range rs.rows {
			obj, err := rs.Get(i)
			if !yield(obj, err) || err != nil {
				return
			}
		}
	}
}

// Objects maps every row
func (rs *ResultSet[T]) Objects() ([]*T, error) {
	result := make([]*T, 0, len(rs.rows))
	for obj, err := range rs.All() {
		if err != nil {
			return nil, err
		}
		result = append(result, obj)
	}
	return result, nil
}

// ToMap projects the mapped objects into a map
//
// valueField and keyField name a property (resolved through the mapper's DataMap) or, failing that, a column
// of the fetched row. Values default to the object itself (the Record when there is no mapper), keys default
// to the row index. A field that is neither a mapped property nor a row column falls back to the default.
func (rs *ResultSet[T]) ToMap(valueField string, keyField string) (map[any]any, error) {
	var dm *DataMap[T]
	if dmp, ok := rs.mapper.(interface{ DataMap() *DataMap[T] }); ok {
		dm = dmp.DataMap()
	}
	result := make(map[any]any, len(rs.rows))
	for i, row := range rs.rows {
		var obj *T
		var v any = rs.Record(i)
		if rs.mapper != nil {
			var err error
			if obj, err = rs.mapper.Map(row); err != nil {
				return nil, err
			}
			v = obj
		}
		field := func(name string, def any) any {
			if name == "" {
				return def
			}
			if dm != nil && obj != nil {
				if pm := dm.PropertyMap(name); pm != nil {
					return pm.PropertyValue(obj)
				}
			}
			if fv, ok := row[name]; ok {
				return fv
			}
			return def
		}
		result[field(keyField, i)] = field(valueField, v)
	}
	return result, nil
}
