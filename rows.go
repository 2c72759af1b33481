package tkdb

import (
	"database/sql"
)

// Row is a single fetched (or unmapped) record keyed by column name
type Row map[string]any

// Record is the generic (untyped) form of a mapped object
type Record map[string]any

// SetDynamicField implements DynamicFieldSetter
func (r Record) SetDynamicField(name string, value any) {
	r[name] = value
}

// ColumnScanner is a func that can be used to read the value of a column before it reaches a codec
type ColumnScanner func(src any) (value any, err error)

// ColumnScanners is an option of column scanners by column name
type ColumnScanners map[string]ColumnScanner

type columnsInfo struct {
	count    int
	names    []string
	scanners ColumnScanners
}

type columnsReader struct {
	count    int
	names    []string
	values   []any
	scanArgs []any
}

func newColumnsInfo(rows *sql.Rows, scanners ColumnScanners) (*columnsInfo, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return &columnsInfo{
		count:    len(names),
		names:    names,
		scanners: scanners,
	}, nil
}

func (ci *columnsInfo) reader() *columnsReader {
	r := &columnsReader{
		count:    ci.count,
		values:   make([]any, ci.count),
		scanArgs: make([]any, ci.count),
		names:    ci.names,
	}
	for i := 0; i < ci.count; i++ {
		r.scanArgs[i] = ci.buildScanner(r, i)
	}
	return r
}

func (ci *columnsInfo) buildScanner(cr *columnsReader, index int) sql.Scanner {
	if s, ok := ci.scanners[ci.names[index]]; ok && s != nil {
		return &customColumnScanner{
			columns: cr,
			index:   index,
			scanner: s,
		}
	}
	return &valueColumnScanner{
		columns: cr,
		index:   index,
	}
}

func (cr *columnsReader) row() Row {
	result := make(Row, cr.count)
	for i, name := range cr.names {
		result[name] = cr.values[i]
	}
	return result
}

type customColumnScanner struct {
	columns *columnsReader
	index   int
	scanner ColumnScanner
}

func (c *customColumnScanner) Scan(src any) error {
	v, err := c.scanner(src)
	if err == nil {
		c.columns.values[c.index] = v
	}
	return err
}

// valueColumnScanner normalises driver values - []byte becomes string, everything else is kept as-is
type valueColumnScanner struct {
	columns *columnsReader
	index   int
}

func (c *valueColumnScanner) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		c.columns.values[c.index] = string(v)
	default:
		c.columns.values[c.index] = v
	}
	return nil
}

// readRows reads (and closes) all rows
func readRows(rows *sql.Rows, scanners ColumnScanners) (result []Row, err error) {
	defer func() {
		_ = rows.Close()
	}()
	var ci *columnsInfo
	if ci, err = newColumnsInfo(rows, scanners); err != nil {
		return nil, err
	}
	result = make([]Row, 0)
	for rows.Next() {
		cr := ci.reader()
		if err = rows.Scan(cr.scanArgs...); err != nil {
			return nil, err
		}
		result = append(result, cr.row())
	}
	return result, rows.Err()
}
