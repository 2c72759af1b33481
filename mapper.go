package tkdb

import (
	"context"
	"database/sql"
	"fmt"
	"go.uber.org/zap"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Table is an option for NewMapper that sets the table name (Config.TablePrefix is still applied)
type Table string

// Alias is an option for NewMapper that sets the table alias used in selects (default "a")
type Alias string

// PrimaryKey is an option for NewMapper that sets the primary key column
//
// by default the column of the first KeyTag property map is used, or "id"
type PrimaryKey string

// MarkDeleted is an option for NewMapper that enables soft delete using the named column (by convention "del")
type MarkDeleted string

// FormMap is an option for NewMapper that supplies the DataMap used by Mapper.MapForm and Mapper.UnmapForm
type FormMap[T any] struct {
	DataMap *DataMap[T]
}

// UseFormMap creates a FormMap option
func UseFormMap[T any](dm *DataMap[T]) FormMap[T] {
	return FormMap[T]{DataMap: dm}
}

// NewModel is an option for NewMapper that creates empty model instances (default new(T))
type NewModel[T any] func() *T

const (
	DefaultAlias      = "a"
	DefaultPrimaryKey = "id"
	createdColumn     = "created"
	modifiedColumn    = "modified"
)

// Mapper provides CRUD and select assembly for a model type over a Connection
type Mapper[T any] struct {
	conn        *Connection
	config      Config
	dataMap     *DataMap[T]
	formMap     *DataMap[T]
	table       string
	alias       string
	primaryKey  string
	markDeleted string
	// matches where fragments that already reference the mark deleted column
	markDeletedPattern *regexp.Regexp
	newModel           func() *T
	errorTranslator    ErrorTranslator
	postProcessors     []PostMapProcessor[T]
	scanners           ColumnScanners
}

var _ RowMapper[Record] = (*Mapper[Record])(nil)

// NewMapper creates a new model mapper
//
// options can be any of: Config, Table, Alias, PrimaryKey, MarkDeleted, FormMap[T], NewModel[T], ErrorTranslator,
// PostMapProcessor[T] or ColumnScanners
func NewMapper[T any](conn *Connection, dataMap *DataMap[T], options ...any) (*Mapper[T], error) {
	if conn == nil {
		return nil, configError(nil, "mapper requires a connection")
	}
	if dataMap == nil {
		return nil, configError(nil, "mapper requires a data map")
	}
	m := &Mapper[T]{
		conn:     conn,
		config:   DefaultConfig(),
		dataMap:  dataMap,
		alias:    DefaultAlias,
		newModel: newModel[T],
	}
	table := ""
	if err := m.addOptions(&table, options...); err != nil {
		return nil, err
	}
	if table == "" {
		table = defaultTableName[T]()
	}
	m.table = m.config.TablePrefix + table
	if !ValidTableIdentifier(m.table) {
		return nil, configError(ErrInvalidIdentifier, "invalid table %q", m.table)
	}
	if err := checkIdentifier("alias", m.alias); err != nil {
		return nil, err
	}
	if m.primaryKey == "" {
		m.primaryKey = DefaultPrimaryKey
		if pm := dataMap.CurrentPropertyMap(KeyTag); pm != nil {
			m.primaryKey = pm.Column()
		}
	}
	if err := checkIdentifier("primary key", m.primaryKey); err != nil {
		return nil, err
	}
	if m.markDeleted != "" {
		if err := checkIdentifier("mark deleted column", m.markDeleted); err != nil {
			return nil, err
		}
		m.markDeletedPattern = regexp.MustCompile(`\b` + regexp.QuoteMeta(m.markDeleted) + `\b`)
	}
	for _, pm := range dataMap.PropertyMaps("") {
		if err := checkIdentifier("column", pm.Column()); err != nil {
			return nil, err
		}
	}
	conn.Logger().Debug("mapper created", zap.String("table", m.table), zap.String("primaryKey", m.primaryKey))
	return m, nil
}

// MustNewMapper is the same as NewMapper, except it panics on error
func MustNewMapper[T any](conn *Connection, dataMap *DataMap[T], options ...any) *Mapper[T] {
	m, err := NewMapper(conn, dataMap, options...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Mapper[T]) addOptions(table *string, options ...any) error {
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case Config:
				m.config = option
			case Table:
				*table = string(option)
			case Alias:
				m.alias = strings.Trim(string(option), ".")
			case PrimaryKey:
				m.primaryKey = string(option)
			case MarkDeleted:
				m.markDeleted = string(option)
			case FormMap[T]:
				m.formMap = option.DataMap
			case NewModel[T]:
				m.newModel = option
			case func() *T:
				m.newModel = option
			case ErrorTranslator:
				m.errorTranslator = option
			case PostMapProcessor[T]:
				m.postProcessors = append(m.postProcessors, option)
			case ColumnScanners:
				m.scanners = option
			default:
				return fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	return nil
}

func newModel[T any]() *T {
	obj := new(T)
	if r, ok := any(obj).(*Record); ok {
		*r = Record{}
	}
	return obj
}

func defaultTableName[T any]() string {
	name := reflect.TypeFor[T]().Name()
	if i := strings.Index(name, "["); i != -1 {
		name = name[:i]
	}
	return ToSnakeCase(name)
}

func (m *Mapper[T]) Connection() *Connection {
	return m.conn
}

func (m *Mapper[T]) DataMap() *DataMap[T] {
	return m.dataMap
}

func (m *Mapper[T]) FormDataMap() *DataMap[T] {
	return m.formMap
}

func (m *Mapper[T]) Table() string {
	return m.table
}

func (m *Mapper[T]) Alias() string {
	return m.alias
}

func (m *Mapper[T]) PrimaryKey() string {
	return m.primaryKey
}

func (m *Mapper[T]) MarkDeleted() string {
	return m.markDeleted
}

// TableInfo returns the column info of the mapper table
func (m *Mapper[T]) TableInfo(ctx context.Context) ([]ColumnInfo, error) {
	return m.conn.TableInfo(ctx, m.table)
}

// Map creates a new model from a row
func (m *Mapper[T]) Map(row Row) (*T, error) {
	return m.MapTo(row, nil)
}

// MapTo loads a row into an existing model (or a new model if obj is nil)
func (m *Mapper[T]) MapTo(row Row, obj *T) (*T, error) {
	if obj == nil {
		obj = m.newModel()
	}
	if err := m.dataMap.LoadObject(row, obj, ""); err != nil {
		return nil, err
	}
	for _, pp := range m.postProcessors {
		if err := pp.PostMap(row, obj); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Unmap returns the storage values of the model keyed by column
func (m *Mapper[T]) Unmap(obj *T) (Row, error) {
	return m.dataMap.LoadArray(obj, nil, "")
}

// MapForm loads submitted form values into the model (a new model if obj is nil), key tagged maps are ignored
func (m *Mapper[T]) MapForm(row Row, obj *T) (*T, error) {
	if m.formMap == nil {
		return nil, configError(ErrNoFormMap, "map form")
	}
	if obj == nil {
		obj = m.newModel()
	}
	if err := m.formMap.LoadObject(row, obj, KeyTag); err != nil {
		return nil, err
	}
	return obj, nil
}

// UnmapForm returns the form values of the model
func (m *Mapper[T]) UnmapForm(obj *T) (Row, error) {
	if m.formMap == nil {
		return nil, configError(ErrNoFormMap, "unmap form")
	}
	return m.formMap.LoadArray(obj, nil, "")
}

func (m *Mapper[T]) keyMap() *PropertyMap[T] {
	return m.dataMap.ColumnMap(m.primaryKey)
}

func (m *Mapper[T]) quote(name string) string {
	return m.conn.Quote(name)
}

func (m *Mapper[T]) translate(err error) error {
	return translateError(err, m.errorTranslator)
}

func (m *Mapper[T]) stampDate(obj *T, row Row, column string, now time.Time) error {
	if !m.config.AutoDates {
		return nil
	}
	pm := m.dataMap.ColumnMap(column)
	if pm == nil {
		return nil
	}
	if err := pm.SetColumnValue(obj, now); err != nil {
		return err
	}
	v, err := pm.ColumnValue(obj)
	if err != nil {
		return err
	}
	row[column] = v
	return nil
}

// Insert inserts the model, returning the generated primary key (which is also written back to the model)
//
// created and modified columns are stamped with the current time when Config.AutoDates is set
func (m *Mapper[T]) Insert(ctx context.Context, obj *T) (int64, error) {
	row, err := m.Unmap(obj)
	if err != nil {
		return 0, m.translate(err)
	}
	delete(row, m.primaryKey)
	now := time.Now()
	for _, col := range []string{createdColumn, modifiedColumn} {
		if _, ok := row[col]; ok {
			if err = m.stampDate(obj, row, col, now); err != nil {
				return 0, m.translate(err)
			}
		}
	}
	cols := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, pm := range m.dataMap.PropertyMaps("") {
		if v, ok := row[pm.Column()]; ok {
			cols = append(cols, m.quote(pm.Column()))
			args = append(args, v)
		}
	}
	var query string
	switch {
	case len(cols) > 0:
		query = "INSERT INTO " + m.quote(m.table) + " (" + strings.Join(cols, ", ") + ") VALUES (" +
			strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	case m.conn.Dialect() == MySQL:
		query = "INSERT INTO " + m.quote(m.table) + " () VALUES ()"
	default:
		query = "INSERT INTO " + m.quote(m.table) + " DEFAULT VALUES"
	}
	var id int64
	if m.conn.Dialect().Returning() {
		query = m.conn.Dialect().Rebind(query + " RETURNING " + m.quote(m.primaryKey))
		if err = m.conn.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, m.translate(storageError(err, query, args))
		}
	} else {
		var result sql.Result
		if result, err = m.conn.ExecContext(ctx, query, args...); err != nil {
			return 0, m.translate(err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, m.translate(storageError(err, query, args))
		}
	}
	if pm := m.keyMap(); pm != nil {
		if err = pm.SetColumnValue(obj, id); err != nil {
			return id, m.translate(err)
		}
	}
	return id, nil
}

// Update updates the model by primary key, returning the number of affected rows (0 is not an error)
func (m *Mapper[T]) Update(ctx context.Context, obj *T) (int64, error) {
	row, err := m.Unmap(obj)
	if err != nil {
		return 0, m.translate(err)
	}
	pkValue, ok := row[m.primaryKey]
	if !ok {
		return 0, configError(ErrNoPrimaryKey, "update %s", m.table)
	}
	if _, ok = row[modifiedColumn]; ok {
		if err = m.stampDate(obj, row, modifiedColumn, time.Now()); err != nil {
			return 0, m.translate(err)
		}
	}
	set := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, pm := range m.dataMap.PropertyMaps("") {
		if pm.Column() == m.primaryKey {
			continue
		}
		if v, has := row[pm.Column()]; has {
			set = append(set, m.quote(pm.Column())+" = ?")
			args = append(args, v)
		}
	}
	if len(set) == 0 {
		return 0, nil
	}
	args = append(args, pkValue)
	query := m.conn.Dialect().Rebind("UPDATE " + m.quote(m.table) + " SET " + strings.Join(set, ", ") +
		" WHERE " + m.quote(m.primaryKey) + " = ?")
	return m.exec(ctx, query, args...)
}

// Delete deletes the model by primary key - or, with MarkDeleted set, marks it deleted
//
// returns the number of affected rows
func (m *Mapper[T]) Delete(ctx context.Context, obj *T) (int64, error) {
	pm := m.keyMap()
	if pm == nil {
		return 0, configError(ErrNoPrimaryKey, "delete %s", m.table)
	}
	pkValue, err := pm.ColumnValue(obj)
	if err != nil {
		return 0, m.translate(err)
	}
	var query string
	if m.markDeleted != "" {
		query = "UPDATE " + m.quote(m.table) + " SET " + m.quote(m.markDeleted) + " = 1 WHERE " + m.quote(m.primaryKey) + " = ?"
	} else {
		query = "DELETE FROM " + m.quote(m.table) + " WHERE " + m.quote(m.primaryKey) + " = ?"
	}
	if m.conn.Dialect().LimitsModify() {
		query += " LIMIT 1"
	}
	return m.exec(ctx, m.conn.Dialect().Rebind(query), pkValue)
}

func (m *Mapper[T]) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := m.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, m.translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, m.translate(storageError(err, query, args))
	}
	return n, nil
}

// Save inserts the model if its primary key is unset (zero), otherwise updates it
func (m *Mapper[T]) Save(ctx context.Context, obj *T) error {
	pm := m.keyMap()
	if pm == nil {
		return configError(ErrNoPrimaryKey, "save %s", m.table)
	}
	var err error
	if isZeroKey(pm.PropertyValue(obj)) {
		_, err = m.Insert(ctx, obj)
	} else {
		_, err = m.Update(ctx, obj)
	}
	return err
}

func isZeroKey(v any) bool {
	switch kv := v.(type) {
	case nil:
		return true
	case string:
		return kv == "" || kv == "0"
	}
	return toInt64(v) == 0
}

// Select selects models using a where fragment (without the WHERE keyword) and its bind arguments
//
// where placeholders are written as ?
func (m *Mapper[T]) Select(ctx context.Context, where string, tool *Tool, args ...any) (*ResultSet[T], error) {
	return m.selectFrom(ctx, "", "", where, tool, true, args)
}

// SelectFrom is the same as Select, but with a from fragment replacing the default "table alias"
func (m *Mapper[T]) SelectFrom(ctx context.Context, from string, where string, tool *Tool, args ...any) (*ResultSet[T], error) {
	return m.selectFrom(ctx, "", from, where, tool, true, args)
}

// SelectFilter selects models using a Filter - the filter from is appended to the default "table alias"
func (m *Mapper[T]) SelectFilter(ctx context.Context, filter *Filter) (*ResultSet[T], error) {
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	from := ""
	if f := strings.TrimSpace(filter.From()); f != "" {
		from = m.quote(m.table) + " " + m.alias + " " + f
	}
	return m.selectFrom(ctx, filter.Select, from, filter.Where(), filter.Tool(), true, filter.Args())
}

// SelectWhere selects models matching every (or any, for boolOp "OR") column = value in bind
func (m *Mapper[T]) SelectWhere(ctx context.Context, bind map[string]any, tool *Tool, boolOp string) (*ResultSet[T], error) {
	boolOp = strings.ToUpper(strings.TrimSpace(boolOp))
	if boolOp != "OR" {
		boolOp = "AND"
	}
	cols := make([]string, 0, len(bind))
	for col := range bind {
		if err := checkIdentifier("column", col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	where := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		where = append(where, m.alias+"."+m.quote(col)+" = ?")
		args = append(args, bind[col])
	}
	return m.selectFrom(ctx, "", "", strings.Join(where, " "+boolOp+" "), tool, true, args)
}

// Find returns the model with the primary key - nil, nil if not found
func (m *Mapper[T]) Find(ctx context.Context, id any) (*T, error) {
	rs, err := m.selectFrom(ctx, "", "", m.alias+"."+m.quote(m.primaryKey)+" = ?", NewTool("", 1, 0), false, []any{id})
	if err != nil {
		return nil, err
	}
	return rs.Get(0)
}

// FindAll selects all models
func (m *Mapper[T]) FindAll(ctx context.Context, tool *Tool) (*ResultSet[T], error) {
	return m.Select(ctx, "", tool)
}

// orderTool rewrites an order by property name to its mapped column on a copy of the tool
func (m *Mapper[T]) orderTool(tool *Tool) *Tool {
	prop := tool.OrderProperty()
	if prop == "" {
		return tool
	}
	result := tool.Clone()
	if pm := m.dataMap.PropertyMap(prop); pm != nil && pm.Column() != prop {
		result.SetOrderBy(strings.Replace(tool.OrderBy(), prop, pm.Column(), 1))
	}
	return result
}

func (m *Mapper[T]) referencesMarkDeleted(where string) bool {
	return strings.Contains(where, m.quote(m.markDeleted)) || m.markDeletedPattern.MatchString(where)
}

// SelectSQL builds the select statement (with ? placeholders) used by the select methods
func (m *Mapper[T]) SelectSQL(selectList string, from string, where string, tool *Tool) string {
	if tool == nil {
		tool = DefaultTool()
	}
	from = strings.TrimSpace(Fragment(from).Sanitize())
	if from == "" {
		from = m.quote(m.table) + " " + m.alias
	}
	where = strings.TrimSpace(Fragment(where).Sanitize())
	if m.markDeleted != "" && m.config.HideDeleted && !m.referencesMarkDeleted(where) {
		pred := m.alias + "." + m.quote(m.markDeleted) + " = 0"
		if where != "" {
			where = pred + " AND (" + where + ")"
		} else {
			where = pred
		}
	}
	selectList = strings.TrimSpace(Fragment(selectList).Sanitize())
	if selectList == "" {
		selectList = m.alias + ".*"
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if m.conn.Dialect().CalcFoundRows() {
		sb.WriteString("SQL_CALC_FOUND_ROWS ")
	}
	if tool.Distinct() {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(selectList)
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if toolSQL := tool.SQL(m.alias, m.conn); toolSQL != "" {
		sb.WriteString(" ")
		sb.WriteString(toolSQL)
	}
	return sb.String()
}

func (m *Mapper[T]) selectFrom(ctx context.Context, selectList string, from string, where string, tool *Tool, countFound bool, args []any) (*ResultSet[T], error) {
	if tool == nil {
		tool = DefaultTool()
	}
	used := m.orderTool(tool)
	query := m.conn.Dialect().Rebind(m.SelectSQL(selectList, from, where, used))
	var (
		rows  []Row
		found int64
		err   error
	)
	if countFound {
		rows, found, err = m.conn.QueryFoundRows(ctx, query, m.scanners, args...)
	} else {
		query = strings.Replace(query, "SQL_CALC_FOUND_ROWS ", "", 1)
		rows, err = m.conn.queryRowsOn(ctx, m.conn.session(), query, m.scanners, args...)
		found = int64(len(rows))
	}
	if err != nil {
		return nil, m.translate(err)
	}
	used.SetFoundRows(found)
	tool.SetFoundRows(found)
	rs := NewResultSet[T](rows, m, found)
	rs.sql = query
	rs.args = args
	rs.tool = tool
	return rs, nil
}

// MakeMultiQuery builds a where fragment comparing column against each (non-empty) value,
// joined with logic ("OR" or "AND") - returns the fragment and its bind arguments
//
// column must be a (optionally alias qualified) identifier, anything else is a *ConfigError
func (m *Mapper[T]) MakeMultiQuery(values []any, column string, logic string, compare string) (string, []any, error) {
	if !ValidTableIdentifier(column) {
		return "", nil, configError(ErrInvalidIdentifier, "invalid column %q", column)
	}
	logic = strings.ToUpper(strings.TrimSpace(logic))
	if logic != "AND" {
		logic = "OR"
	}
	compare = strings.ToUpper(strings.TrimSpace(compare))
	if !allowedCompare[compare] {
		compare = "="
	}
	column = m.quote(column)
	parts := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		if isEmptyValue(v) {
			continue
		}
		parts = append(parts, column+" "+compare+" ?")
		args = append(args, v)
	}
	return strings.Join(parts, " "+logic+" "), args, nil
}

var allowedCompare = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true, "LIKE": true, "NOT LIKE": true,
}

func isEmptyValue(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == "" || tv == "0"
	case bool:
		return !tv
	}
	return toInt64(v) == 0 && fmt.Sprint(v) == "0"
}
