package kvdata

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/cast"
	tkdb "github.com/tropotek/tk-database"
	"go.uber.org/zap"
	"sort"
	"sync"
)

const (
	DefaultTable      = "data"
	DefaultForeignKey = "system"
)

// Table is an option that can be passed to New/Load to change the data table name
type Table string

type item struct {
	ID         int64
	ForeignID  int64
	ForeignKey string
	Key        string
	Value      string
}

func itemMap() *tkdb.DataMap[item] {
	return tkdb.MustNewDataMap([]*tkdb.PropertyMap[item]{
		tkdb.Key("id", tkdb.Bind(func(i *item) int64 { return i.ID }, func(i *item, v int64) { i.ID = v })),
		tkdb.Integer("foreignId", tkdb.Bind(func(i *item) int64 { return i.ForeignID }, func(i *item, v int64) { i.ForeignID = v }), "foreign_id"),
		tkdb.Text("foreignKey", tkdb.Bind(func(i *item) string { return i.ForeignKey }, func(i *item, v string) { i.ForeignKey = v }), "foreign_key"),
		tkdb.Text("key", tkdb.Bind(func(i *item) string { return i.Key }, func(i *item, v string) { i.Key = v })),
		tkdb.Text("value", tkdb.Bind(func(i *item) string { return i.Value }, func(i *item, v string) { i.Value = v })),
	})
}

// Data is a key/value attribute bag owned by an entity (foreign id + foreign key)
//
// changes are held in memory until Save - removed keys are deleted from the table on Save
type Data struct {
	mapper     *tkdb.Mapper[item]
	logger     *zap.Logger
	foreignID  int64
	foreignKey string
	mutex      sync.RWMutex
	values     map[string]string
	stored     map[string]*item
	removed    map[string]bool
}

// New creates an empty Data for the owner, installing the data table if needed
//
// options can be any of: *zap.Logger, Table or tkdb.Config (for its table prefix)
func New(ctx context.Context, conn *tkdb.Connection, foreignID int64, foreignKey string, options ...any) (*Data, error) {
	if conn == nil {
		return nil, errors.New("data requires a connection")
	}
	if foreignKey == "" {
		foreignKey = DefaultForeignKey
	}
	d := &Data{
		logger:     conn.Logger(),
		foreignID:  foreignID,
		foreignKey: foreignKey,
		values:     map[string]string{},
		stored:     map[string]*item{},
		removed:    map[string]bool{},
	}
	table := DefaultTable
	config := tkdb.Config{}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case *zap.Logger:
				d.logger = option
			case Table:
				table = string(option)
			case tkdb.Config:
				config.TablePrefix = option.TablePrefix
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	var err error
	if d.mapper, err = tkdb.NewMapper(conn, itemMap(), tkdb.Table(table), config); err != nil {
		return nil, err
	}
	if err = install(ctx, conn, d.mapper.Table()); err != nil {
		return nil, err
	}
	return d, nil
}

// Load creates a Data for the owner and loads its stored values
func Load(ctx context.Context, conn *tkdb.Connection, foreignID int64, foreignKey string, options ...any) (*Data, error) {
	d, err := New(ctx, conn, foreignID, foreignKey, options...)
	if err != nil {
		return nil, err
	}
	if err = d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func install(ctx context.Context, conn *tkdb.Connection, table string) error {
	exists, err := conn.TableExists(ctx, table)
	if err != nil || exists {
		return err
	}
	var query string
	switch conn.Dialect() {
	case tkdb.MySQL:
		query = "CREATE TABLE IF NOT EXISTS " + conn.Quote(table) + " (" +
			"`id` INT(10) UNSIGNED AUTO_INCREMENT PRIMARY KEY, " +
			"`foreign_id` INT(10) NOT NULL DEFAULT 0, " +
			"`foreign_key` VARCHAR(128) NOT NULL DEFAULT '', " +
			"`key` VARCHAR(255) NOT NULL DEFAULT '', " +
			"`value` TEXT, " +
			"UNIQUE KEY (`foreign_id`, `foreign_key`, `key`)) ENGINE=InnoDB"
	case tkdb.Postgres:
		query = "CREATE TABLE IF NOT EXISTS " + conn.Quote(table) + " (" +
			"id SERIAL PRIMARY KEY, " +
			"foreign_id INTEGER NOT NULL DEFAULT 0, " +
			"foreign_key VARCHAR(128) NOT NULL DEFAULT '', " +
			`"key" VARCHAR(255) NOT NULL DEFAULT '', ` +
			`"value" TEXT, ` +
			`UNIQUE (foreign_id, foreign_key, "key"))`
	default:
		query = "CREATE TABLE IF NOT EXISTS " + conn.Quote(table) + " (" +
			"id INTEGER PRIMARY KEY AUTOINCREMENT, " +
			"foreign_id INTEGER NOT NULL DEFAULT 0, " +
			"foreign_key VARCHAR(128) NOT NULL DEFAULT '', " +
			`"key" VARCHAR(255) NOT NULL DEFAULT '', ` +
			`"value" TEXT, ` +
			`UNIQUE (foreign_id, foreign_key, "key"))`
	}
	_, err = conn.ExecContext(ctx, query)
	return err
}

func (d *Data) ForeignID() int64 {
	return d.foreignID
}

func (d *Data) ForeignKey() string {
	return d.foreignKey
}

// Reload discards unsaved changes and reads the owner's values from the table
func (d *Data) Reload(ctx context.Context) error {
	rs, err := d.mapper.SelectWhere(ctx, map[string]any{"foreign_id": d.foreignID, "foreign_key": d.foreignKey}, tkdb.NewTool("", 0, 0), "AND")
	if err != nil {
		return err
	}
	items, err := rs.Objects()
	if err != nil {
		return err
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.values = make(map[string]string, len(items))
	d.stored = make(map[string]*item, len(items))
	d.removed = map[string]bool{}
	for _, it := range items {
		d.values[it.Key] = it.Value
		d.stored[it.Key] = it
	}
	return nil
}

// Get returns the value for key
func (d *Data) Get(key string) (string, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// GetInt returns the value for key as an integer (0 when missing or not numeric)
func (d *Data) GetInt(key string) int64 {
	v, _ := d.Get(key)
	return cast.ToInt64(v)
}

// GetBool returns the value for key as a boolean (false when missing)
func (d *Data) GetBool(key string) bool {
	v, _ := d.Get(key)
	return cast.ToBool(v)
}

// Set sets the value for key - values must be convertible to a string (slices, maps and structs are not)
func (d *Data) Set(key string, value any) error {
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Errorf("data key %q: %w", key, err)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.values[key] = s
	delete(d.removed, key)
	return nil
}

func (d *Data) Has(key string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	_, ok := d.values[key]
	return ok
}

// Keys returns the (sorted) keys
func (d *Data) Keys() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	result := make([]string, 0, len(d.values))
	for k := range d.values {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func (d *Data) Len() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.values)
}

// All returns a copy of the values
func (d *Data) All() map[string]string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	result := make(map[string]string, len(d.values))
	for k, v := range d.values {
		result[k] = v
	}
	return result
}

// Remove removes the key - it is deleted from the table on Save
func (d *Data) Remove(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.values[key]; ok {
		delete(d.values, key)
		d.removed[key] = true
	}
}

// Clear removes every key
func (d *Data) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for k := range d.values {
		d.removed[k] = true
	}
	d.values = map[string]string{}
}

// Save writes changed values to the table (update or insert) and deletes removed keys, in a single transaction
func (d *Data) Save(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	conn := d.mapper.Connection()
	inserted := map[string]*item{}
	deleted := make([]string, 0, len(d.removed))
	err := conn.Transaction(ctx, func(ctx context.Context) error {
		for key := range d.removed {
			if it, ok := d.stored[key]; ok {
				if _, err := d.mapper.Delete(ctx, it); err != nil {
					return err
				}
			}
			deleted = append(deleted, key)
		}
		for key, value := range d.values {
			it, ok := d.stored[key]
			switch {
			case !ok:
				it = &item{ForeignID: d.foreignID, ForeignKey: d.foreignKey, Key: key, Value: value}
				if _, err := d.mapper.Insert(ctx, it); err != nil {
					return err
				}
				inserted[key] = it
			case it.Value != value:
				updated := *it
				updated.Value = value
				if _, err := d.mapper.Update(ctx, &updated); err != nil {
					return err
				}
				inserted[key] = &updated
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range deleted {
		delete(d.stored, key)
		delete(d.removed, key)
	}
	for key, it := range inserted {
		d.stored[key] = it
	}
	d.logger.Debug("data saved", zap.Int64("foreignId", d.foreignID), zap.String("foreignKey", d.foreignKey),
		zap.Int("written", len(inserted)), zap.Int("deleted", len(deleted)))
	return nil
}
