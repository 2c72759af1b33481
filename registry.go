package tkdb

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrNoMapper is returned by MapperFor when no mapper factory is registered for the model type
var ErrNoMapper = errors.New("no mapper registered")

// Config holds the process wide settings shared by the mappers of a Registry
type Config struct {
	// HideDeleted excludes soft deleted rows from selects of mappers with MarkDeleted set
	HideDeleted bool
	// AutoDates stamps created/modified columns on insert and update
	AutoDates bool
	// EncryptKey is the secret used by encrypted codecs bound with Registry.EncryptKey
	EncryptKey string
	// TablePrefix is prepended to every mapper table name
	TablePrefix string
}

// DefaultConfig returns the default Config (HideDeleted and AutoDates on)
func DefaultConfig() Config {
	return Config{
		HideDeleted: true,
		AutoDates:   true,
	}
}

// MapperFactory creates the mapper for a model type
type MapperFactory[T any] func(r *Registry) (*Mapper[T], error)

// Registry lazily creates and caches one Mapper per model type
type Registry struct {
	conn      *Connection
	config    Config
	mutex     sync.Mutex
	factories map[reflect.Type]any
	mappers   map[reflect.Type]any
}

func NewRegistry(conn *Connection, config Config) *Registry {
	return &Registry{
		conn:      conn,
		config:    config,
		factories: map[reflect.Type]any{},
		mappers:   map[reflect.Type]any{},
	}
}

func (r *Registry) Connection() *Connection {
	return r.conn
}

func (r *Registry) Config() Config {
	return r.config
}

// EncryptKey returns Config.EncryptKey (usable as a KeyFunc)
func (r *Registry) EncryptKey() string {
	return r.config.EncryptKey
}

// NewRegistryMapper creates a mapper using the registry connection and config
func NewRegistryMapper[T any](r *Registry, dataMap *DataMap[T], options ...any) (*Mapper[T], error) {
	return NewMapper(r.conn, dataMap, append([]any{r.config}, options...)...)
}

// Register registers the factory for model type T - replacing any existing factory and cached mapper
func Register[T any](r *Registry, factory MapperFactory[T]) {
	t := reflect.TypeFor[T]()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories[t] = factory
	delete(r.mappers, t)
}

// MapperFor returns the mapper for model type T, creating it on first use
func MapperFor[T any](r *Registry) (*Mapper[T], error) {
	t := reflect.TypeFor[T]()
	r.mutex.Lock()
	if m, ok := r.mappers[t]; ok {
		r.mutex.Unlock()
		return m.(*Mapper[T]), nil
	}
	f, ok := r.factories[t]
	r.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoMapper, t)
	}
	m, err := f.(MapperFactory[T])(r)
	if err != nil {
		return nil, err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if existing, ok := r.mappers[t]; ok {
		return existing.(*Mapper[T]), nil
	}
	r.mappers[t] = m
	return m, nil
}

// MustMapperFor is the same as MapperFor, except it panics on error
func MustMapperFor[T any](r *Registry) *Mapper[T] {
	m, err := MapperFor[T](r)
	if err != nil {
		panic(err)
	}
	return m
}
