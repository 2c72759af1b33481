package tkdb

import (
	"errors"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	cfg := DefaultConfig()
	cfg.TablePrefix = "app_"
	cfg.EncryptKey = "k"
	r := NewRegistry(conn, cfg)
	require.Same(t, conn, r.Connection())
	require.Equal(t, cfg, r.Config())
	require.Equal(t, "k", r.EncryptKey())

	_, err := MapperFor[testUser](r)
	require.ErrorIs(t, err, ErrNoMapper)
	require.Panics(t, func() {
		_ = MustMapperFor[testUser](r)
	})

	var calls atomic.Int32
	Register(r, func(r *Registry) (*Mapper[testUser], error) {
		calls.Add(1)
		return NewRegistryMapper(r, testUserMap(), MarkDeleted("del"))
	})
	m, err := MapperFor[testUser](r)
	require.NoError(t, err)
	require.Equal(t, "app_test_user", m.Table())
	require.Equal(t, "del", m.MarkDeleted())
	require.Same(t, m, MustMapperFor[testUser](r))
	require.Equal(t, int32(1), calls.Load())

	Register(r, func(r *Registry) (*Mapper[testUser], error) {
		return NewRegistryMapper(r, testUserMap(), Table("member"))
	})
	m2, err := MapperFor[testUser](r)
	require.NoError(t, err)
	require.NotSame(t, m, m2)
	require.Equal(t, "app_member", m2.Table())
}

func TestRegistry_FactoryError(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	r := NewRegistry(conn, DefaultConfig())
	Register(r, func(r *Registry) (*Mapper[Record], error) {
		return nil, errors.New("factory failed")
	})
	_, err := MapperFor[Record](r)
	require.EqualError(t, err, "factory failed")
}

func TestRegistry_Concurrent(t *testing.T) {
	conn, _ := newMockConnection(t, SQLite)
	r := NewRegistry(conn, DefaultConfig())
	Register(r, func(r *Registry) (*Mapper[testUser], error) {
		return NewRegistryMapper(r, testUserMap())
	})
	var wg sync.WaitGroup
	results := make([]*Mapper[testUser], 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MustMapperFor[testUser](r)
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		require.Same(t, results[0], m)
	}
}

func TestRegistry_EncryptKey(t *testing.T) {
	conn, mock := newMockConnection(t, SQLite)
	cfg := DefaultConfig()
	cfg.EncryptKey = "top secret"
	r := NewRegistry(conn, cfg)
	type account struct {
		ID       int64
		Password string
	}
	dm := MustNewDataMap([]*PropertyMap[account]{
		Key("id", Bind(func(a *account) int64 { return a.ID }, func(a *account, v int64) { a.ID = v })),
		Encrypted("password", Bind(func(a *account) string { return a.Password }, func(a *account, v string) { a.Password = v }), r.EncryptKey),
	})
	m, err := NewRegistryMapper(r, dm)
	require.NoError(t, err)
	require.Equal(t, "account", m.Table())

	row, err := m.Unmap(&account{ID: 1, Password: "hunter2"})
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", row["password"])
	back, err := m.Map(row)
	require.NoError(t, err)
	require.Equal(t, "hunter2", back.Password)
	require.NoError(t, mock.ExpectationsWereMet())
}
