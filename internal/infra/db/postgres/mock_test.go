//go:build !integration

package postgres

import (
	"context"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	red "edu-access-core/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPlanRepo mocks the database repository that the Plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error)
	ListActiveFunc func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	return m.FindByCodeFunc(ctx, tx, code)
}
func (m *mockInnerPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListActiveFunc(ctx, tx)
}

// mockRedisClient is a map-backed stand-in for the Redis wrapper.
type mockRedisClient struct {
	data    map[string]string
	deleted []string
	getErr  error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", red.ErrCacheMiss
	}
	return v, nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, expiration)
}
func (m *mockRedisClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	m.deleted = append(m.deleted, keys...)
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
