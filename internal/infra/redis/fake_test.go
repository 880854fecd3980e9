//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeClient is an in-process RedisClient for unit tests. Expiry is ignored.
type fakeClient struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = exp
	return nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = exp
	return true, nil
}

func (f *fakeClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	fmt.Sscan(f.data[key], &n)
	n++
	f.data[key] = fmt.Sprint(n)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl[key] = exp
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeClient) Close() error { return nil }
