package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blessingk/neo4j/pkg/models"
)

type mapKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = expiration
	return nil
}

func (m *mapKV) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return m.err
}

func TestBrandCache(t *testing.T) {
	ctx := context.Background()
	kv := newMapKV()
	cache := NewBrandCache(kv, time.Minute, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	assert.Nil(t, cache.Get(ctx, "brand-a"))

	cache.Set(ctx, &models.Brand{ID: "brand-a", Name: "Brand A", Slug: "brand-a"})
	assert.Equal(t, time.Minute, kv.ttls["identity:brand:brand-a"])

	got := cache.Get(ctx, "brand-a")
	require.NotNil(t, got)
	assert.Equal(t, "Brand A", got.Name)

	cache.Invalidate(ctx, "brand-a")
	assert.Nil(t, cache.Get(ctx, "brand-a"))
}

func TestBrandCache_FailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	kv := newMapKV()
	kv.data["identity:brand:bad"] = "{not json"
	cache := NewBrandCache(kv, time.Minute, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	assert.Nil(t, cache.Get(ctx, "bad"))

	kv.err = errors.New("connection refused")
	assert.Nil(t, cache.Get(ctx, "brand-a"))
	cache.Set(ctx, &models.Brand{ID: "brand-a"})
	cache.Invalidate(ctx, "brand-a")
}
