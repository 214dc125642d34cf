package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegistry_RegisterAndLookup(t *testing.T) {
	r := NewHandlerRegistry()
	boom := errors.New("boom")

	require.NoError(t, r.Register("sync.orders", func(ctx context.Context, cfg json.RawMessage) error {
		return boom
	}))

	h, ok := r.Lookup("sync.orders")
	require.True(t, ok)
	assert.ErrorIs(t, h(context.Background(), nil), boom)
	assert.True(t, r.Exists("sync.orders"))

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestHandlerRegistry_RejectsDuplicatesAndEmpty(t *testing.T) {
	r := NewHandlerRegistry()
	require.NoError(t, r.Register("a", noop))

	assert.Error(t, r.Register("a", noop))
	assert.Error(t, r.Register("", noop))
	assert.Error(t, r.Register("b", nil))
}

func TestHandlerRegistry_RegisterAllAndList(t *testing.T) {
	r := NewHandlerRegistry()
	require.NoError(t, r.RegisterAll([]MethodHandler{
		{JobType: "reports.daily", Func: noop},
		{JobType: "inventory.sync", Func: noop},
	}))

	assert.Equal(t, []string{"inventory.sync", "reports.daily"}, r.List())
}

func TestHandlerRegistry_ConcurrentLookup(t *testing.T) {
	r := NewHandlerRegistry()
	require.NoError(t, r.Register("a", noop))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Lookup("a")
			_ = r.List()
		}()
	}
	wg.Wait()
}
