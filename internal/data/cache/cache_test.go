package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemory_TTLExpires(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_ValueIsolated(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	src := []byte("original")
	c.Set(ctx, "k", src, 0)
	src[0] = 'X'

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestNew_EmptyAddrFallsBackToMemory(t *testing.T) {
	c := New("", 0)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)
}
