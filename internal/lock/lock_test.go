package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.lock")

	g1, err := Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)

	_, err = Acquire(context.Background(), path, 150*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	require.NoError(t, g1.Release())

	g2, err := Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer g2.Release()
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.lock")

	g1, err := Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		g1.Release()
	}()

	g2, err := Acquire(context.Background(), path, 2*time.Second)
	require.NoError(t, err)
	defer g2.Release()
	assert.GreaterOrEqual(t, g2.Waited(), 50*time.Millisecond)
}

func TestRelease_Idempotent(t *testing.T) {
	g, err := Acquire(context.Background(), filepath.Join(t.TempDir(), "a", "b.lock"), time.Second)
	require.NoError(t, err)
	assert.NoError(t, g.Release())
	assert.NoError(t, g.Release())

	var nilGuard *Guard
	assert.NoError(t, nilGuard.Release())
}

func TestAcquire_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.lock")
	g1, err := Acquire(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer g1.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, path, time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
}
