package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), time.Second))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryInvalidateAndSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = m.Put(ctx, "a", []byte("1"), time.Minute)
	_ = m.Put(ctx, "b", []byte("2"), time.Second)
	_ = m.Put(ctx, "c", []byte("3"), time.Minute)
	require.NoError(t, m.Invalidate(ctx, "a"))

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryZeroTTLIsNotStored(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put(context.Background(), "k", []byte("v"), 0))
	_, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	val := []byte("abc")
	_ = m.Put(ctx, "k", val, time.Minute)
	val[0] = 'x'
	got, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

func TestMemoryRunFreesUnreadKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Put(ctx, "search:"+strconv.Itoa(i), []byte("x"), 5*time.Second))
	}
	// clock is moved before the sweeper starts so it is never written
	// concurrently with a read
	now = now.Add(time.Hour)
	require.Equal(t, 1000, m.Len())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		m.Run(runCtx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done
}
