package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClampsToMinimum(t *testing.T) {
	p := New(0)
	assert.Equal(t, MinConnections, p.Capacity())

	p = New(-5)
	assert.Equal(t, MinConnections, p.Capacity())
}

func TestAcquireRelease(t *testing.T) {
	p := New(2)
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx))
	assert.Equal(t, 1, p.InUse())

	require.NoError(t, p.Acquire(ctx))
	assert.Equal(t, 2, p.InUse())

	p.Release()
	assert.Equal(t, 1, p.InUse())
}

func TestAcquire_BlocksWhenFull(t *testing.T) {
	p := New(1)
	ctx := context.Background()
	require.NoError(t, p.Acquire(ctx))

	ctx2, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_UnblocksAfterRelease(t *testing.T) {
	p := New(1)
	ctx := context.Background()
	require.NoError(t, p.Acquire(ctx))

	released := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Release()
		close(released)
	}()

	acquireCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Acquire(acquireCtx))
	<-released
}

func TestRelease_WithoutAcquireIsNoOp(t *testing.T) {
	p := New(2)
	p.Release()
	assert.Equal(t, 0, p.InUse())
}
