package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(2)
	p.Start()
	defer p.Stop()

	var ran atomic.Int32
	handles := make([]*Handle, 10)
	for i := range handles {
		handles[i] = p.Submit(func(ctx context.Context) (types.Outcome, error) {
			ran.Add(1)
			return types.Outcome{State: types.OutcomePersisted}, nil
		})
	}

	for _, h := range handles {
		outcome, err := h.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, types.OutcomePersisted, outcome.State)
	}
	assert.Equal(t, int32(10), ran.Load())
}

func TestPoolReturnsTaskError(t *testing.T) {
	p := NewPool(1)
	p.Start()
	defer p.Stop()

	boom := errors.New("boom")
	h := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		return types.Outcome{State: types.OutcomeFailed}, boom
	})

	outcome, err := h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.OutcomeFailed, outcome.State)
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1)
	p.Start()
	defer p.Stop()

	h := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		panic("bad task")
	})
	_, err := h.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")

	// the worker survives the panic
	h = p.Submit(func(ctx context.Context) (types.Outcome, error) {
		return types.Outcome{State: types.OutcomeDropped}, nil
	})
	outcome, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDropped, outcome.State)
}

func TestPoolStopDrainsQueue(t *testing.T) {
	p := NewPool(1)
	p.Start()

	release := make(chan struct{})
	first := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		<-release
		return types.Outcome{}, nil
	})
	second := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		return types.Outcome{State: types.OutcomePersisted}, nil
	})

	close(release)
	require.NoError(t, p.Stop())

	select {
	case <-first.Done():
	default:
		t.Fatal("first task not finished after Stop")
	}
	outcome, err := second.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePersisted, outcome.State)
}

func TestSubmitDoesNotWaitForWorkers(t *testing.T) {
	p := NewPool(1)
	p.Start()

	running, release := make(chan struct{}), make(chan struct{})
	stalled := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		close(running)
		<-release
		return types.Outcome{}, nil
	})
	<-running

	const n = 1000
	var ran atomic.Int32
	submitted := make(chan []*Handle)
	go func() {
		handles := make([]*Handle, n)
		for i := range handles {
			handles[i] = p.Submit(func(ctx context.Context) (types.Outcome, error) {
				ran.Add(1)
				return types.Outcome{State: types.OutcomePersisted}, nil
			})
		}
		submitted <- handles
	}()

	var handles []*Handle
	select {
	case handles = <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit waited on a stalled worker")
	}
	assert.Equal(t, n, p.Pending())

	close(release)
	_, err := stalled.Wait(waitCtx(t))
	require.NoError(t, err)
	for _, h := range handles {
		_, err := h.Wait(waitCtx(t))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(n), ran.Load())
	require.NoError(t, p.Stop())
}

func TestStopBeforeStartRejectsBacklog(t *testing.T) {
	p := NewPool(1)
	h := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		return types.Outcome{}, nil
	})
	require.NoError(t, p.Stop())

	_, err := h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1)
	p.Start()
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	h := p.Submit(func(ctx context.Context) (types.Outcome, error) {
		t.Fatal("task must not run")
		return types.Outcome{}, nil
	})
	_, err := h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestHandleWaitHonoursContext(t *testing.T) {
	h := newHandle()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolved(t *testing.T) {
	h := Resolved(types.Outcome{State: types.OutcomeDropped}, nil)
	outcome, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDropped, outcome.State)
	assert.NotEmpty(t, h.ID)
}
