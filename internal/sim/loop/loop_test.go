package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoop_CallRunsOnOwnerGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(50, 8)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Run(ctx)
	}()

	var order []int
	l.Do(func() { order = append(order, 1) })
	require.NoError(t, l.Call(ctx, func() { order = append(order, 2) }))
	assert.Equal(t, []int{1, 2}, order)

	cancel()
	wg.Wait()
}

func TestLoop_TicksReachListeners(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(200, 8)
	got := make(chan uint64, 16)
	l.OnTick(func(tick uint64) {
		select {
		case got <- tick:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	select {
	case tick := <-got:
		assert.Equal(t, uint64(1), tick)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	cancel()
	<-done
}

func TestLoop_StopDrainsQueuedTasks(t *testing.T) {
	l := New(1, 8)
	ran := 0
	l.Do(func() { ran++ })
	l.Do(func() { ran++ })
	l.Stop()
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 2, ran)
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestQueue_RunPending(t *testing.T) {
	q := NewQueue()
	n := 0
	q.Do(func() {
		n++
		q.Do(func() { n++ })
	})
	assert.Equal(t, 2, q.RunPending())
	assert.Equal(t, 2, n)
}

func TestQueue_WaitPendingFromOtherGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Do(func() {})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := q.WaitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	<-done

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = q.WaitPending(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
