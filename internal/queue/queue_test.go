package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

func item(id string) Item {
	return Item{JobID: id, Type: model.JobTypeEcho, Payload: json.RawMessage(`{}`)}
}

func TestQueueFIFOSingleProducer(t *testing.T) {
	q := New(8)

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(item(fmt.Sprintf("j-%d", i))))
	}
	assert.Equal(t, 5, q.Depth())

	for i := 0; i < 5; i++ {
		got, ok := q.Dequeue(time.Second)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("j-%d", i), got.JobID)
	}
	assert.Equal(t, 0, q.Depth())
}

func TestQueueEnqueueNeverBlocksPastCapacity(t *testing.T) {
	q := New(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			q.Enqueue(item(fmt.Sprintf("j-%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked past channel capacity")
	}
	assert.Equal(t, 100, q.Depth())

	// Nothing was dropped and order held across the overflow boundary.
	for i := 0; i < 100; i++ {
		got, ok := q.Dequeue(time.Second)
		require.True(t, ok, "missing item %d", i)
		require.Equal(t, fmt.Sprintf("j-%d", i), got.JobID)
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := New(4)

	start := time.Now()
	_, ok := q.Dequeue(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueDequeueWakesOnEnqueue(t *testing.T) {
	q := New(4)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(item("late"))
	}()

	got, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", got.JobID)
}

func TestQueueTryDequeue(t *testing.T) {
	q := New(4)

	_, ok := q.TryDequeue()
	assert.False(t, ok)

	q.Enqueue(item("j-1"))
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "j-1", got.JobID)
}

func TestQueueClose(t *testing.T) {
	q := New(4)
	q.Enqueue(item("j-1"))
	q.Close()

	assert.False(t, q.Enqueue(item("j-2")), "enqueue after close should be rejected")

	got, ok := q.Dequeue(time.Second)
	require.True(t, ok, "queued items remain dequeuable after close")
	assert.Equal(t, "j-1", got.JobID)

	_, ok = q.Dequeue(time.Hour)
	assert.False(t, ok, "drained closed queue should return immediately")
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New(4)

	const producers = 8
	const perProducer = 50

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				q.Enqueue(item(fmt.Sprintf("p%d-%d", p, i)))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Per-producer order must hold even though producers interleave.
	lastSeen := make(map[string]int)
	for n := 0; n < producers*perProducer; n++ {
		got, ok := q.Dequeue(time.Second)
		require.True(t, ok)
		var p, i int
		_, err := fmt.Sscanf(got.JobID, "p%d-%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprintf("p%d", p)
		prev, seen := lastSeen[key]
		if seen {
			require.Greater(t, i, prev, "producer %d out of order", p)
		}
		lastSeen[key] = i
	}
	assert.Equal(t, 0, q.Depth())
}

func TestQueueEnqueuedAtDefaulted(t *testing.T) {
	q := New(4)
	q.Enqueue(item("j-1"))
	got, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	assert.False(t, got.EnqueuedAt.IsZero())
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	reg := NewRegistry()

	var calls []string
	first := HandlerFunc{JobType: model.JobTypeEcho, Fn: func(context.Context, Item) error {
		calls = append(calls, "first")
		return nil
	}}
	second := HandlerFunc{JobType: model.JobTypeEcho, Fn: func(context.Context, Item) error {
		calls = append(calls, "second")
		return nil
	}}

	reg.Register(first)
	reg.Register(second)

	h := reg.Lookup(model.JobTypeEcho)
	require.NotNil(t, h)
	require.NoError(t, h.Run(context.Background(), item("j-1")))
	assert.Equal(t, []string{"second"}, calls)
}

func TestRegistryLookupUnregistered(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Lookup("boom"))
}

func TestRegistryTypes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(HandlerFunc{JobType: model.JobTypeSalaryEstimate, Fn: func(context.Context, Item) error { return nil }})
	reg.Register(HandlerFunc{JobType: model.JobTypeEcho, Fn: func(context.Context, Item) error { return nil }})

	assert.Equal(t, []string{"echo", "salary_estimate"}, reg.Types())
}
