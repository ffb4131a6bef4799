package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

type recordingHandler struct {
	jobType model.JobType
	fn      func(item queue.Item) error

	mu    sync.Mutex
	items []queue.Item
}

func (h *recordingHandler) Type() model.JobType { return h.jobType }

func (h *recordingHandler) Run(_ context.Context, item queue.Item) error {
	h.mu.Lock()
	h.items = append(h.items, item)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(item)
	}
	return nil
}

func (h *recordingHandler) seen() []queue.Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]queue.Item(nil), h.items...)
}

func newTestRunner(t *testing.T, reg *queue.Registry, q *queue.Queue) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Queue:        q,
		Registry:     reg,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func runUntil(t *testing.T, r *Runner, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("condition not reached before deadline")
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Registry: queue.NewRegistry()})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Queue: queue.New(4)})
	require.Error(t, err)
}

func TestRunnerProcessesInOrder(t *testing.T) {
	q := queue.New(8)
	reg := queue.NewRegistry()
	h := &recordingHandler{jobType: model.JobTypeEcho}
	reg.Register(h)

	for _, id := range []string{"j-1", "j-2", "j-3"} {
		q.Enqueue(queue.Item{JobID: id, Type: model.JobTypeEcho, Payload: json.RawMessage(`{}`)})
	}

	r := newTestRunner(t, reg, q)
	runUntil(t, r, func() bool { return len(h.seen()) == 3 })

	seen := h.seen()
	require.Len(t, seen, 3)
	assert.Equal(t, "j-1", seen[0].JobID)
	assert.Equal(t, "j-2", seen[1].JobID)
	assert.Equal(t, "j-3", seen[2].JobID)

	snap := r.Snapshot()
	assert.Equal(t, uint64(3), snap.Processed)
	assert.Equal(t, uint64(0), snap.Failed)
	require.NotNil(t, snap.LastJob)
	assert.Equal(t, "j-3", snap.LastJob.JobID)
}

func TestRunnerSurvivesFailingHandler(t *testing.T) {
	q := queue.New(8)
	reg := queue.NewRegistry()
	h := &recordingHandler{
		jobType: model.JobTypeEcho,
		fn: func(item queue.Item) error {
			if item.JobID == "bad" {
				return errors.New("x")
			}
			return nil
		},
	}
	reg.Register(h)

	q.Enqueue(queue.Item{JobID: "bad", Type: model.JobTypeEcho})
	q.Enqueue(queue.Item{JobID: "good", Type: model.JobTypeEcho})

	r := newTestRunner(t, reg, q)
	runUntil(t, r, func() bool { return len(h.seen()) == 2 })

	// Only the normal return counts as processed; the failure counts
	// separately.
	snap := r.Snapshot()
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, "x", snap.LastError)
}

func TestRunnerSurvivesPanickingHandler(t *testing.T) {
	q := queue.New(8)
	reg := queue.NewRegistry()
	h := &recordingHandler{
		jobType: model.JobTypeEcho,
		fn: func(item queue.Item) error {
			if item.JobID == "boom" {
				panic("kaboom")
			}
			return nil
		},
	}
	reg.Register(h)

	q.Enqueue(queue.Item{JobID: "boom", Type: model.JobTypeEcho})
	q.Enqueue(queue.Item{JobID: "after", Type: model.JobTypeEcho})

	r := newTestRunner(t, reg, q)
	runUntil(t, r, func() bool { return len(h.seen()) == 2 })

	snap := r.Snapshot()
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Contains(t, snap.LastError, "handler panic")
}

func TestRunnerCountsDispatchFailures(t *testing.T) {
	q := queue.New(8)
	reg := queue.NewRegistry()
	h := &recordingHandler{jobType: model.JobTypeEcho}
	reg.Register(h)

	q.Enqueue(queue.Item{JobID: "u-1", Type: "boom"})
	q.Enqueue(queue.Item{JobID: "j-1", Type: model.JobTypeEcho})

	r := newTestRunner(t, reg, q)
	runUntil(t, r, func() bool { return len(h.seen()) == 1 })

	snap := r.Snapshot()
	assert.Equal(t, uint64(1), snap.DispatchFailures)
	// The unknown-type item never reaches a handler and never counts as
	// processed.
	assert.Equal(t, uint64(1), snap.Processed)
}

func TestRunnerSingleConsumer(t *testing.T) {
	q := queue.New(8)
	reg := queue.NewRegistry()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	h := &recordingHandler{
		jobType: model.JobTypeEcho,
		fn: func(queue.Item) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		},
	}
	reg.Register(h)

	for i := 0; i < 10; i++ {
		q.Enqueue(queue.Item{JobID: "j", Type: model.JobTypeEcho})
	}

	r := newTestRunner(t, reg, q)
	runUntil(t, r, func() bool { return len(h.seen()) == 10 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "items must be processed strictly one at a time")
}

func TestRunnerRunningFlag(t *testing.T) {
	q := queue.New(4)
	reg := queue.NewRegistry()
	r := newTestRunner(t, reg, q)

	assert.False(t, r.Snapshot().Running)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for !r.Snapshot().Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, r.Snapshot().Running)

	cancel()
	<-done
	assert.False(t, r.Snapshot().Running)
}
