// Package job holds the terminal-event publishing layer of the job system.
//
// Publishing is a liveness optimization, never a correctness mechanism:
// delivery is at-most-once to currently connected subscribers, and any
// consumer must be able to learn the outcome of a job by polling its
// record alone.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// Event names for terminal job transitions.
const (
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
)

// Event describes a terminal job transition. It is published only after
// the status change has been committed to the record store.
type Event struct {
	Name  string        `json:"name"`
	JobID string        `json:"job_id"`
	Type  model.JobType `json:"type"`
	Error string        `json:"error,omitempty"`
	At    time.Time     `json:"at"`
}

// Publisher delivers terminal job events. Implementations are
// fire-and-forget: Publish must not block on slow consumers, and a
// returned error means the event was not delivered, nothing more.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// subscriber channel buffer; a subscriber more than this far behind
// starts losing events, which the at-most-once contract permits.
const subscriberBuffer = 16

// Broker is the in-process Publisher. Subscribers register per job type
// (or for all types) and receive events on a buffered channel.
type Broker struct {
	mu     sync.Mutex
	subs   map[model.JobType]map[chan Event]struct{}
	closed bool
}

// allTypes is the subscription key for type-agnostic subscribers.
const allTypes = model.JobType("")

// NewBroker constructs an in-process event broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[model.JobType]map[chan Event]struct{}),
	}
}

// Subscribe registers for events of the given job type; an empty type
// subscribes to all events. It returns an unsubscribe func and the
// receive channel. The channel is closed on unsubscribe or StopAll.
func (b *Broker) Subscribe(jobType model.JobType) (func(), <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return func() {}, ch
	}

	if b.subs[jobType] == nil {
		b.subs[jobType] = make(map[chan Event]struct{})
	}
	b.subs[jobType][ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subscribers := b.subs[jobType]
		if subscribers == nil {
			return
		}
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			delete(b.subs, jobType)
		}
	}

	return unsub, ch
}

// Publish delivers ev to type-matching and type-agnostic subscribers.
// Sends are non-blocking; a full subscriber channel drops the event.
func (b *Broker) Publish(_ context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.send(b.subs[ev.Type], ev)
	if ev.Type != allTypes {
		b.send(b.subs[allTypes], ev)
	}
}

func (b *Broker) send(subscribers map[chan Event]struct{}, ev Event) {
	for ch := range subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// StopAll closes every subscriber channel and rejects future publishes.
func (b *Broker) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for jobType, subscribers := range b.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(b.subs, jobType)
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan Event) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Publisher = (*Broker)(nil)

// Multi fans a publish out to several publishers.
type Multi []Publisher

// Publish delivers the event to each wrapped publisher in order.
func (m Multi) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
