package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

func completedEvent(id string, jobType model.JobType) Event {
	return Event{
		Name:  EventCompleted,
		JobID: id,
		Type:  jobType,
		At:    time.Now(),
	}
}

func TestBrokerDeliversToTypeSubscriber(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe(model.JobTypeEcho)
	defer unsub()

	broker.Publish(context.Background(), completedEvent("j-1", model.JobTypeEcho))

	select {
	case ev := <-ch:
		assert.Equal(t, "j-1", ev.JobID)
		assert.Equal(t, EventCompleted, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBrokerTypeFiltering(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe(model.JobTypeEcho)
	defer unsub()

	broker.Publish(context.Background(), completedEvent("j-2", model.JobTypeSalaryEstimate))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for other type: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerAllTypesSubscriber(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe("")
	defer unsub()

	broker.Publish(context.Background(), completedEvent("j-3", model.JobTypeOutreachEmail))

	select {
	case ev := <-ch:
		assert.Equal(t, model.JobTypeOutreachEmail, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event on all-types subscription")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe(model.JobTypeEcho)
	defer unsub()

	// Overfill the buffer; extra publishes must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			broker.Publish(context.Background(), completedEvent("j", model.JobTypeEcho))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe(model.JobTypeEcho)
	unsub()

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Second unsubscribe is a no-op.
	unsub()

	// Publishing after unsubscribe must not panic.
	broker.Publish(context.Background(), completedEvent("j-4", model.JobTypeEcho))
}

func TestBrokerStopAll(t *testing.T) {
	broker := NewBroker()

	_, ch1 := broker.Subscribe(model.JobTypeEcho)
	_, ch2 := broker.Subscribe("")

	broker.StopAll()

	_, open := <-ch1
	require.False(t, open)
	_, open = <-ch2
	require.False(t, open)

	// Subscriptions after StopAll come back pre-closed.
	_, ch3 := broker.Subscribe(model.JobTypeEcho)
	_, open = <-ch3
	assert.False(t, open)
}

func TestMultiAndNopPublisher(t *testing.T) {
	broker := NewBroker()
	defer broker.StopAll()

	unsub, ch := broker.Subscribe(model.JobTypeEcho)
	defer unsub()

	multi := Multi{NopPublisher{}, nil, broker}
	multi.Publish(context.Background(), completedEvent("j-5", model.JobTypeEcho))

	select {
	case ev := <-ch:
		assert.Equal(t, "j-5", ev.JobID)
	case <-time.After(time.Second):
		t.Fatal("expected delivery through Multi")
	}
}
