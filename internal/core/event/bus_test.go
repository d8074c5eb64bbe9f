package event_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/stretchr/testify/require"
)

func drain(sub *event.Subscription) []event.Event {
	var out []event.Event
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(64)
	a := bus.Subscribe("job-a")
	b := bus.Subscribe("job-a")

	for i := 1; i <= 10; i++ {
		require.NoError(t, bus.Publish("job-a", event.StepStart("job-a", fmt.Sprint(i), i)))
	}

	for _, sub := range []*event.Subscription{a, b} {
		got := drain(sub)
		require.Len(t, got, 10)
		for i, e := range got {
			require.Equal(t, i+1, e.Order)
			require.Equal(t, event.TypeStepStart, e.Type)
			require.False(t, e.Timestamp.IsZero())
		}
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(8)
	a := bus.Subscribe("job-a")
	b := bus.Subscribe("job-b")

	require.NoError(t, bus.Publish("job-a", event.JobDone("job-a", "DONE", "")))
	require.Len(t, drain(a), 1)
	require.Empty(t, drain(b))
}

func TestNoReplay(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(8)
	require.NoError(t, bus.Publish("job-a", event.StepStart("job-a", "early", 1)))
	late := bus.Subscribe("job-a")
	require.Empty(t, drain(late))
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(8)
	sub := bus.Subscribe("job-a")
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)

	_, ok := <-sub.C()
	require.False(t, ok)
	require.NoError(t, bus.Publish("job-a", event.StepStart("job-a", "x", 1)))
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(2)
	slow := bus.Subscribe("job-a")
	fast := bus.Subscribe("job-a")

	received := make(chan event.Event, 16)
	go func() {
		for e := range fast.C() {
			received <- e
		}
		close(received)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			_ = bus.Publish("job-a", event.StepStart("job-a", "s", i))
			time.Sleep(5 * time.Millisecond)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	got := drain(slow)
	require.Len(t, got, 2)
	require.True(t, slow.Evicted())
	require.False(t, fast.Evicted())

	bus.Unsubscribe(fast)
	var orders []int
	for e := range received {
		orders = append(orders, e.Order)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, orders)
}

func TestClose(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(8)
	sub := bus.Subscribe("job-a")
	bus.Close()
	bus.Close()

	_, ok := <-sub.C()
	require.False(t, ok)
	require.ErrorIs(t, bus.Publish("job-a", event.StepStart("job-a", "x", 1)), event.ErrClosed)

	after := bus.Subscribe("job-a")
	_, ok = <-after.C()
	require.False(t, ok)
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	t.Parallel()
	bus := event.NewBus(4)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic := fmt.Sprintf("job-%d", i%3)
			sub := bus.Subscribe(topic)
			for range 10 {
				_ = bus.Publish(topic, event.StepStart(topic, "s", 1))
			}
			bus.Unsubscribe(sub)
		}()
	}
	wg.Wait()
}
