package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe("fetch_complete", received)

	bus.Publish(Event{
		Type:      "fetch_complete",
		Timestamp: time.Now(),
		Data:      map[string]bool{"newData": true},
	})

	select {
	case evt := <-received:
		if evt.Type != "fetch_complete" {
			t.Errorf("expected fetch_complete, got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe("fetch_complete", ch1)
	bus.Subscribe("fetch_complete", ch2)

	bus.Publish(Event{Type: "fetch_complete"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	fetchCh := make(chan Event, 10)
	redrawCh := make(chan Event, 10)
	bus.Subscribe("fetch_complete", fetchCh)
	bus.Subscribe("redraw_needed", redrawCh)

	bus.Publish(Event{Type: "fetch_complete"})

	select {
	case <-fetchCh:
	case <-time.After(time.Second):
		t.Fatal("fetch subscriber did not receive event")
	}

	select {
	case <-redrawCh:
		t.Fatal("redraw subscriber should NOT receive fetch_complete event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe("fetch_complete", received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bus.Publish(Event{Type: "fetch_complete", Data: i})
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}

func TestBus_PublishAfterCloseIsNoOp(t *testing.T) {
	bus := New()
	received := make(chan Event, 1)
	bus.Subscribe("fetch_complete", received)
	bus.Close()
	bus.Publish(Event{Type: "fetch_complete"})

	select {
	case <-received:
		t.Fatal("expected no event after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
