package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/presenced/internal/proximity"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	got := make(chan Event, 1)
	bus.Subscribe(EventTypeProximity, func(e Event) {
		got <- e
	})

	bus.Publish(Event{
		Type:    EventTypeProximity,
		Samples: []proximity.Sample{{RSSI: -50, Time: time.Now()}},
	})

	select {
	case e := <-got:
		if len(e.Samples) != 1 || e.Samples[0].RSSI != -50 {
			t.Errorf("delivered event = %+v, want the published batch", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus.Close(ctx)
}

func TestCloseWithConcurrentPublishers(t *testing.T) {
	bus := NewWithConfig(2, 4)
	bus.Subscribe(EventTypeProximity, func(Event) {})

	// Hammer Publish from several goroutines while Close runs. A send on
	// the closed work queue would panic one of them and fail the test.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					bus.Publish(Event{Type: EventTypeProximity})
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus.Close(ctx)

	close(stop)
	wg.Wait()
}
