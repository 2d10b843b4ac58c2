package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func TestStreamHub(t *testing.T) {
	t.Run("Frames arrive in broadcast order", func(t *testing.T) {
		hub := NewStreamHub()
		client := hub.Subscribe()
		if client == nil {
			t.Fatal("Subscribe returned nil")
		}

		for i := 0; i < 5; i++ {
			hub.Broadcast(WindUpdateFrame{Type: "wind_update", Timestamp: fmt.Sprintf("t%d", i)})
		}

		for i := 0; i < 5; i++ {
			var frame WindUpdateFrame
			if err := json.Unmarshal(<-client.ch, &frame); err != nil {
				t.Fatalf("Bad frame: %v", err)
			}
			if frame.Timestamp != fmt.Sprintf("t%d", i) {
				t.Errorf("Frame %d out of order: %q", i, frame.Timestamp)
			}
		}
	})

	t.Run("Slow client is dropped, fast client unaffected", func(t *testing.T) {
		hub := NewStreamHub()
		slow := hub.Subscribe()
		fast := hub.Subscribe()

		// Never drain the slow client; its buffer fills and overflows.
		total := streamClientBuffer + 3
		for i := 0; i < total; i++ {
			hub.Broadcast(WindUpdateFrame{Type: "wind_update", Timestamp: fmt.Sprintf("t%d", i)})
			// Keep the fast client drained.
			<-fast.ch
		}

		select {
		case <-slow.done:
		default:
			t.Error("Slow client should have been dropped")
		}
		if hub.ClientCount() != 1 {
			t.Errorf("Expected 1 remaining client, got %d", hub.ClientCount())
		}
	})

	t.Run("Unsubscribe removes the client", func(t *testing.T) {
		hub := NewStreamHub()
		c := hub.Subscribe()
		if hub.ClientCount() != 1 {
			t.Fatalf("Expected 1 client, got %d", hub.ClientCount())
		}
		hub.Unsubscribe(c.id)
		if hub.ClientCount() != 0 {
			t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
		}
	})

	t.Run("Remove yields ownership exactly once", func(t *testing.T) {
		hub := NewStreamHub()
		c := hub.Subscribe()

		if !hub.remove(c) {
			t.Fatal("First remove should win the client")
		}
		if hub.remove(c) {
			t.Error("Second remove must not claim the client again")
		}
		if hub.ClientCount() != 0 {
			t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
		}
	})

	t.Run("Concurrent shutdown and overflow broadcast never double-close", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			hub := NewStreamHub()
			c := hub.Subscribe()
			for j := 0; j < streamClientBuffer; j++ {
				c.ch <- []byte("{}")
			}

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				hub.Broadcast(WindUpdateFrame{Type: "wind_update"})
			}()
			go func() {
				defer wg.Done()
				<-start
				hub.Shutdown()
			}()
			close(start)
			wg.Wait()

			select {
			case <-c.done:
			default:
				t.Fatalf("Iteration %d: client was never released", i)
			}
		}
	})

	t.Run("Shutdown sends close frame and rejects new subscribers", func(t *testing.T) {
		hub := NewStreamHub()
		c := hub.Subscribe()

		hub.Shutdown()

		var frame StreamCloseFrame
		if err := json.Unmarshal(<-c.ch, &frame); err != nil {
			t.Fatalf("Bad close frame: %v", err)
		}
		if frame.Type != "close" {
			t.Errorf("Expected close frame, got %q", frame.Type)
		}
		select {
		case <-c.done:
		default:
			t.Error("done should be closed after shutdown")
		}
		if hub.Subscribe() != nil {
			t.Error("Subscribe after shutdown should return nil")
		}
	})
}
