package memory

import (
	"context"
	"testing"
	"time"
)

func TestChangeFeedDeliversToListeners(t *testing.T) {
	feed := NewChangeFeed()
	ch, cancel, err := feed.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	_ = feed.Publish(context.Background(), "p1")

	select {
	case id := <-ch:
		if id != "p1" {
			t.Fatalf("expected p1, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for notification")
	}
}

func TestChangeFeedClosesOnContextDone(t *testing.T) {
	feed := NewChangeFeed()
	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, err := feed.Listen(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("listener not closed after context cancel")
	}
	cancel()
	_ = feed.Publish(context.Background(), "p1")
}
