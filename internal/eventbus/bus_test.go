package eventbus

import "testing"

func TestFanoutAndFilter(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(4, "job.failed")
	defer unsubFailed()

	b.Publish(Event{Type: "job.executed"})
	b.Publish(Event{Type: "job.failed", Data: "boom"})

	if n := len(all); n != 2 {
		t.Fatalf("all got %d events", n)
	}
	if n := len(failed); n != 1 {
		t.Fatalf("filtered got %d events", n)
	}
	ev := <-failed
	if ev.Data != "boom" || ev.Time.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := b.(Stats).Dropped(); got != 1 {
		t.Fatalf("dropped = %d", got)
	}
	if (<-ch).Type != "a" {
		t.Fatalf("kept the wrong event")
	}

	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed")
	}
	b.Publish(Event{Type: "c"}) // no panic after unsubscribe
}
