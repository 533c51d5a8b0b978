package eventbus

import "testing"

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Emit(b, TypeReminderFired, int64(1))
	Emit(b, TypeReminderFired, int64(2))

	if got := len(a); got != 1 {
		t.Fatalf("small subscriber buffered %d events, want 1", got)
	}
	if got := len(c); got != 2 {
		t.Fatalf("large subscriber buffered %d events, want 2", got)
	}
	ev := <-c
	if ev.Type != TypeReminderFired || ev.Data.(int64) != 1 || ev.Time.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	Emit(b, TypeSessionEnded, nil)
	Emit(nil, TypeSessionEnded, nil)
}
