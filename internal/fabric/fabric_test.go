package fabric

import (
	"testing"

	"github.com/google/uuid"

	"github.com/kapu/playroom/internal/protocol"
)

type fakeSender struct {
	id     uuid.UUID
	events []protocol.OutEvent
	full   bool
}

func newFakeSender() *fakeSender { return &fakeSender{id: uuid.New()} }

func (s *fakeSender) ConnID() uuid.UUID { return s.id }

func (s *fakeSender) Send(ev protocol.OutEvent) bool {
	if s.full {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func TestPublish_ReachesSubscribersOnly(t *testing.T) {
	f := New()
	a, b, c := newFakeSender(), newFakeSender(), newFakeSender()
	f.Subscribe(RoomKey("r1"), a)
	f.Subscribe(RoomKey("r1"), b)
	f.Subscribe(RoomKey("r2"), c)

	n := f.Publish(RoomKey("r1"), protocol.NewEvent("x", nil))
	if n != 2 {
		t.Fatalf("delivered %d, want 2", n)
	}
	if len(a.events) != 1 || len(b.events) != 1 || len(c.events) != 0 {
		t.Fatalf("wrong fan-out: a=%d b=%d c=%d", len(a.events), len(b.events), len(c.events))
	}
}

func TestKeys_AreDistinctAcrossKinds(t *testing.T) {
	f := New()
	a, b := newFakeSender(), newFakeSender()
	f.Subscribe(GameKey("g1"), a)
	f.Subscribe(GameSpectatorsKey("g1"), b)

	f.Publish(GameKey("g1"), protocol.NewEvent("x", nil))
	if len(a.events) != 1 || len(b.events) != 0 {
		t.Fatalf("same id under different kinds must be different channels")
	}
	if n := f.PublishGame("g1", protocol.NewEvent("y", nil)); n != 2 {
		t.Fatalf("PublishGame should reach both channels, delivered %d", n)
	}
}

func TestPublishExcept(t *testing.T) {
	f := New()
	a, b := newFakeSender(), newFakeSender()
	f.Subscribe(GameKey("g1"), a)
	f.Subscribe(GameKey("g1"), b)

	n := f.PublishExcept(GameKey("g1"), protocol.NewEvent("x", nil), a.id)
	if n != 1 || len(a.events) != 0 || len(b.events) != 1 {
		t.Fatalf("except sender must be skipped: n=%d a=%d b=%d", n, len(a.events), len(b.events))
	}
}

func TestUnsubscribeAll(t *testing.T) {
	f := New()
	a := newFakeSender()
	f.Subscribe(RoomKey("r1"), a)
	f.Subscribe(GameKey("g1"), a)
	f.Subscribe(UserKey("u1"), a)

	f.UnsubscribeAll(a.id)
	if f.Subscribers(RoomKey("r1")) != 0 || f.Subscribers(GameKey("g1")) != 0 || f.Subscribers(UserKey("u1")) != 0 {
		t.Fatalf("connection should be gone from every channel")
	}
	if n := f.Publish(RoomKey("r1"), protocol.NewEvent("x", nil)); n != 0 {
		t.Fatalf("delivered %d after UnsubscribeAll", n)
	}
}

func TestPublish_SlowConsumerDropped(t *testing.T) {
	f := New()
	a, b := newFakeSender(), newFakeSender()
	b.full = true
	f.Subscribe(RoomKey("r1"), a)
	f.Subscribe(RoomKey("r1"), b)

	if n := f.Publish(RoomKey("r1"), protocol.NewEvent("x", nil)); n != 1 {
		t.Fatalf("a full queue drops only that subscriber's copy, delivered %d", n)
	}
	if len(a.events) != 1 {
		t.Fatalf("healthy subscriber must still receive")
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	f := New()
	a := newFakeSender()
	f.Subscribe(RoomKey("r1"), a)
	f.Subscribe(RoomKey("r1"), a)
	if f.Subscribers(RoomKey("r1")) != 1 {
		t.Fatalf("double subscribe should not duplicate delivery")
	}
}
