package payo

import (
	"context"
	"testing"
	"time"
)

type testSubscriber struct {
	ch chan Message
}

func (s testSubscriber) GetChan() chan Message { return s.ch }

func runBus(t *testing.T) MessageBus {
	t.Helper()
	bus := NewMessageBus()
	started := make(chan bool)
	stopped := make(chan bool)
	stop := make(chan context.Context)
	if err := bus.Run(started, stopped, stop); err != nil {
		t.Fatal(err)
	}
	<-started
	t.Cleanup(func() {
		stop <- context.Background()
		<-stopped
	})
	return bus
}

func receive(t *testing.T, ch chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus message")
		return Message{}
	}
}

func TestBusRoutesByEventFamily(t *testing.T) {
	bus := runBus(t)

	inv := testSubscriber{make(chan Message, 10)}
	sys := testSubscriber{make(chan Message, 10)}
	all := testSubscriber{make(chan Message, 10)}
	bus.Register(inv, EVENT_INV("INV"))
	bus.Register(sys, EVENT_SYS("SYS"))
	bus.Register(all, EVENT_ALL("ALL"))

	if err := bus.Send(INV_CONFIRMED, map[string]string{"hello": "world"}, "msg-1"); err != nil {
		t.Fatal(err)
	}

	msg := receive(t, inv.ch)
	if msg.ID != "msg-1" {
		t.Errorf("message ID = %q, want msg-1", msg.ID)
	}
	if msg.EventType != INV_CONFIRMED {
		t.Errorf("event type = %v, want INV_CONFIRMED", msg.EventType)
	}
	if string(msg.Message) != `{"hello":"world"}` {
		t.Errorf("payload = %s", msg.Message)
	}

	receive(t, all.ch) // ALL subscribers see everything

	select {
	case m := <-sys.ch:
		t.Fatalf("SYS subscriber got an INV message: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusGeneratesMessageIDs(t *testing.T) {
	bus := runBus(t)
	sub := testSubscriber{make(chan Message, 10)}
	bus.Register(sub, EVENT_SYS("SYS"))

	if err := bus.Send(SYS_MSG, "one"); err != nil {
		t.Fatal(err)
	}
	if err := bus.Send(SYS_MSG, "two"); err != nil {
		t.Fatal(err)
	}

	a := receive(t, sub.ch)
	b := receive(t, sub.ch)
	if a.ID == "" || b.ID == "" {
		t.Errorf("messages must get generated IDs")
	}
	if a.ID == b.ID {
		t.Errorf("generated IDs must differ, both %q", a.ID)
	}
}

func TestBusDropsWedgedSubscriberWithoutClosing(t *testing.T) {
	bus := runBus(t)
	wedged := testSubscriber{make(chan Message, 1)} // nobody reading
	healthy := testSubscriber{make(chan Message, 10)}
	bus.Register(wedged, EVENT_SYS("SYS"))
	bus.Register(healthy, EVENT_SYS("SYS"))

	// first message fills the wedged buffer; the second finds it full
	// and drops the subscription
	for i := 0; i < 3; i++ {
		if err := bus.Send(SYS_MSG, i); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		receive(t, healthy.ch)
	}

	// the dropped subscriber's channel stays open: its own Run loop is
	// what closes it on shutdown
	if _, ok := <-wedged.ch; !ok {
		t.Fatal("dropped subscriber's channel must not be closed")
	}
	select {
	case _, ok := <-wedged.ch:
		if !ok {
			t.Fatal("dropped subscriber's channel must not be closed")
		}
	default:
		// open and empty
	}
}

func TestBusDeliversToMultipleSubscribers(t *testing.T) {
	bus := runBus(t)
	first := testSubscriber{make(chan Message, 10)}
	second := testSubscriber{make(chan Message, 10)}
	bus.Register(first, EVENT_INV("INV"))
	bus.Register(second, EVENT_INV("INV"))

	if err := bus.Send(INV_CREATED, "payload", "x"); err != nil {
		t.Fatal(err)
	}
	receive(t, first.ch)
	receive(t, second.ch)
}
