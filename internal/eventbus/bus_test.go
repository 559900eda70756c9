package eventbus

import "testing"

func TestPublishSubscribeDeliversInOrder(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe("semantic:new_entities", 4)

	b.Publish("semantic:new_entities", []string{"e1"})
	b.Publish("semantic:new_entities", []string{"e2"})

	first := <-ch
	second := <-ch

	if got := first.Payload.([]string)[0]; got != "e1" {
		t.Fatalf("expected e1 first, got %s", got)
	}
	if got := second.Payload.([]string)[0]; got != "e2" {
		t.Fatalf("expected e2 second, got %s", got)
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	ch, dropped := b.Subscribe("topic", 1)

	b.Publish("topic", "a")
	b.Publish("topic", "b") // queue full, should be dropped

	if dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped())
	}
	<-ch // drain the one delivered event
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New()
	b.Publish("nobody-listening", 42) // must not panic or block
}
