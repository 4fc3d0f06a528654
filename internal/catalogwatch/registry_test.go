package catalogwatch

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop())
}

func TestBroadcastOnlyReachesSubscribersOfThatCatalog(t *testing.T) {
	reg := newTestRegistry()

	var gotA, gotB []Event
	a := &Client{CatalogID: "cat-a", Send: func(ev Event) error { gotA = append(gotA, ev); return nil }}
	b := &Client{CatalogID: "cat-b", Send: func(ev Event) error { gotB = append(gotB, ev); return nil }}
	reg.Subscribe(a)
	reg.Subscribe(b)

	reg.Broadcast(Event{CatalogID: "cat-a", Checksum: "sum1"})

	if len(gotA) != 1 || gotA[0].Checksum != "sum1" {
		t.Fatalf("expected cat-a's subscriber to receive the event, got %v", gotA)
	}
	if len(gotB) != 0 {
		t.Fatalf("expected cat-b's subscriber to receive nothing, got %v", gotB)
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	reg := newTestRegistry()
	var calls int
	c := &Client{CatalogID: "cat-a", Send: func(Event) error { calls++; return nil }}
	reg.Subscribe(c)
	reg.Unsubscribe(c)

	reg.Broadcast(Event{CatalogID: "cat-a"})

	if calls != 0 {
		t.Fatalf("expected no delivery after Unsubscribe, got %d calls", calls)
	}
	if n := reg.SubscriberCount("cat-a"); n != 0 {
		t.Fatalf("expected subscriber count 0, got %d", n)
	}
}

func TestBroadcastDropsClientsWhoseSendErrors(t *testing.T) {
	reg := newTestRegistry()
	c := &Client{CatalogID: "cat-a", Send: func(Event) error { return errors.New("write: broken pipe") }}
	reg.Subscribe(c)

	reg.Broadcast(Event{CatalogID: "cat-a"})

	if n := reg.SubscriberCount("cat-a"); n != 0 {
		t.Fatalf("expected a failing Send to prune the client, got count %d", n)
	}
}

func TestSubscriberCountReflectsMultipleClientsOnSameCatalog(t *testing.T) {
	reg := newTestRegistry()
	reg.Subscribe(&Client{CatalogID: "cat-a", Send: func(Event) error { return nil }})
	reg.Subscribe(&Client{CatalogID: "cat-a", Send: func(Event) error { return nil }})

	if n := reg.SubscriberCount("cat-a"); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}
}

func TestRegistryIsSafeForConcurrentSubscribeAndBroadcast(t *testing.T) {
	reg := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &Client{CatalogID: "cat-a", Send: func(Event) error { return nil }}
			reg.Subscribe(c)
			reg.Broadcast(Event{CatalogID: "cat-a"})
			reg.Unsubscribe(c)
		}()
	}
	wg.Wait()

	if n := reg.SubscriberCount("cat-a"); n != 0 {
		t.Fatalf("expected all subscribers to have unsubscribed, got %d", n)
	}
}
