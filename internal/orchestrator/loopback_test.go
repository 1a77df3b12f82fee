package orchestrator

import (
	"context"
	"sync"

	"github.com/floatingcomet62/quietmesh/internal/transport"
)

// loopbackBus is an in-process stand-in for Multicast: every publish
// fans out synchronously to every other connected node subscribed to
// the topic. It exists purely so orchestrator tests can exercise the
// full dispatch pipeline between two or three nodes without opening a
// real socket.
type loopbackBus struct {
	mu    sync.Mutex
	nodes map[string]*loopbackTransport
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{nodes: make(map[string]*loopbackTransport)}
}

func (b *loopbackBus) connect(id string) *loopbackTransport {
	t := &loopbackTransport{
		id:         id,
		bus:        b,
		subscribed: make(map[string]bool),
		events:     make(chan transport.Event, 64),
	}
	b.mu.Lock()
	b.nodes[id] = t
	b.mu.Unlock()
	return t
}

type loopbackTransport struct {
	id  string
	bus *loopbackBus

	mu         sync.Mutex
	subscribed map[string]bool
	events     chan transport.Event
}

func (t *loopbackTransport) LocalPeerID() string { return t.id }

func (t *loopbackTransport) Subscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed[topic] = true
	return nil
}

func (t *loopbackTransport) Unsubscribe(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribed, topic)
}

func (t *loopbackTransport) Publish(topic string, payload []byte) error {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()
	for id, peer := range t.bus.nodes {
		if id == t.id {
			continue
		}
		peer.mu.Lock()
		subscribed := peer.subscribed[topic]
		peer.mu.Unlock()
		if !subscribed {
			continue
		}
		select {
		case peer.events <- transport.Event{Topic: topic, FromPeerID: t.id, Payload: payload}:
		default:
		}
	}
	return nil
}

func (t *loopbackTransport) Events() <-chan transport.Event { return t.events }

func (t *loopbackTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (t *loopbackTransport) Close() error {
	return nil
}
