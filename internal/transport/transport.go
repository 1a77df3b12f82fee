// Package transport defines the broadcast pub/sub capability the rest
// of this repo is built against, plus a concrete UDP-multicast
// implementation of it (Multicast).
//
// Grounded on agent/internal/mesh/discovery/discovery.go and
// agent/internal/mesh/node.go, adapted from point-to-point peer
// messaging into topic-multiplexed publish/subscribe: spec.md's
// transport contract is "broadcast to a named topic, deliver to
// subscribers," not "send to a known peer address."
package transport

import "context"

// Event is one inbound frame (Multicast delivers it already
// de-duplicated on topic||payload). Payload still carries its leading frame-prefix nonce (internal/nonce)
// — the caller strips it before protocol.Parse.
type Event struct {
	Topic      string
	FromPeerID string
	Payload    []byte
}

// Transport is the capability the room table and orchestrator depend
// on. Subscribe/Unsubscribe are idempotent. Publish is nonce-agnostic:
// callers prepend a fresh frame-prefix nonce (internal/nonce) before
// calling it so identical payloads never collide under a content-hash
// de-duplication on topic||payload such as the one Multicast performs.
type Transport interface {
	LocalPeerID() string
	Subscribe(topic string) error
	Unsubscribe(topic string)
	Publish(topic string, payload []byte) error
	Events() <-chan Event
	Run(ctx context.Context) error
	Close() error
}
