package protocol

import (
	"fmt"

	"github.com/floatingcomet62/quietmesh/internal/room"
	"github.com/floatingcomet62/quietmesh/internal/routing"
	"github.com/floatingcomet62/quietmesh/internal/secretstore"
)

// EventKind discriminates the outcomes a Dispatcher surfaces to the
// orchestrator/CLI layer after processing one inbound frame.
type EventKind int

const (
	EventPing EventKind = iota
	EventPublicKeyReceived
	EventHandshakeEstablished
	EventPlaintextReceived
	EventOtherReceived
)

// Event is what Dispatch hands back for the orchestrator to log or
// forward to the user — never a direct side effect on its own, so the
// dispatcher stays testable without a real transport.
type Event struct {
	Kind         EventKind
	Peer         string
	Room         room.Room
	Text         string
	SigPublicKey []byte
}

// Publisher sends a marshaled frame to a named topic. Implemented by
// the transport layer; kept as a function type here so Dispatcher
// never imports transport.
type Publisher func(topicName string, payload []byte) error

// Dispatcher holds the state needed to process inbound InteractionMessages:
// the node's own identity, its secret store, and its room table. It
// implements the state machine named in spec.md §4.5 and the precedence
// rules of spec.md §4.3/§9 (Open Question 3): a Public room collapses
// any non-Ping message to Other before any variant-specific handling
// is considered, exactly as original_source/src/communication.rs's
// match arms are ordered.
type Dispatcher struct {
	SelfPeerID string
	Store      *secretstore.Store
	Rooms      *room.Table
	// Subscribe lets the dispatcher join a peer's DM room itself (the
	// responder side of a handshake needs to start listening on it,
	// not just publish into it once). Same signature room.Table.Join
	// expects.
	Subscribe func(name string) (room.TopicHandle, error)
}

// Dispatch processes one already-routed, already-parsed message that
// arrived on r via fromPeerID, publishing any reply through publish and
// returning an Event to surface, if any.
func (d *Dispatcher) Dispatch(fromPeerID string, r room.Room, msg Message, publish Publisher) (*Event, error) {
	if msg.Kind == KindPing {
		return &Event{Kind: EventPing, Peer: fromPeerID, Room: r}, nil
	}

	if r.Kind == room.Public {
		return &Event{Kind: EventOtherReceived, Peer: fromPeerID, Room: r, Text: debugString(msg)}, nil
	}

	switch msg.Kind {
	case KindRequestPublicKey:
		reply := ReplyPublicKey(d.Store.PublicSigningKey())
		frame, err := Marshal(reply)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal reply_public_key: %w", err)
		}
		if err := publish(r.Name, frame); err != nil {
			return nil, fmt.Errorf("protocol: publish reply_public_key: %w", err)
		}
		return nil, nil

	case KindReplyPublicKey:
		return &Event{Kind: EventPublicKeyReceived, Peer: fromPeerID, Room: r, SigPublicKey: msg.SigPublicKey}, nil

	case KindSharedSecretExchange:
		selfDM := room.DMRoomName(d.SelfPeerID)
		if !routing.IsOurChannel(r.Name, selfDM) {
			return nil, fmt.Errorf("protocol: shared_secret_exchange on %q: %w", r.Name, ErrNotOurChannel)
		}
		resp, err := d.Store.AcceptHandshake(fromPeerID, msg.KemPublicKey, msg.Signature, msg.SigPublicKey)
		if err != nil {
			return nil, fmt.Errorf("protocol: accept handshake from %s: %w", fromPeerID, err)
		}
		replyFrame, err := Marshal(SharedSecretExchangeResponse(resp.KemCiphertext, resp.Signature, resp.SigPublicKey))
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal shared_secret_exchange_response: %w", err)
		}
		peerDM := room.DMRoomName(fromPeerID)
		if _, err := d.Rooms.Join(peerDM, d.Subscribe); err != nil {
			return nil, fmt.Errorf("protocol: join %q: %w", peerDM, err)
		}
		if err := publish(peerDM, replyFrame); err != nil {
			return nil, fmt.Errorf("protocol: publish shared_secret_exchange_response: %w", err)
		}
		return &Event{Kind: EventHandshakeEstablished, Peer: fromPeerID, Room: r}, nil

	case KindSharedSecretExchangeResponse:
		if err := d.Store.CompleteHandshake(fromPeerID, msg.KemCiphertext, msg.Signature, msg.SigPublicKey); err != nil {
			return nil, fmt.Errorf("protocol: complete handshake with %s: %w", fromPeerID, err)
		}
		return &Event{Kind: EventHandshakeEstablished, Peer: fromPeerID, Room: r}, nil

	case KindSharedSecretCommunication:
		plaintext, err := d.Store.Decrypt(fromPeerID, msg.AEADNonce, msg.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("protocol: decrypt from %s: %w", fromPeerID, err)
		}
		return &Event{Kind: EventPlaintextReceived, Peer: fromPeerID, Room: r, Text: string(plaintext)}, nil

	default: // KindOther, and anything Parse already collapsed to Other
		return &Event{Kind: EventOtherReceived, Peer: fromPeerID, Room: r, Text: msg.Text}, nil
	}
}

func debugString(msg Message) string {
	return fmt.Sprintf("%s(unprocessed in public room)", msg.Kind)
}
