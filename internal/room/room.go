// Package room tracks subscribed topics and classifies them into the
// Public/DirectMessage room model spec.md §3–§4.3 describes.
//
// Grounded on original_source/src/gossip/mod.rs: Room, get_room_from_topic,
// get_topic_name_from_hash, and open_ears's last-5-characters self-room
// join, translated into Go's tagged-struct idiom.
package room

import (
	"fmt"
	"strings"
)

// PublicPrefix marks a topic name as belonging to a Public room.
const PublicPrefix = "public_"

// Kind distinguishes the two room classes.
type Kind int

const (
	Public Kind = iota
	Direct
)

func (k Kind) String() string {
	switch k {
	case Public:
		return "public"
	case Direct:
		return "direct"
	default:
		return "unknown"
	}
}

// Room is the tagged Public(name) | Direct(name) variant from spec.md §3.
type Room struct {
	Kind Kind
	Name string
}

func (r Room) String() string {
	return fmt.Sprintf("%s(%s)", r.Kind, r.Name)
}

// DMRoomName derives the deterministic direct-message room name for a
// peer: the last 5 characters of its printable identifier.
//
// Collision-prone by construction (~10^9 suffix space against a much
// wider peer-id space) and not a cryptographic binding — kept as
// specified because it is part of the wire contract (see DESIGN.md,
// Open Question 1): any peer computing a different DM room name for
// the same target peer can never complete a handshake with it.
func DMRoomName(peerID string) string {
	if len(peerID) <= 5 {
		return peerID
	}
	runes := []rune(peerID)
	if len(runes) <= 5 {
		return peerID
	}
	return string(runes[len(runes)-5:])
}

// TopicHandle is the transport's opaque subscription token.
type TopicHandle interface{}

type entry struct {
	name   string
	handle TopicHandle
}

// Table is the ordered (name, topic-handle) sequence described in
// spec.md §3. Names are unique; the node is always subscribed to its
// own DM room once Table is constructed via New.
type Table struct {
	selfPeerID string
	entries    []entry
}

// New constructs a Table already subscribed to selfPeerID's own DM
// room, using subscribe to obtain its topic handle.
func New(selfPeerID string, subscribe func(name string) (TopicHandle, error)) (*Table, error) {
	t := &Table{selfPeerID: selfPeerID}
	if _, err := t.Join(DMRoomName(selfPeerID), subscribe); err != nil {
		return nil, fmt.Errorf("room: subscribe to own DM room: %w", err)
	}
	return t, nil
}

// Join subscribes to name if not already present, storing the handle
// subscribe returns. Returns the handle (existing or new).
func (t *Table) Join(name string, subscribe func(name string) (TopicHandle, error)) (TopicHandle, error) {
	if h, ok := t.LookupByName(name); ok {
		return h, nil
	}
	handle, err := subscribe(name)
	if err != nil {
		return nil, err
	}
	t.entries = append(t.entries, entry{name: name, handle: handle})
	return handle, nil
}

// Leave removes name from the table. Leaving the node's own DM room is
// allowed by this type but is the orchestrator's decision, not this
// table's — Table enforces no special case for it beyond what New sets up.
func (t *Table) Leave(name string, unsubscribe func(name string)) {
	for i, e := range t.entries {
		if e.name == name {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			if unsubscribe != nil {
				unsubscribe(name)
			}
			return
		}
	}
}

// LookupByName returns the topic handle for name, if subscribed.
func (t *Table) LookupByName(name string) (TopicHandle, bool) {
	for _, e := range t.entries {
		if e.name == name {
			return e.handle, true
		}
	}
	return nil, false
}

// Names returns the currently subscribed topic names, in join order.
func (t *Table) Names() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.name
	}
	return names
}

// Classify maps a topic name to its Room variant: names beginning with
// "public_" are Public; this node's own DM room is Direct; any other
// name defaults to Public (see spec.md §4.3 and §9 rationale).
func (t *Table) Classify(name string) Room {
	if strings.HasPrefix(name, PublicPrefix) {
		return Room{Kind: Public, Name: name}
	}
	if name == DMRoomName(t.selfPeerID) {
		return Room{Kind: Direct, Name: name}
	}
	return Room{Kind: Public, Name: name}
}

// ErrUnknownTopic is returned by ResolveByHash when the transport
// delivered a frame for a topic this node never subscribed to — a
// fatal inconsistency per spec.md §4.3 (the original Rust
// implementation panics here; this repo surfaces it as an error and
// lets the caller decide how fatal "fatal" is).
type ErrUnknownTopic struct {
	Hash string
}

func (e ErrUnknownTopic) Error() string {
	return fmt.Sprintf("room: no subscribed topic matches hash %q", e.Hash)
}

// ResolveByHash finds the Room whose topic handle's hash (as reported
// by hashOf) equals hash. hashOf lets the transport's own notion of
// "topic hash" (e.g. a gossipsub TopicHash) drive the comparison
// without this package needing to know its concrete type.
func (t *Table) ResolveByHash(hash string, hashOf func(h TopicHandle) string) (Room, error) {
	for _, e := range t.entries {
		if hashOf(e.handle) == hash {
			return t.Classify(e.name), nil
		}
	}
	return Room{}, ErrUnknownTopic{Hash: hash}
}
