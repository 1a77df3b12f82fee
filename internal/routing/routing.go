// Package routing implements the accept/forward/drop predicate applied
// to every inbound frame before envelope parsing (spec.md §4.4), plus
// the post-parse handshake-acceptance gate.
//
// Grounded directly on original_source/src/gossip/mod.rs's
// handle_event three-flag gate (is_public_room / is_message_by_the_dm_op /
// is_message_in_self_dm).
package routing

import "strings"

// Decision is the outcome of the pre-parse routing filter.
type Decision int

const (
	Accept Decision = iota
	Drop
)

func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "drop"
}

// Filter applies the truth table from spec.md §4.4 to an inbound
// (peer, topicName) pair, given this node's own peer id.
//
//	is_public         = topicName starts with "public_"
//	is_from_dm_owner  = peer contains topicName (topicName is a suffix of its owner's peer id)
//	is_our_dm         = self contains topicName
//
// | is_public | is_from_dm_owner | is_our_dm | action |
// |-----------|------------------|-----------|--------|
// |     T     |        *         |     *     | accept |
// |     F     |        T         |     *     | accept |
// |     F     |        F         |     T     | accept |
// |     F     |        F         |     F     | drop   |
func Filter(selfPeerID, fromPeerID, topicName string) Decision {
	isPublic := strings.HasPrefix(topicName, "public_")
	isFromDMOwner := strings.Contains(fromPeerID, topicName)
	isOurDM := strings.Contains(selfPeerID, topicName)

	if isPublic {
		return Accept
	}
	if isFromDMOwner {
		return Accept
	}
	if isOurDM {
		return Accept
	}
	return Drop
}

// IsOurChannel is the post-parse handshake-acceptance gate from
// spec.md §4.4: a SharedSecretExchange is only honored if it arrived
// on this node's own DM room.
func IsOurChannel(topicName, selfDMRoomName string) bool {
	return topicName == selfDMRoomName
}
