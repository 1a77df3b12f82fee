package protocol

import "errors"

// ErrSerde wraps any failure to even decode the outer envelope —
// distinct from an envelope that decodes fine but names an unknown or
// malformed variant, which collapses to Other instead of erroring
// (original_source/src/communication.rs's catch-all arm).
var ErrSerde = errors.New("protocol: malformed envelope")

// ErrNotOurChannel is returned when a SharedSecretExchange arrives on
// a DM room that is not this node's own — spec.md §4.4's post-parse
// handshake-acceptance gate.
var ErrNotOurChannel = errors.New("protocol: handshake frame on foreign channel")
