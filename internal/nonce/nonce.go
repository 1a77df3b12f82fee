// Package nonce produces the random byte strings the rest of the node
// relies on: frame prefixes that defeat the transport's content-hash
// deduplication, and AEAD nonces for sealed payloads.
package nonce

import "crypto/rand"

// FramePrefixSize is the length of the random prefix prepended to
// every published frame.
const FramePrefixSize = 16

// AEADNonceSize is the length of the random nonce used for each sealed
// payload.
const AEADNonceSize = 12

// FreshFramePrefix returns a new random 16-byte frame prefix.
func FreshFramePrefix() [FramePrefixSize]byte {
	var b [FramePrefixSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("nonce: system randomness unavailable: " + err.Error())
	}
	return b
}

// FreshAEADNonce returns a new random 12-byte AEAD nonce.
func FreshAEADNonce() [AEADNonceSize]byte {
	var b [AEADNonceSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("nonce: system randomness unavailable: " + err.Error())
	}
	return b
}

// Prefix prepends a fresh frame prefix to payload.
func Prefix(payload []byte) []byte {
	p := FreshFramePrefix()
	out := make([]byte, 0, FramePrefixSize+len(payload))
	out = append(out, p[:]...)
	out = append(out, payload...)
	return out
}

// StripPrefix removes the leading frame prefix from a received frame.
// Returns false if the frame is too short to contain one.
func StripPrefix(frame []byte) ([]byte, bool) {
	if len(frame) < FramePrefixSize {
		return nil, false
	}
	return frame[FramePrefixSize:], true
}
