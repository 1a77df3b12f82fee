// Package protocol implements the InteractionMessage tagged union, its
// wire envelope, and the post-parse dispatch table from spec.md §4.5.
//
// The wire envelope is grounded on
// agent/internal/mesh/discovery/discovery.go's Message{Type, Sender,
// Payload, TS} shape: a string type discriminant plus a deferred
// json.RawMessage payload, which is exactly "a canonical textual
// object notation suitable for self-describing tagged variants"
// (spec.md §4.5) without reaching for a second serialization library
// the rest of the teacher's codebase never uses.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Kind discriminates the seven InteractionMessage variants from
// spec.md §4.5. Dispatch over Kind is an exhaustive switch, never a
// virtual hierarchy (spec.md §9).
type Kind string

const (
	KindPing                         Kind = "ping"
	KindRequestPublicKey             Kind = "request_public_key"
	KindReplyPublicKey               Kind = "reply_public_key"
	KindSharedSecretExchange         Kind = "shared_secret_exchange"
	KindSharedSecretExchangeResponse Kind = "shared_secret_exchange_response"
	KindSharedSecretCommunication    Kind = "shared_secret_communication"
	KindOther                        Kind = "other"
)

// Message is the tagged union of peer interactions. Only the fields
// relevant to Kind are populated; this mirrors a Rust enum's payload
// without needing one type per variant plus an interface to hold them.
type Message struct {
	Kind Kind

	// ReplyPublicKey
	SigPublicKey []byte

	// SharedSecretExchange / SharedSecretExchangeResponse
	KemPublicKey  []byte
	KemCiphertext []byte
	Signature     []byte

	// SharedSecretCommunication
	AEADNonce  [12]byte
	Ciphertext []byte

	// Other
	Text string
}

func Ping() Message { return Message{Kind: KindPing} }

func RequestPublicKey() Message { return Message{Kind: KindRequestPublicKey} }

func ReplyPublicKey(sigPK []byte) Message {
	return Message{Kind: KindReplyPublicKey, SigPublicKey: sigPK}
}

func SharedSecretExchange(kemPK, signature, sigPK []byte) Message {
	return Message{Kind: KindSharedSecretExchange, KemPublicKey: kemPK, Signature: signature, SigPublicKey: sigPK}
}

func SharedSecretExchangeResponse(kemCT, signature, sigPK []byte) Message {
	return Message{Kind: KindSharedSecretExchangeResponse, KemCiphertext: kemCT, Signature: signature, SigPublicKey: sigPK}
}

func SharedSecretCommunication(aeadNonce [12]byte, ciphertext []byte) Message {
	return Message{Kind: KindSharedSecretCommunication, AEADNonce: aeadNonce, Ciphertext: ciphertext}
}

func Other(text string) Message { return Message{Kind: KindOther, Text: text} }

// wireEnvelope is the JSON shape on the wire, modeled on discovery.Message.
type wireEnvelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type replyPublicKeyPayload struct {
	SigPublicKey string `json:"sig_pk"`
}

type sharedSecretExchangePayload struct {
	KemPublicKey string `json:"kem_pk"`
	Signature    string `json:"signature"`
	SigPublicKey string `json:"sig_pk"`
}

type sharedSecretExchangeResponsePayload struct {
	KemCiphertext string `json:"kem_ct"`
	Signature     string `json:"signature"`
	SigPublicKey  string `json:"sig_pk"`
}

type sharedSecretCommunicationPayload struct {
	AEADNonce  string `json:"aead_nonce"`
	Ciphertext string `json:"ciphertext"`
}

type otherPayload struct {
	Text string `json:"text"`
}

// Marshal serializes msg into its wire envelope bytes. This is the
// payload that gets frame-prefixed before publish (spec.md §4.1).
func Marshal(msg Message) ([]byte, error) {
	env := wireEnvelope{Type: msg.Kind}

	var payload any
	switch msg.Kind {
	case KindPing, KindRequestPublicKey:
		payload = nil
	case KindReplyPublicKey:
		payload = replyPublicKeyPayload{SigPublicKey: b64(msg.SigPublicKey)}
	case KindSharedSecretExchange:
		payload = sharedSecretExchangePayload{
			KemPublicKey: b64(msg.KemPublicKey),
			Signature:    b64(msg.Signature),
			SigPublicKey: b64(msg.SigPublicKey),
		}
	case KindSharedSecretExchangeResponse:
		payload = sharedSecretExchangeResponsePayload{
			KemCiphertext: b64(msg.KemCiphertext),
			Signature:     b64(msg.Signature),
			SigPublicKey:  b64(msg.SigPublicKey),
		}
	case KindSharedSecretCommunication:
		payload = sharedSecretCommunicationPayload{
			AEADNonce:  b64(msg.AEADNonce[:]),
			Ciphertext: b64(msg.Ciphertext),
		}
	case KindOther:
		payload = otherPayload{Text: msg.Text}
	default:
		return nil, fmt.Errorf("protocol: unknown message kind %q", msg.Kind)
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal payload: %w", err)
		}
		env.Payload = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return out, nil
}

// Parse decodes wire bytes into a Message. Anything that is valid
// UTF-8 but does not match one of the known variants (including a
// well-formed but unrecognized envelope) becomes Other, matching
// original_source/src/communication.rs's catch-all arm — a malformed
// frame that isn't even valid JSON is a Serde error.
func Parse(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("protocol: %w: %w", ErrSerde, err)
	}

	switch env.Type {
	case KindPing:
		return Ping(), nil
	case KindRequestPublicKey:
		return RequestPublicKey(), nil
	case KindReplyPublicKey:
		var p replyPublicKeyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Other(string(data)), nil
		}
		pk, err := unb64(p.SigPublicKey)
		if err != nil {
			return Other(string(data)), nil
		}
		return ReplyPublicKey(pk), nil
	case KindSharedSecretExchange:
		var p sharedSecretExchangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Other(string(data)), nil
		}
		kemPK, err1 := unb64(p.KemPublicKey)
		sig, err2 := unb64(p.Signature)
		sigPK, err3 := unb64(p.SigPublicKey)
		if err1 != nil || err2 != nil || err3 != nil {
			return Other(string(data)), nil
		}
		return SharedSecretExchange(kemPK, sig, sigPK), nil
	case KindSharedSecretExchangeResponse:
		var p sharedSecretExchangeResponsePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Other(string(data)), nil
		}
		ct, err1 := unb64(p.KemCiphertext)
		sig, err2 := unb64(p.Signature)
		sigPK, err3 := unb64(p.SigPublicKey)
		if err1 != nil || err2 != nil || err3 != nil {
			return Other(string(data)), nil
		}
		return SharedSecretExchangeResponse(ct, sig, sigPK), nil
	case KindSharedSecretCommunication:
		var p sharedSecretCommunicationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Other(string(data)), nil
		}
		n, err1 := unb64(p.AEADNonce)
		ct, err2 := unb64(p.Ciphertext)
		if err1 != nil || err2 != nil || len(n) != 12 {
			return Other(string(data)), nil
		}
		var nonceArr [12]byte
		copy(nonceArr[:], n)
		return SharedSecretCommunication(nonceArr, ct), nil
	case KindOther:
		var p otherPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			return Other(p.Text), nil
		}
		return Other(string(data)), nil
	default:
		return Other(string(data)), nil
	}
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
