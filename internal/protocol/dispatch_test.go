package protocol

import (
	"errors"
	"testing"

	"github.com/floatingcomet62/quietmesh/internal/room"
	"github.com/floatingcomet62/quietmesh/internal/secretstore"
)

func noopSubscribe(name string) (room.TopicHandle, error) { return name, nil }

func newDispatcher(t *testing.T, selfPeerID string) *Dispatcher {
	t.Helper()
	store, err := secretstore.New()
	if err != nil {
		t.Fatalf("secretstore.New: %v", err)
	}
	rooms, err := room.New(selfPeerID, noopSubscribe)
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	return &Dispatcher{SelfPeerID: selfPeerID, Store: store, Rooms: rooms, Subscribe: noopSubscribe}
}

func noPublish(topicName string, payload []byte) error {
	return errors.New("unexpected publish to " + topicName)
}

func TestDispatchPingAnyRoom(t *testing.T) {
	d := newDispatcher(t, "self-abcde")
	pub := room.Room{Kind: room.Public, Name: "public_news"}

	ev, err := d.Dispatch("peer-99999", pub, Ping(), noPublish)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ev == nil || ev.Kind != EventPing {
		t.Fatalf("event = %+v, want EventPing", ev)
	}
}

func TestDispatchPublicRoomCollapsesNonPingToOther(t *testing.T) {
	d := newDispatcher(t, "self-abcde")
	pub := room.Room{Kind: room.Public, Name: "public_news"}

	ev, err := d.Dispatch("peer-99999", pub, RequestPublicKey(), noPublish)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ev == nil || ev.Kind != EventOtherReceived {
		t.Fatalf("event = %+v, want EventOtherReceived (Open Question 3)", ev)
	}
}

func TestDispatchRequestPublicKeyInDirectRoomReplies(t *testing.T) {
	d := newDispatcher(t, "self-abcde")
	direct := room.Room{Kind: room.Direct, Name: room.DMRoomName("self-abcde")}

	var publishedTo string
	var publishedFrame []byte
	publish := func(topicName string, payload []byte) error {
		publishedTo, publishedFrame = topicName, payload
		return nil
	}

	ev, err := d.Dispatch("peer-99999", direct, RequestPublicKey(), publish)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ev != nil {
		t.Errorf("event = %+v, want nil (reply is the only effect)", ev)
	}
	if publishedTo != direct.Name {
		t.Errorf("published to %q, want %q", publishedTo, direct.Name)
	}
	got, err := Parse(publishedFrame)
	if err != nil || got.Kind != KindReplyPublicKey {
		t.Fatalf("published frame = %+v, err=%v", got, err)
	}
	if string(got.SigPublicKey) != string(d.Store.PublicSigningKey()) {
		t.Error("reply carries the wrong signing key")
	}
}

func TestDispatchSharedSecretExchangeOnForeignChannelErrors(t *testing.T) {
	d := newDispatcher(t, "self-abcde")
	wrongRoom := room.Room{Kind: room.Direct, Name: "not-our-dm"}

	_, err := d.Dispatch("peer-99999", wrongRoom, SharedSecretExchange(nil, nil, nil), noPublish)
	if !errors.Is(err, ErrNotOurChannel) {
		t.Fatalf("err = %v, want ErrNotOurChannel", err)
	}
}

func TestDispatchFullHandshakeAndEncryptedRoundTrip(t *testing.T) {
	alice := newDispatcher(t, "alice-11111")
	bob := newDispatcher(t, "bob-22222")

	init, err := alice.Store.InitiateHandshake("bob-22222")
	if err != nil {
		t.Fatalf("InitiateHandshake: %v", err)
	}
	exchange := SharedSecretExchange(init.KemPublicKey, init.Signature, init.SigPublicKey)

	bobDM := room.Room{Kind: room.Direct, Name: room.DMRoomName("bob-22222")}
	var responseFrame []byte
	publish := func(topicName string, payload []byte) error {
		responseFrame = payload
		return nil
	}

	ev, err := bob.Dispatch("alice-11111", bobDM, exchange, publish)
	if err != nil {
		t.Fatalf("bob.Dispatch(exchange): %v", err)
	}
	if ev == nil || ev.Kind != EventHandshakeEstablished {
		t.Fatalf("event = %+v, want EventHandshakeEstablished", ev)
	}
	if _, ok := bob.Rooms.LookupByName(room.DMRoomName("alice-11111")); !ok {
		t.Error("bob did not join alice's DM room after accepting her handshake")
	}

	response, err := Parse(responseFrame)
	if err != nil || response.Kind != KindSharedSecretExchangeResponse {
		t.Fatalf("response frame = %+v, err=%v", response, err)
	}

	aliceDM := room.Room{Kind: room.Direct, Name: room.DMRoomName("alice-11111")}
	ev, err = alice.Dispatch("bob-22222", aliceDM, response, noPublish)
	if err != nil {
		t.Fatalf("alice.Dispatch(response): %v", err)
	}
	if ev == nil || ev.Kind != EventHandshakeEstablished {
		t.Fatalf("event = %+v, want EventHandshakeEstablished", ev)
	}

	aeadNonce, ciphertext, err := alice.Store.Encrypt("bob-22222", []byte("hello bob"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	comm := SharedSecretCommunication(aeadNonce, ciphertext)

	ev, err = bob.Dispatch("alice-11111", bobDM, comm, noPublish)
	if err != nil {
		t.Fatalf("bob.Dispatch(comm): %v", err)
	}
	if ev == nil || ev.Kind != EventPlaintextReceived || ev.Text != "hello bob" {
		t.Fatalf("event = %+v, want plaintext \"hello bob\"", ev)
	}
}

func TestDispatchReplyPublicKeySurfacesEvent(t *testing.T) {
	d := newDispatcher(t, "self-abcde")
	direct := room.Room{Kind: room.Direct, Name: room.DMRoomName("self-abcde")}

	ev, err := d.Dispatch("peer-99999", direct, ReplyPublicKey([]byte("their-pubkey")), noPublish)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ev == nil || ev.Kind != EventPublicKeyReceived || string(ev.SigPublicKey) != "their-pubkey" {
		t.Fatalf("event = %+v", ev)
	}
}
