// Package secretstore owns this node's long-term signature keypair,
// performs the signed post-quantum KEM handshake, and holds the
// per-peer symmetric sessions it establishes.
//
// Wire-compatible in spirit with original_source's oqs-based
// sig/kem pairing: a signed KEM public key travels in the handshake
// request, a signed KEM ciphertext travels in the response, and both
// sides end up with the same AEAD key.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"golang.org/x/crypto/hkdf"

	"github.com/floatingcomet62/quietmesh/internal/nonce"
)

// hkdfInfo domain-separates the AEAD key derived from a raw KEM shared
// secret. Both sides of a handshake must agree on it.
const hkdfInfo = "quietmesh-secretstore-aead-key-v1"

// Sentinel errors, matching the error kinds named in spec.md §7.
var (
	ErrInvalidSignature = fmt.Errorf("secretstore: invalid signature")
	ErrNoPending        = fmt.Errorf("secretstore: no pending handshake for peer")
	ErrNoSession        = fmt.Errorf("secretstore: no established session for peer")
	ErrAeadFailure      = fmt.Errorf("secretstore: AEAD authentication failed")
)

// LongTermKeys is this node's immutable ML-DSA-87 signature keypair.
type LongTermKeys struct {
	Public  *mldsa87.PublicKey
	private *mldsa87.PrivateKey
}

// pendingKem is the KEM keypair generated while this node awaits a
// handshake response from a peer it initiated toward.
type pendingKem struct {
	public  *mlkem1024.PublicKey
	private *mlkem1024.PrivateKey
}

// session is an established per-peer symmetric channel.
type session struct {
	aead cipher.AEAD
}

// Store owns the long-term keys, the pending-handshake map, and the
// established session map. All operations are safe for concurrent use,
// though the orchestrator's single cooperative task never needs that —
// the locking is cheap insurance, matching the teacher's RWMutex-guarded
// maps throughout internal/mesh.
type Store struct {
	mu sync.RWMutex

	keys LongTermKeys

	pending  map[string]pendingKem
	sessions map[string]session
}

// New generates a fresh long-term ML-DSA-87 keypair and returns an
// empty secret store.
func New() (*Store, error) {
	pub, priv, err := mldsa87.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("secretstore: generate signature keypair: %w", err)
	}
	return &Store{
		keys:     LongTermKeys{Public: pub, private: priv},
		pending:  make(map[string]pendingKem),
		sessions: make(map[string]session),
	}, nil
}

// PublicSigningKey returns this node's long-term signature public key,
// packed for the wire.
func (s *Store) PublicSigningKey() []byte {
	buf := make([]byte, mldsa87.PublicKeySize)
	s.keys.Public.Pack(buf)
	return buf
}

// HasSession reports whether an established session exists for peer.
func (s *Store) HasSession(peer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[peer]
	return ok
}

// HasPending reports whether a handshake this node initiated toward
// peer is still awaiting a response.
func (s *Store) HasPending(peer string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[peer]
	return ok
}

// SessionCount returns the number of currently established sessions,
// for gauge-style metrics reporting.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictSession removes any established session for peer.
func (s *Store) EvictSession(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, peer)
}

// Zero scrubs the long-term private key and drops all session state.
// Recommended (not required) before process exit, per spec.md §5.
func (s *Store) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys.private != nil {
		*s.keys.private = mldsa87.PrivateKey{}
	}
	s.pending = make(map[string]pendingKem)
	s.sessions = make(map[string]session)
}

// HandshakeInit is what InitiateHandshake sends to a peer to kick off
// a SharedSecretExchange.
type HandshakeInit struct {
	KemPublicKey []byte
	Signature    []byte
	SigPublicKey []byte
}

// HandshakeResponse is what AcceptHandshake sends back in a
// SharedSecretExchangeResponse.
type HandshakeResponse struct {
	KemCiphertext []byte
	Signature     []byte
	SigPublicKey  []byte
}

// InitiateHandshake begins a handshake toward peer: generates a fresh
// KEM keypair, signs its public key, and stashes the keypair in the
// pending map (overwriting any earlier attempt toward the same peer).
func (s *Store) InitiateHandshake(peer string) (HandshakeInit, error) {
	pub, priv, err := mlkem1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return HandshakeInit{}, fmt.Errorf("secretstore: generate KEM keypair: %w", err)
	}

	kemPubBytes := make([]byte, mlkem1024.PublicKeySize)
	pub.Pack(kemPubBytes)

	sig := make([]byte, mldsa87.SignatureSize)
	mldsa87.SignTo(s.keys.private, kemPubBytes, nil, false, sig)

	s.mu.Lock()
	s.pending[peer] = pendingKem{public: pub, private: priv}
	s.mu.Unlock()

	return HandshakeInit{
		KemPublicKey: kemPubBytes,
		Signature:    sig,
		SigPublicKey: s.PublicSigningKey(),
	}, nil
}

// AcceptHandshake verifies an incoming handshake request, encapsulates
// against the remote KEM public key, installs the resulting session
// (overwriting any prior session for peer — see DESIGN.md, Open
// Question 2), and returns the response to publish back.
func (s *Store) AcceptHandshake(peer string, remoteKemPK []byte, remoteSignature []byte, remoteSigPK []byte) (HandshakeResponse, error) {
	remotePub, err := unpackSigPublicKey(remoteSigPK)
	if err != nil {
		return HandshakeResponse{}, fmt.Errorf("secretstore: unpack remote signing key: %w", err)
	}
	if !mldsa87.Verify(remotePub, remoteKemPK, nil, remoteSignature) {
		return HandshakeResponse{}, ErrInvalidSignature
	}

	var kemPub mlkem1024.PublicKey
	if err := kemPub.Unpack(remoteKemPK); err != nil {
		return HandshakeResponse{}, fmt.Errorf("secretstore: unpack remote KEM key: %w", err)
	}

	ct := make([]byte, mlkem1024.CiphertextSize)
	ss := make([]byte, mlkem1024.SharedKeySize)
	kemPub.EncapsulateTo(ct, ss, nil)

	aead, err := aeadFromSharedSecret(ss)
	if err != nil {
		return HandshakeResponse{}, err
	}

	sig := make([]byte, mldsa87.SignatureSize)
	mldsa87.SignTo(s.keys.private, ct, nil, false, sig)

	s.mu.Lock()
	s.sessions[peer] = session{aead: aead}
	s.mu.Unlock()

	return HandshakeResponse{
		KemCiphertext: ct,
		Signature:     sig,
		SigPublicKey:  s.PublicSigningKey(),
	}, nil
}

// CompleteHandshake verifies the response to a handshake this node
// initiated, decapsulates the shared secret, installs the session, and
// drains the pending entry.
func (s *Store) CompleteHandshake(peer string, remoteKemCt []byte, remoteSignature []byte, remoteSigPK []byte) error {
	s.mu.RLock()
	pend, ok := s.pending[peer]
	s.mu.RUnlock()
	if !ok {
		return ErrNoPending
	}

	remotePub, err := unpackSigPublicKey(remoteSigPK)
	if err != nil {
		return fmt.Errorf("secretstore: unpack remote signing key: %w", err)
	}
	if !mldsa87.Verify(remotePub, remoteKemCt, nil, remoteSignature) {
		return ErrInvalidSignature
	}

	ss := make([]byte, mlkem1024.SharedKeySize)
	pend.private.DecapsulateTo(ss, remoteKemCt)

	aead, err := aeadFromSharedSecret(ss)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[peer] = session{aead: aead}
	delete(s.pending, peer)
	s.mu.Unlock()

	return nil
}

// Encrypt seals plaintext for peer using the established session,
// returning a fresh AEAD nonce and the ciphertext.
func (s *Store) Encrypt(peer string, plaintext []byte) (aeadNonce [nonce.AEADNonceSize]byte, ciphertext []byte, err error) {
	s.mu.RLock()
	sess, ok := s.sessions[peer]
	s.mu.RUnlock()
	if !ok {
		return aeadNonce, nil, ErrNoSession
	}

	aeadNonce = nonce.FreshAEADNonce()
	ciphertext = sess.aead.Seal(nil, aeadNonce[:], plaintext, nil)
	return aeadNonce, ciphertext, nil
}

// Decrypt opens ciphertext from peer using the established session.
func (s *Store) Decrypt(peer string, aeadNonce [nonce.AEADNonceSize]byte, ciphertext []byte) ([]byte, error) {
	s.mu.RLock()
	sess, ok := s.sessions[peer]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}

	plaintext, err := sess.aead.Open(nil, aeadNonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAeadFailure
	}
	return plaintext, nil
}

func unpackSigPublicKey(buf []byte) (*mldsa87.PublicKey, error) {
	var pk mldsa87.PublicKey
	if err := pk.Unpack(buf); err != nil {
		return nil, err
	}
	return &pk, nil
}

// aeadFromSharedSecret derives a 32-byte AES-256 key from a raw KEM
// shared secret via HKDF-SHA256 and builds the AES-GCM AEAD around it.
func aeadFromSharedSecret(sharedSecret []byte) (cipher.AEAD, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secretstore: derive AEAD key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretstore: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretstore: create GCM: %w", err)
	}
	return aead, nil
}
