package transport

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultMulticastGroup and DefaultMulticastPort reuse the teacher's
// discovery defaults: one LAN-local multicast address serves both
// peer discovery and room traffic in this repo, since there is no
// longer a separate discovery phase (rooms are joined directly).
const (
	DefaultMulticastGroup = "239.255.77.77"
	DefaultMulticastPort  = 7777
	maxFrameSize          = 65536
	seenFrameTTL          = 2 * time.Minute
)

// wireFrame is the JSON shape carried over the multicast socket,
// modeled on discovery.Message: a flat envelope around an opaque,
// already-serialized payload. Payload is whatever the caller handed
// Publish — by the time it reaches here it already carries its
// frame-prefix nonce (internal/nonce), prepended one layer up in
// orchestrator.framedPublish so the dedup hash below covers it.
type wireFrame struct {
	Topic   string `json:"topic"`
	Sender  string `json:"sender"`
	Payload string `json:"payload"`
}

// Multicast is a Transport backed by a single shared UDP multicast
// socket. Every node on the group physically receives every frame for
// every topic — there is no multicast-layer topic membership the way
// a real gossipsub mesh prunes peers per-topic — so Multicast tracks
// subscriptions itself and drops frames for topics nobody asked for
// before they ever reach routing.Filter. That filter still runs
// downstream in the orchestrator: subscription answers "do we care
// about this topic," routing answers "do we trust this specific frame
// on this specific topic," and the two are deliberately independent
// checks.
type Multicast struct {
	nodeID string
	group  string
	port   int

	conn *net.UDPConn

	mu         sync.RWMutex
	subscribed map[string]bool
	seenHash   map[string]time.Time
	events     chan Event
	closeOnce  sync.Once
	closed     chan struct{}
	logger     *slog.Logger
}

// NewMulticast opens (but does not yet run) a Multicast transport for
// nodeID. If group/port are zero-valued, the package defaults apply.
func NewMulticast(nodeID, group string, port int, logger *slog.Logger) (*Multicast, error) {
	if group == "" {
		group = DefaultMulticastGroup
	}
	if port == 0 {
		port = DefaultMulticastPort
	}
	if logger == nil {
		logger = slog.Default()
	}

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("transport: resolve multicast addr: %w", err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(group), Port: port})
	if err != nil {
		conn2, err2 := net.ListenUDP("udp4", addr)
		if err2 != nil {
			return nil, fmt.Errorf("transport: listen multicast: %w (fallback: %w)", err, err2)
		}
		conn = conn2
		logger.Warn("multicast unavailable, using plain UDP", "addr", addr)
	}

	return &Multicast{
		nodeID:     nodeID,
		group:      group,
		port:       port,
		conn:       conn,
		subscribed: make(map[string]bool),
		seenHash:   make(map[string]time.Time),
		events:     make(chan Event, 64),
		closed:     make(chan struct{}),
		logger:     logger.With("component", "transport"),
	}, nil
}

func (m *Multicast) LocalPeerID() string { return m.nodeID }

func (m *Multicast) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[topic] = true
	return nil
}

func (m *Multicast) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribed, topic)
}

// Publish wraps payload in the wire envelope and broadcasts it to the
// multicast group. payload is expected to already carry its
// frame-prefix nonce; Multicast itself is nonce-agnostic.
func (m *Multicast) Publish(topic string, payload []byte) error {
	frame := wireFrame{
		Topic:   topic,
		Sender:  m.nodeID,
		Payload: base64.StdEncoding.EncodeToString(payload),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	dst := &net.UDPAddr{IP: net.ParseIP(m.group), Port: m.port}
	if _, err := m.conn.WriteToUDP(data, dst); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

func (m *Multicast) Events() <-chan Event { return m.events }

// Run drives the receive loop until ctx is canceled or Close is called.
func (m *Multicast) Run(ctx context.Context) error {
	buf := make([]byte, maxFrameSize)
	go m.cleanupLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.closed:
			return nil
		default:
		}

		m.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		m.handleFrame(buf[:n])
	}
}

func (m *Multicast) handleFrame(data []byte) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Sender == m.nodeID {
		return
	}

	m.mu.RLock()
	subscribed := m.subscribed[frame.Topic]
	m.mu.RUnlock()
	if !subscribed {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(frame.Payload)
	if err != nil {
		m.logger.Warn("dropping frame with invalid payload encoding", "sender", frame.Sender, "topic", frame.Topic)
		return
	}

	// Dedup is content-addressed on topic||payload rather than the
	// wire bytes as a whole, so re-marshaled retransmissions of the
	// same frame still collide. payload still carries its frame-prefix
	// nonce at this point, which is what keeps distinct sends of an
	// otherwise-identical message from colliding here.
	if m.isDuplicate(dedupKey(frame.Topic, payload)) {
		return
	}

	select {
	case m.events <- Event{Topic: frame.Topic, FromPeerID: frame.Sender, Payload: payload}:
	default:
		m.logger.Warn("event channel full, dropping frame", "topic", frame.Topic)
	}
}

func dedupKey(topic string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Multicast) isDuplicate(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seenHash[hash]; ok {
		return true
	}
	m.seenHash[hash] = time.Now()
	return false
}

func (m *Multicast) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for hash, seenAt := range m.seenHash {
				if now.Sub(seenAt) > seenFrameTTL {
					delete(m.seenHash, hash)
				}
			}
			m.mu.Unlock()
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		}
	}
}

func (m *Multicast) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		close(m.events)
	})
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
