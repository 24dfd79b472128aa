// Package mesh implements the node-to-node gossip network: mDNS peer
// discovery, deduplicated TCP sessions (exactly one connection per peer
// pair, initiated by the lexicographically smaller node id), belief
// flooding with sequence-number dedup and hop-count TTL, and an
// acoustic-ping request/response RPC used to range against peers.
package mesh

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/protocol"
)

// Callbacks lets the orchestrator hook into mesh events without the mesh
// package depending on orchestrator logic.
type Callbacks struct {
	// OnBelief is invoked for every belief accepted as new (not a stale
	// duplicate), including the node's own relays of beliefs from other
	// peers.
	OnBelief func(*belief.Belief)

	// OnAcousticPingRequest is invoked when a peer asks this node to emit
	// a ranging chirp; the returned bool is carried back as the pong's OK
	// field.
	OnAcousticPingRequest func(req protocol.AcousticPingRequest) (ok bool, errMsg string)

	// OnPeerOnline/OnPeerOffline report mesh membership changes so the
	// orchestrator can track node liveness in its world state.
	OnPeerOnline  func(peerID string)
	OnPeerOffline func(peerID string)
}

// Mesh is one node's view of and participation in the gossip network.
type Mesh struct {
	nodeID string
	port   int
	log    *log.Logger
	cb     Callbacks

	mu       sync.Mutex
	sessions map[string]*session
	lastSeq  map[string]int64

	listener net.Listener

	pendingPings map[string]chan protocol.AcousticPongResponse
	pendingMu    sync.Mutex
}

// New constructs a Mesh for nodeID listening on port. Call Start to begin
// advertising, browsing, and accepting sessions.
func New(nodeID string, port int, logger *log.Logger, cb Callbacks) *Mesh {
	return &Mesh{
		nodeID:       nodeID,
		port:         port,
		log:          logger,
		cb:           cb,
		sessions:     map[string]*session{},
		lastSeq:      map[string]int64{},
		pendingPings: map[string]chan protocol.AcousticPongResponse{},
	}
}

// SetCallbacks replaces the mesh's event callbacks. It exists so a caller
// can construct the Mesh first and wire up an orchestrator that needs the
// Mesh pointer before the callbacks that close back over that orchestrator
// are ready, breaking what would otherwise be a construction cycle. Not
// safe to call concurrently with Start.
func (m *Mesh) SetCallbacks(cb Callbacks) {
	m.cb = cb
}

// Start begins listening for inbound sessions, advertising this node over
// mDNS, and browsing for peers, returning once the listener is bound.
// Background work continues until ctx is cancelled.
func (m *Mesh) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", m.port))
	if err != nil {
		return fmt.Errorf("mesh: listen: %w", err)
	}
	m.listener = ln

	go m.acceptLoop(ctx)
	go m.advertise(ctx)
	go m.browse(ctx)

	return nil
}

// Stop closes the listener and every active session.
func (m *Mesh) Stop() {
	if m.listener != nil {
		m.listener.Close()
	}
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (m *Mesh) acceptLoop(ctx context.Context) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Error("mesh: accept failed", "err", err)
			return
		}
		go m.handleIncoming(ctx, conn)
	}
}

// handleIncoming performs the announce handshake on an inbound connection
// and, per the dedup rule, only keeps it if the remote peer's id is
// strictly less than this node's id — otherwise this node is the one
// responsible for having initiated the (single) session to that peer, so
// the duplicate inbound connection is closed.
func (m *Mesh) handleIncoming(ctx context.Context, conn net.Conn) {
	peerID, reader, writer, err := m.handshakeIncoming(conn)
	if err != nil {
		m.log.Debug("mesh: handshake failed", "err", err)
		conn.Close()
		return
	}

	if !(peerID < m.nodeID) {
		m.log.Debug("mesh: rejecting duplicate inbound session", "peer", peerID)
		conn.Close()
		return
	}

	m.adoptSession(ctx, peerID, conn, reader, writer)
}

func (m *Mesh) handshakeIncoming(conn net.Conn) (peerID string, reader *protocol.Reader, writer *protocol.Writer, err error) {
	reader = protocol.NewReader(conn)
	writer = protocol.NewWriter(conn)

	if err := writer.WriteMessage(protocol.NewAnnounce(m.nodeID)); err != nil {
		return "", nil, nil, err
	}

	msg, err := reader.ReadMessage()
	if err != nil {
		return "", nil, nil, err
	}
	announce, err := protocol.Decode[protocol.Announce](msg)
	if err != nil {
		return "", nil, nil, err
	}
	return announce.NodeID, reader, writer, nil
}

// connectToPeer dials a discovered peer and performs the outbound half of
// the announce handshake. Per the dedup rule this is only called when
// this node's id is strictly less than the peer's.
func (m *Mesh) connectToPeer(ctx context.Context, peerID, addr string) {
	if !(m.nodeID < peerID) {
		return
	}

	m.mu.Lock()
	_, exists := m.sessions[peerID]
	m.mu.Unlock()
	if exists {
		return
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		m.log.Debug("mesh: dial failed", "peer", peerID, "addr", addr, "err", err)
		go m.scheduleReconnect(ctx, peerID, addr)
		return
	}

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	if err := writer.WriteMessage(protocol.NewAnnounce(m.nodeID)); err != nil {
		conn.Close()
		return
	}
	msg, err := reader.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	announce, err := protocol.Decode[protocol.Announce](msg)
	if err != nil || announce.NodeID != peerID {
		conn.Close()
		return
	}

	m.adoptSession(ctx, peerID, conn, reader, writer)
}

func (m *Mesh) adoptSession(ctx context.Context, peerID string, conn net.Conn, reader *protocol.Reader, writer *protocol.Writer) {
	s := newSession(peerID, conn, reader, writer)

	m.mu.Lock()
	if existing, ok := m.sessions[peerID]; ok {
		m.mu.Unlock()
		existing.close()
		m.mu.Lock()
	}
	m.sessions[peerID] = s
	m.mu.Unlock()

	if m.cb.OnPeerOnline != nil {
		m.cb.OnPeerOnline(peerID)
	}

	go m.readLoop(ctx, s)
}

// Peers returns the ids of all currently connected peers.
func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

func (m *Mesh) removeSession(peerID string) {
	m.mu.Lock()
	delete(m.sessions, peerID)
	m.mu.Unlock()

	if m.cb.OnPeerOffline != nil {
		m.cb.OnPeerOffline(peerID)
	}
}
