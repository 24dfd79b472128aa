package mesh

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/senseye-project/senseye/internal/protocol"
)

// session is one live TCP connection to a peer, wrapping the framed reader
// and writer plus a guard against double-close.
type session struct {
	peerID string
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	closed chan struct{}
}

func newSession(peerID string, conn net.Conn, reader *protocol.Reader, writer *protocol.Writer) *session {
	return &session{
		peerID: peerID,
		conn:   conn,
		reader: reader,
		writer: writer,
		closed: make(chan struct{}),
	}
}

func (s *session) close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	s.conn.Close()
}

func (s *session) send(v any) error {
	return s.writer.WriteMessage(v)
}

// readLoop dispatches every message on a session until the connection ends,
// then tears down the session and (if this node owns the connect
// direction) schedules a reconnect.
func (m *Mesh) readLoop(ctx context.Context, s *session) {
	defer func() {
		s.close()
		m.removeSession(s.peerID)

		remoteAddr := s.conn.RemoteAddr().String()
		if m.nodeID < s.peerID {
			go m.scheduleReconnect(ctx, s.peerID, remoteAddr)
		}
	}()

	for {
		msg, err := s.reader.ReadMessage()
		if errors.Is(err, protocol.ErrMalformed) {
			m.log.Debug("mesh: dropping malformed line", "peer", s.peerID)
			continue
		}
		if errors.Is(err, io.EOF) || err != nil {
			return
		}

		switch msg.TypeOf() {
		case protocol.TypeBelief:
			m.handleIncomingBelief(msg, s.peerID)
		case protocol.TypeAcousticPing:
			m.handleAcousticPingRequest(s, msg)
		case protocol.TypeAcousticPong:
			m.handleAcousticPong(msg)
		default:
			m.log.Debug("mesh: unknown message type", "type", msg.TypeOf(), "peer", s.peerID)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// reconnectBaseDelay and reconnectMaxDelay bound the exponential backoff
// used between reconnect attempts to a peer that dropped.
const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

func (m *Mesh) scheduleReconnect(ctx context.Context, peerID, addr string) {
	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		_, stillConnected := m.sessions[peerID]
		m.mu.Unlock()
		if stillConnected {
			return
		}

		m.connectToPeer(ctx, peerID, addr)

		m.mu.Lock()
		_, connected := m.sessions[peerID]
		m.mu.Unlock()
		if connected {
			return
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}
