package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/senseye-project/senseye/internal/protocol"
)

// acousticPingTimeout bounds how long RequestAcousticPing waits for a peer
// to acknowledge before giving up.
const acousticPingTimeout = 5 * time.Second

// RequestAcousticPing asks peerID to emit a ranging chirp after delay and
// blocks until it acknowledges, times out, or the session drops.
func (m *Mesh) RequestAcousticPing(ctx context.Context, peerID string, delay time.Duration, sampleRate, freqStart, freqEnd int, chirpDuration float64) (protocol.AcousticPongResponse, error) {
	m.mu.Lock()
	s, ok := m.sessions[peerID]
	m.mu.Unlock()
	if !ok {
		return protocol.AcousticPongResponse{}, fmt.Errorf("mesh: no session to peer %s", peerID)
	}

	requestID := uuid.NewString()
	respCh := make(chan protocol.AcousticPongResponse, 1)

	m.pendingMu.Lock()
	m.pendingPings[requestID] = respCh
	m.pendingMu.Unlock()
	defer func() {
		m.pendingMu.Lock()
		delete(m.pendingPings, requestID)
		m.pendingMu.Unlock()
	}()

	req := protocol.AcousticPingRequest{
		Type:          protocol.TypeAcousticPing,
		RequestID:     requestID,
		DelayS:        delay.Seconds(),
		SampleRate:    sampleRate,
		FreqStart:     freqStart,
		FreqEnd:       freqEnd,
		ChirpDuration: chirpDuration,
	}
	if err := s.send(req); err != nil {
		return protocol.AcousticPongResponse{}, fmt.Errorf("mesh: send acoustic ping: %w", err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(acousticPingTimeout):
		return protocol.AcousticPongResponse{}, fmt.Errorf("mesh: acoustic ping to %s timed out", peerID)
	case <-s.closed:
		return protocol.AcousticPongResponse{}, fmt.Errorf("mesh: session to %s closed before acoustic pong", peerID)
	case <-ctx.Done():
		return protocol.AcousticPongResponse{}, ctx.Err()
	}
}

func (m *Mesh) handleAcousticPingRequest(s *session, msg protocol.Message) {
	req, err := protocol.Decode[protocol.AcousticPingRequest](msg)
	if err != nil {
		m.log.Debug("mesh: malformed acoustic ping", "err", err)
		return
	}

	ok, errMsg := true, ""
	if m.cb.OnAcousticPingRequest != nil {
		ok, errMsg = m.cb.OnAcousticPingRequest(req)
	}

	resp := protocol.AcousticPongResponse{
		Type:      protocol.TypeAcousticPong,
		RequestID: req.RequestID,
		OK:        ok,
		Error:     errMsg,
	}
	if err := s.send(resp); err != nil {
		m.log.Debug("mesh: send acoustic pong failed", "err", err)
	}
}

func (m *Mesh) handleAcousticPong(msg protocol.Message) {
	resp, err := protocol.Decode[protocol.AcousticPongResponse](msg)
	if err != nil {
		m.log.Debug("mesh: malformed acoustic pong", "err", err)
		return
	}

	m.pendingMu.Lock()
	ch, ok := m.pendingPings[resp.RequestID]
	m.pendingMu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- resp:
	default:
	}
}
