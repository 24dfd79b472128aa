package mesh

import (
	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/protocol"
)

// beliefMessage is the wire envelope for a gossiped Belief: the same fields
// as belief.Belief, plus the "type" discriminator every mesh message
// carries.
type beliefMessage struct {
	Type string `json:"type"`
	belief.Belief
}

func newBeliefMessage(b *belief.Belief) beliefMessage {
	return beliefMessage{Type: protocol.TypeBelief, Belief: *b}
}

// Broadcast sends b to every connected peer except excludePeerID (used when
// relaying a belief back out so it isn't bounced straight back to its
// sender).
func (m *Mesh) Broadcast(b *belief.Belief, excludePeerID string) {
	msg := newBeliefMessage(b)

	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if id == excludePeerID {
			continue
		}
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.send(msg); err != nil {
			m.log.Debug("mesh: broadcast send failed", "peer", s.peerID, "err", err)
		}
	}
}

// handleIncomingBelief applies the sequence-number dedup rule: a belief is
// only accepted (and relayed further) if its sequence number exceeds the
// last one seen from that producer. Anything at or below the last-seen
// sequence number is a duplicate already flooded through some other path
// and is silently dropped.
func (m *Mesh) handleIncomingBelief(msg protocol.Message, fromPeerID string) {
	decoded, err := protocol.Decode[beliefMessage](msg)
	if err != nil {
		m.log.Debug("mesh: malformed belief", "err", err)
		return
	}
	b := decoded.Belief

	m.mu.Lock()
	last, seen := m.lastSeq[b.NodeID]
	isNew := !seen || b.SequenceNumber > last
	if isNew {
		m.lastSeq[b.NodeID] = b.SequenceNumber
	}
	m.mu.Unlock()

	if !isNew {
		return
	}

	if m.cb.OnBelief != nil {
		m.cb.OnBelief(&b)
	}

	if b.HopCount > 0 {
		relay := b.Relay()
		m.Broadcast(relay, fromPeerID)
	}
}
