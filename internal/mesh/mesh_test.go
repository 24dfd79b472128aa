package mesh

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senseye-project/senseye/internal/belief"
	"github.com/senseye-project/senseye/internal/protocol"
)

func testMesh(nodeID string, cb Callbacks) *Mesh {
	return New(nodeID, 0, log.New(io.Discard), cb)
}

func TestHandshakeIncoming_ExchangesNodeIDs(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	m := testMesh("node-b", Callbacks{})

	done := make(chan struct{})
	var gotPeerID string
	go func() {
		gotPeerID, _, _, _ = m.handshakeIncoming(server)
		close(done)
	}()

	clientReader := protocol.NewReader(client)
	clientWriter := protocol.NewWriter(client)
	require.NoError(t, clientWriter.WriteMessage(protocol.NewAnnounce("node-a")))

	_, err := clientReader.ReadMessage()
	require.NoError(t, err)

	<-done
	assert.Equal(t, "node-a", gotPeerID)
}

func TestHandleIncomingBelief_AcceptsFirstSequence(t *testing.T) {
	var got *belief.Belief
	m := testMesh("node-self", Callbacks{
		OnBelief: func(b *belief.Belief) { got = b },
	})

	b := belief.New("node-a")
	b.SequenceNumber = 1
	b.HopCount = 0

	m.handleIncomingBelief(encodeBeliefAsMessage(t, b), "node-a")

	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.SequenceNumber)
}

func TestHandleIncomingBelief_DropsStaleSequence(t *testing.T) {
	var callCount int
	m := testMesh("node-self", Callbacks{
		OnBelief: func(b *belief.Belief) { callCount++ },
	})

	b := belief.New("node-a")
	b.SequenceNumber = 5

	m.handleIncomingBelief(encodeBeliefAsMessage(t, b), "node-a")
	m.handleIncomingBelief(encodeBeliefAsMessage(t, b), "node-a")

	assert.Equal(t, 1, callCount)
}

func TestHandleIncomingBelief_AcceptsStrictlyIncreasingSequence(t *testing.T) {
	var seqs []int64
	m := testMesh("node-self", Callbacks{
		OnBelief: func(b *belief.Belief) { seqs = append(seqs, b.SequenceNumber) },
	})

	b1 := belief.New("node-a")
	b1.SequenceNumber = 1
	b2 := belief.New("node-a")
	b2.SequenceNumber = 2

	m.handleIncomingBelief(encodeBeliefAsMessage(t, b1), "node-a")
	m.handleIncomingBelief(encodeBeliefAsMessage(t, b2), "node-a")

	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestHandleIncomingBelief_RelaysWhenHopCountRemains(t *testing.T) {
	aliceToSelf, selfToAlice := net.Pipe()
	defer aliceToSelf.Close()
	defer selfToAlice.Close()
	bobToSelf, selfToBob := net.Pipe()
	defer bobToSelf.Close()
	defer selfToBob.Close()

	m := testMesh("node-self", Callbacks{})
	m.mu.Lock()
	m.sessions["node-alice"] = newSession("node-alice", selfToAlice, protocol.NewReader(selfToAlice), protocol.NewWriter(selfToAlice))
	m.sessions["node-bob"] = newSession("node-bob", selfToBob, protocol.NewReader(selfToBob), protocol.NewWriter(selfToBob))
	m.mu.Unlock()

	b := belief.New("node-carol")
	b.SequenceNumber = 1
	b.HopCount = 2

	relayed := make(chan protocol.Message, 1)
	go func() {
		r := protocol.NewReader(bobToSelf)
		msg, err := r.ReadMessage()
		if err == nil {
			relayed <- msg
		}
	}()

	m.handleIncomingBelief(encodeBeliefAsMessage(t, b), "node-alice")

	select {
	case msg := <-relayed:
		relay, err := protocol.Decode[beliefMessage](msg)
		require.NoError(t, err)
		assert.Equal(t, 1, relay.HopCount)
		assert.Equal(t, "node-carol", relay.NodeID)
	case <-time.After(time.Second):
		t.Fatal("relay was not sent to node-bob")
	}
}

func TestAcousticPingRequest_RespondsWithMatchingRequestID(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	m := testMesh("node-self", Callbacks{
		OnAcousticPingRequest: func(req protocol.AcousticPingRequest) (bool, string) {
			return true, ""
		},
	})
	s := newSession("node-peer", serverConn, protocol.NewReader(serverConn), protocol.NewWriter(serverConn))

	req := protocol.AcousticPingRequest{
		Type:          protocol.TypeAcousticPing,
		RequestID:     "req-1",
		SampleRate:    48000,
		FreqStart:     18000,
		FreqEnd:       19000,
		ChirpDuration: 0.02,
	}
	line, err := protocol.Encode(req)
	require.NoError(t, err)
	msg, err := protocol.NewReader(bytes.NewReader(line)).ReadMessage()
	require.NoError(t, err)

	go m.handleAcousticPingRequest(s, msg)

	resp, err := protocol.NewReader(clientConn).ReadMessage()
	require.NoError(t, err)
	pong, err := protocol.Decode[protocol.AcousticPongResponse](resp)
	require.NoError(t, err)
	assert.Equal(t, "req-1", pong.RequestID)
	assert.True(t, pong.OK)
}

func TestHandleAcousticPong_ResolvesPendingFuture(t *testing.T) {
	m := testMesh("node-self", Callbacks{})

	respCh := make(chan protocol.AcousticPongResponse, 1)
	m.pendingMu.Lock()
	m.pendingPings["req-42"] = respCh
	m.pendingMu.Unlock()

	line, err := protocol.Encode(protocol.AcousticPongResponse{
		Type:      protocol.TypeAcousticPong,
		RequestID: "req-42",
		OK:        true,
	})
	require.NoError(t, err)
	msg, err := protocol.NewReader(bytes.NewReader(line)).ReadMessage()
	require.NoError(t, err)

	m.handleAcousticPong(msg)

	select {
	case resp := <-respCh:
		assert.Equal(t, "req-42", resp.RequestID)
		assert.True(t, resp.OK)
	case <-time.After(time.Second):
		t.Fatal("pending ping future was never resolved")
	}
}

func TestRequestAcousticPing_NoSessionReturnsError(t *testing.T) {
	m := testMesh("node-self", Callbacks{})
	_, err := m.RequestAcousticPing(context.Background(), "node-unknown", 0, 48000, 18000, 19000, 0.02)
	assert.Error(t, err)
}

func TestPeers_ReturnsConnectedPeerIDs(t *testing.T) {
	m := testMesh("node-self", Callbacks{})
	m.mu.Lock()
	m.sessions["node-a"] = &session{peerID: "node-a"}
	m.sessions["node-b"] = &session{peerID: "node-b"}
	m.mu.Unlock()

	assert.ElementsMatch(t, []string{"node-a", "node-b"}, m.Peers())
}

func TestRemoveSession_FiresOnPeerOffline(t *testing.T) {
	var offline string
	m := testMesh("node-self", Callbacks{
		OnPeerOffline: func(peerID string) { offline = peerID },
	})
	m.mu.Lock()
	m.sessions["node-a"] = &session{peerID: "node-a"}
	m.mu.Unlock()

	m.removeSession("node-a")

	assert.Equal(t, "node-a", offline)
	assert.Empty(t, m.Peers())
}

func encodeBeliefAsMessage(t *testing.T, b *belief.Belief) protocol.Message {
	t.Helper()
	line, err := protocol.Encode(newBeliefMessage(b))
	require.NoError(t, err)

	msg, err := protocol.NewReader(bytes.NewReader(line)).ReadMessage()
	require.NoError(t, err)
	return msg
}
