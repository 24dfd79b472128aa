package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_EncodeDecode_RoundTripsAnnounce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nodeID := rapid.StringN(1, 32, -1).Draw(t, "nodeID")

		want := NewAnnounce(nodeID)
		line, err := Encode(want)
		require.NoError(t, err)
		assert.Equal(t, byte('\n'), line[len(line)-1], "every encoded message ends with a newline")

		r := NewReader(bytes.NewReader(line))
		msg, err := r.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, TypeAnnounce, msg.TypeOf())

		got, err := Decode[Announce](msg)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func Test_EncodeDecode_RoundTripsAcousticPingRequest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := AcousticPingRequest{
			Type:          TypeAcousticPing,
			RequestID:     rapid.StringN(1, 16, -1).Draw(t, "requestID"),
			DelayS:        rapid.Float64Range(0, 10).Draw(t, "delayS"),
			SampleRate:    rapid.IntRange(8000, 48000).Draw(t, "sampleRate"),
			FreqStart:     rapid.IntRange(100, 10000).Draw(t, "freqStart"),
			FreqEnd:       rapid.IntRange(100, 10000).Draw(t, "freqEnd"),
			ChirpDuration: rapid.Float64Range(0.01, 5).Draw(t, "chirpDuration"),
		}

		line, err := Encode(req)
		require.NoError(t, err)

		r := NewReader(bytes.NewReader(line))
		msg, err := r.ReadMessage()
		require.NoError(t, err)

		got, err := Decode[AcousticPingRequest](msg)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	})
}

func TestReader_SkipsBlankLinesAndReturnsEOF(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("\n\n")))
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_ReturnsMalformedForInvalidJSON(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("not json\n")))
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriter_SerializesConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			_ = w.WriteMessage(NewAnnounce("node"))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	r := NewReader(&buf)
	for i := 0; i < 8; i++ {
		_, err := r.ReadMessage()
		require.NoError(t, err)
	}
}
