package acoustic

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateChirp_LengthMatchesDuration(t *testing.T) {
	chirp := GenerateChirp(Params{FreqStart: 18000, FreqEnd: 19000, Duration: 0.1, SampleRate: 48000})

	assert.Len(t, chirp, 4800)
}

func TestGenerateChirp_StaysWithinUnitAmplitude(t *testing.T) {
	chirp := GenerateChirp(Params{FreqStart: 17000, FreqEnd: 18000, Duration: 0.05, SampleRate: 48000})

	for _, v := range chirp {
		assert.LessOrEqual(t, math.Abs(v), 1.0)
	}
}

func TestTofToDistance_RoundTrips(t *testing.T) {
	d := TofToDistance(DistanceToTof(5.0))

	assert.InDelta(t, 5.0, d, 1e-9)
}

func TestMatchedFilter_FindsEmbeddedChirp(t *testing.T) {
	params := Params{FreqStart: 18000, FreqEnd: 19000, Duration: 0.02, SampleRate: 48000}
	chirp := GenerateChirp(params)

	silenceBefore := 500
	silenceAfter := 200
	recording := make([]float64, silenceBefore+len(chirp)+silenceAfter)
	copy(recording[silenceBefore:], chirp)

	corr := MatchedFilter(recording, chirp)
	require.NotEmpty(t, corr)

	peak, ok := FindPeakTOF(corr, 0)
	require.True(t, ok)

	// The matched filter output is indexed by alignment lag, so it peaks
	// where the template starts inside the recording: silenceBefore.
	assert.InDelta(t, silenceBefore, peak, 2)
}

func TestFindPeakTOF_RejectsPureNoiseBelowFloor(t *testing.T) {
	flat := make([]float64, 100)

	_, ok := FindPeakTOF(flat, 0)

	assert.False(t, ok)
}

func TestChannelFor_IsDeterministicAndInRange(t *testing.T) {
	start1, end1 := ChannelFor("node-alpha")
	start2, end2 := ChannelFor("node-alpha")

	assert.Equal(t, start1, start2)
	assert.Equal(t, end1, end2)
	assert.GreaterOrEqual(t, start1, bandFloorHz)
	assert.LessOrEqual(t, end1, bandFloorHz+ChannelCount*channelBandHz)
	assert.Equal(t, channelBandHz, end1-start1)
}

func TestChannelFor_DiffersAcrossMostNodes(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		start, _ := ChannelFor(string(rune('a' + i)))
		seen[start] = true
	}

	// With 6 channels and 20 distinct ids we expect more than one band hit.
	assert.Greater(t, len(seen), 1)
}

func TestIdentifyChirps_MatchesCorrectNode(t *testing.T) {
	const sampleRate = 48000
	const duration = 0.02

	params := ChirpParamsFor("node-b", duration, sampleRate)
	chirp := GenerateChirp(params)

	recording := make([]float64, 300+len(chirp))
	copy(recording[300:], chirp)

	hits := IdentifyChirps(recording, []string{"node-a", "node-b", "node-c"}, duration, sampleRate)

	_, found := hits["node-b"]
	assert.True(t, found)
}

func TestNullBackend_RecordYieldsSilenceOfRequestedLength(t *testing.T) {
	var b NullBackend
	samples, err := b.Record(context.Background(), 0.1, 1000)

	require.NoError(t, err)
	assert.Len(t, samples, 100)
	for _, s := range samples {
		assert.Equal(t, 0.0, s)
	}
}
