package acoustic

import (
	"crypto/sha256"
	"encoding/binary"
)

// ChannelCount is the number of non-overlapping frequency bands nodes are
// partitioned across so that concurrent acoustic activity on different
// nodes doesn't cross-talk.
const ChannelCount = 6

// channelBandHz is the width of each band; bands tile [bandFloorHz,
// bandFloorHz + ChannelCount*channelBandHz) back to back.
const (
	bandFloorHz   = 17000
	channelBandHz = 1000
)

// ChannelFor deterministically maps a node id to one of ChannelCount
// frequency bands by hashing the id, so any two nodes agree on a given
// node's channel without needing to exchange it. Returns the inclusive
// start and exclusive end frequency in Hz for that node's assigned band.
func ChannelFor(nodeID string) (freqStart, freqEnd int) {
	sum := sha256.Sum256([]byte(nodeID))
	idx := int(binary.BigEndian.Uint64(sum[:8]) % ChannelCount)
	start := bandFloorHz + idx*channelBandHz
	return start, start + channelBandHz
}

// ChirpParamsFor builds the Params a node should use to emit its own
// identification chirp, derived from its deterministic channel and the
// requested duration/sample rate.
func ChirpParamsFor(nodeID string, duration float64, sampleRate int) Params {
	start, end := ChannelFor(nodeID)
	return Params{
		FreqStart:  start,
		FreqEnd:    end,
		Duration:   duration,
		SampleRate: sampleRate,
	}
}
