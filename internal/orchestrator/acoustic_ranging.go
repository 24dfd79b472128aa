package orchestrator

import (
	"context"
	"time"

	"github.com/senseye-project/senseye/internal/acoustic"
	"github.com/senseye-project/senseye/internal/fusion"
	"github.com/senseye-project/senseye/internal/protocol"
	"github.com/senseye-project/senseye/internal/scanner"
)

// acousticPingDelay is how long a peer waits between acknowledging a ping
// request and actually emitting its chirp, giving this node's recording a
// known head start to key its matched filter against.
const acousticPingDelay = 200 * time.Millisecond

// acousticPingTimeout bounds how long emitting a requested chirp is allowed
// to take before giving up.
const acousticPingTimeout = 5 * time.Second

// maxAcousticPathSeconds caps how long a peer-ranging recording listens for
// the expected chirp, matching the one-way time-of-flight ceiling acoustic
// ranging rejects beyond (see fusion.AcousticTOFFromRoundTrip).
const maxAcousticPathSeconds = 0.2

// onAcousticPingRequest answers a peer's request to hear this node's
// identification chirp: playback happens on its own goroutine after the
// requested delay so the pong acknowledgement isn't held up waiting for it.
func (o *Orchestrator) onAcousticPingRequest(req protocol.AcousticPingRequest) (bool, string) {
	if o.echo == nil {
		return false, "acoustic disabled"
	}

	params := acoustic.Params{
		FreqStart:  req.FreqStart,
		FreqEnd:    req.FreqEnd,
		Duration:   req.ChirpDuration,
		SampleRate: req.SampleRate,
	}
	delay := time.Duration(req.DelayS * float64(time.Second))

	go func() {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), acousticPingTimeout)
		defer cancel()
		if err := o.echo.PlayChirp(ctx, params); err != nil {
			o.log.Debug("orchestrator: acoustic ping chirp failed", "err", err)
		}
	}()

	return true, ""
}

// acousticPeerRangingDue reports whether enough time has passed since the
// last peer-ranging sweep per the configured acoustic interval.
func (o *Orchestrator) acousticPeerRangingDue(now time.Time) bool {
	if o.lastAcousticPeerRangeAt.IsZero() {
		return true
	}
	return now.Sub(o.lastAcousticPeerRangeAt) >= o.cfg.AcousticInterval()
}

// rangeAcousticPeers measures a time-of-flight distance to every connected
// peer concurrently, returning one acoustic Observation per peer that
// produced a usable measurement.
func (o *Orchestrator) rangeAcousticPeers(ctx context.Context) []scanner.Observation {
	peers := o.mesh.Peers()
	if len(peers) == 0 {
		return nil
	}

	type rangeResult struct {
		obs scanner.Observation
		ok  bool
	}
	results := make(chan rangeResult, len(peers))
	for _, peerID := range peers {
		go func(peerID string) {
			obs, ok := o.measurePeerAcousticTOF(ctx, peerID)
			results <- rangeResult{obs, ok}
		}(peerID)
	}

	out := make([]scanner.Observation, 0, len(peers))
	for range peers {
		r := <-results
		if r.ok {
			out = append(out, r.obs)
		}
	}
	return out
}

// measurePeerAcousticTOF asks peerID to emit its identification chirp,
// records concurrently with the request so the recording is already running
// when the chirp arrives, and locates the chirp in the recording with a
// matched filter keyed to peerID's deterministic channel.
//
// The round trip from request to detected arrival is fed to
// AcousticTOFFromRoundTrip alongside the peer's chirp delay, the same
// formula echo ranging uses: this treats the request's network latency and
// the chirp's acoustic travel time as roughly symmetric, which holds well
// enough indoors since a LAN round trip is orders of magnitude faster than
// sound.
func (o *Orchestrator) measurePeerAcousticTOF(ctx context.Context, peerID string) (scanner.Observation, bool) {
	params := acoustic.ChirpParamsFor(peerID, o.cfg.AcousticChirpDuration, o.cfg.AcousticSampleRate)
	template := acoustic.GenerateChirp(params)

	listenSeconds := acousticPingDelay.Seconds() + params.Duration + maxAcousticPathSeconds

	type recording struct {
		samples []float64
		err     error
	}
	recCh := make(chan recording, 1)
	recordStartedAt := time.Now()
	go func() {
		samples, err := o.echo.ListenForChirp(ctx, listenSeconds, params.SampleRate)
		recCh <- recording{samples, err}
	}()

	requestSentAt := time.Now()
	resp, err := o.mesh.RequestAcousticPing(ctx, peerID, acousticPingDelay, params.SampleRate, params.FreqStart, params.FreqEnd, params.Duration)
	if err != nil || !resp.OK {
		<-recCh
		return scanner.Observation{}, false
	}

	rec := <-recCh
	if rec.err != nil || len(rec.samples) == 0 {
		return scanner.Observation{}, false
	}

	correlation := acoustic.MatchedFilter(rec.samples, template)
	peakIdx, ok := acoustic.FindPeakTOF(correlation, 0)
	if !ok {
		return scanner.Observation{}, false
	}

	arrivalAt := recordStartedAt.Add(time.Duration(float64(peakIdx) / float64(params.SampleRate) * float64(time.Second)))
	roundTrip := arrivalAt.Sub(requestSentAt).Seconds()

	tof, ok := fusion.AcousticTOFFromRoundTrip(roundTrip, acousticPingDelay.Seconds())
	if !ok {
		return scanner.Observation{}, false
	}

	distance := acoustic.TofToDistance(tof)
	return scanner.Observation{
		DeviceID:   peerID,
		Timestamp:  arrivalAt,
		SignalType: scanner.SignalAcoustic,
		Metadata:   scanner.Metadata{DistanceM: &distance, TofS: &tof},
	}, true
}
