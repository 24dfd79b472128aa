package acoustic

import "context"

// AudioBackend abstracts the physical speaker/microphone so the orchestrator
// and tests can run without real hardware. A concrete implementation lives
// in audio_portaudio.go behind the portaudio build tag.
type AudioBackend interface {
	// Play emits samples at sampleRate and blocks until playback completes
	// or ctx is cancelled.
	Play(ctx context.Context, samples []float64, sampleRate int) error

	// Record captures durationSeconds of audio at sampleRate and returns the
	// samples, blocking until the recording completes or ctx is cancelled.
	Record(ctx context.Context, durationSeconds float64, sampleRate int) ([]float64, error)

	// Close releases any hardware resources the backend holds.
	Close() error
}

// NullBackend is an AudioBackend that does nothing: Play returns
// immediately and Record yields silence. It is the default when no audio
// hardware is configured, letting the rest of the pipeline run on nodes
// without a speaker or microphone.
type NullBackend struct{}

// Play implements AudioBackend.
func (NullBackend) Play(ctx context.Context, samples []float64, sampleRate int) error {
	return ctx.Err()
}

// Record implements AudioBackend.
func (NullBackend) Record(ctx context.Context, durationSeconds float64, sampleRate int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int(durationSeconds * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	return make([]float64, n), nil
}

// Close implements AudioBackend.
func (NullBackend) Close() error { return nil }
