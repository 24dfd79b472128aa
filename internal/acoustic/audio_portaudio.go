//go:build portaudio

package acoustic

import (
	"context"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend drives a real speaker/microphone pair via PortAudio. It
// is only compiled in with the "portaudio" build tag, since it links
// against the system PortAudio library and most development and test
// environments don't have it installed.
type PortAudioBackend struct {
	channels int
}

// NewPortAudioBackend initializes the PortAudio library and returns a
// backend using the default input/output devices.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("acoustic: portaudio init: %w", err)
	}
	return &PortAudioBackend{channels: 1}, nil
}

// Play implements AudioBackend by streaming samples out the default output
// device.
func (p *PortAudioBackend) Play(ctx context.Context, samples []float64, sampleRate int) error {
	buf := make([]float32, len(samples))
	for i, s := range samples {
		buf[i] = float32(s)
	}

	stream, err := portaudio.OpenDefaultStream(0, p.channels, float64(sampleRate), len(buf), &buf)
	if err != nil {
		return fmt.Errorf("acoustic: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("acoustic: start output stream: %w", err)
	}
	defer stream.Stop()

	if err := stream.Write(); err != nil {
		return fmt.Errorf("acoustic: write output stream: %w", err)
	}
	return ctx.Err()
}

// Record implements AudioBackend by reading durationSeconds of audio from
// the default input device.
func (p *PortAudioBackend) Record(ctx context.Context, durationSeconds float64, sampleRate int) ([]float64, error) {
	n := int(durationSeconds * float64(sampleRate))
	buf := make([]float32, n)

	stream, err := portaudio.OpenDefaultStream(p.channels, 0, float64(sampleRate), len(buf), &buf)
	if err != nil {
		return nil, fmt.Errorf("acoustic: open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("acoustic: start input stream: %w", err)
	}
	defer stream.Stop()

	deadline := time.Now().Add(time.Duration(durationSeconds*2) * time.Second)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("acoustic: read input stream: %w", err)
		}
		break
	}

	out := make([]float64, len(buf))
	for i, s := range buf {
		out[i] = float64(s)
	}
	return out, nil
}

// Close implements AudioBackend by terminating the PortAudio library.
func (p *PortAudioBackend) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("acoustic: portaudio terminate: %w", err)
	}
	return nil
}

// NewDefaultBackend returns the AudioBackend this binary was built with.
// Built with the "portaudio" tag, that's a real PortAudio-backed device.
func NewDefaultBackend() (AudioBackend, error) {
	return NewPortAudioBackend()
}
