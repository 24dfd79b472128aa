//go:build !portaudio

package acoustic

// NewDefaultBackend returns the AudioBackend this binary was built with.
// Without the "portaudio" build tag (the common case for development,
// tests, and nodes with no speaker/microphone), that's NullBackend.
func NewDefaultBackend() (AudioBackend, error) {
	return NullBackend{}, nil
}
