package acoustic

import "context"

// job is one unit of work handed to the audio worker goroutine.
type job struct {
	run  func(AudioBackend) (any, error)
	resp chan<- result
}

type result struct {
	value any
	err   error
}

// Worker serializes all access to an AudioBackend behind a single
// goroutine. Speaker and microphone hardware is usually half-duplex and
// never safe for concurrent playback/recording, so every caller — the
// orchestrator's own ranging pass, an incoming acoustic-ping request, a
// calibration sweep — submits through this one channel instead of touching
// the backend directly.
type Worker struct {
	backend AudioBackend
	jobs    chan job
	done    chan struct{}
}

// NewWorker starts a background goroutine driving backend. Call Stop to
// shut it down.
func NewWorker(backend AudioBackend) *Worker {
	w := &Worker{
		backend: backend,
		jobs:    make(chan job),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case j := <-w.jobs:
			v, err := j.run(w.backend)
			j.resp <- result{value: v, err: err}
		case <-w.done:
			return
		}
	}
}

// Stop halts the worker goroutine and closes the underlying backend.
func (w *Worker) Stop() error {
	close(w.done)
	return w.backend.Close()
}

// PlayChirp emits params' chirp waveform on the worker goroutine, blocking
// the caller until playback finishes.
func (w *Worker) PlayChirp(ctx context.Context, params Params) error {
	_, err := w.submit(ctx, func(b AudioBackend) (any, error) {
		samples := GenerateChirp(params)
		return nil, b.Play(ctx, samples, params.SampleRate)
	})
	return err
}

// ListenForChirp records durationSeconds of audio at sampleRate on the
// worker goroutine and returns the raw samples.
func (w *Worker) ListenForChirp(ctx context.Context, durationSeconds float64, sampleRate int) ([]float64, error) {
	v, err := w.submit(ctx, func(b AudioBackend) (any, error) {
		return b.Record(ctx, durationSeconds, sampleRate)
	})
	if err != nil {
		return nil, err
	}
	samples, _ := v.([]float64)
	return samples, nil
}

func (w *Worker) submit(ctx context.Context, run func(AudioBackend) (any, error)) (any, error) {
	resp := make(chan result, 1)
	select {
	case w.jobs <- job{run: run, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, context.Canceled
	}

	select {
	case r := <-resp:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
