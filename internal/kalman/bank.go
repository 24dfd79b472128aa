package kalman

import "sync"

// pathKey identifies one directed signal path between an observer and a
// target device or peer.
type pathKey struct {
	sourceID string
	targetID string
}

// Bank lazily creates and owns a Filter1D per (sourceID, targetID) signal
// path, all built with the same Params. It is safe for concurrent use: the
// orchestrator's scan loop and any calibration pass sharing a node's bank
// may call Update from different goroutines.
type Bank struct {
	mu      sync.Mutex
	params  Params
	filters map[pathKey]*Filter1D
}

// NewBank constructs an empty Bank. Every filter it lazily creates uses
// params.
func NewBank(params Params) *Bank {
	return &Bank{
		params:  params,
		filters: map[pathKey]*Filter1D{},
	}
}

// Update filters a raw RSSI observation for the (sourceID, targetID) path,
// creating the underlying filter on first use, and returns the filtered
// estimate plus the innovation.
func (b *Bank) Update(sourceID, targetID string, rssi float64) (filtered, innovation float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pathKey{sourceID: sourceID, targetID: targetID}
	f, ok := b.filters[key]
	if !ok {
		f = NewFilter1D(b.params)
		b.filters[key] = f
	}
	return f.Update(rssi)
}

// State returns the current (rssi, rate) for a path if it has been seen at
// least once.
func (b *Bank) State(sourceID, targetID string) (rssi, rate float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, exists := b.filters[pathKey{sourceID: sourceID, targetID: targetID}]
	if !exists {
		return 0, 0, false
	}
	return f.State()
}

// Len returns the number of distinct signal paths currently tracked.
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.filters)
}
