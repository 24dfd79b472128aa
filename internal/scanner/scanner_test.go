package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc_ImplementsScanner(t *testing.T) {
	want := []Observation{{DeviceID: "aa:bb", RSSI: -55, Timestamp: time.Now(), SignalType: SignalWiFi}}
	var s Scanner = Func(func(ctx context.Context) ([]Observation, error) {
		return want, nil
	})

	got, err := s.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMulti_ConcatenatesAcrossBackends(t *testing.T) {
	wifi := Func(func(ctx context.Context) ([]Observation, error) {
		return []Observation{{DeviceID: "w1", SignalType: SignalWiFi}}, nil
	})
	ble := Func(func(ctx context.Context) ([]Observation, error) {
		return []Observation{{DeviceID: "b1", SignalType: SignalBLE}, {DeviceID: "b2", SignalType: SignalBLE}}, nil
	})

	m := Multi{Scanners: []Scanner{wifi, ble}}

	got, err := m.Scan(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMulti_SkipsFailingBackendButContinues(t *testing.T) {
	var errored Scanner
	failing := Func(func(ctx context.Context) ([]Observation, error) {
		return nil, errors.New("adapter unavailable")
	})
	ok := Func(func(ctx context.Context) ([]Observation, error) {
		return []Observation{{DeviceID: "ok-device"}}, nil
	})

	var reportedErr error
	m := Multi{
		Scanners: []Scanner{failing, ok},
		OnError: func(s Scanner, err error) {
			errored = s
			reportedErr = err
		},
	}

	got, err := m.Scan(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok-device", got[0].DeviceID)
	assert.NotNil(t, errored)
	assert.EqualError(t, reportedErr, "adapter unavailable")
}
