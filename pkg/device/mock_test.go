package device

import (
	"testing"
	"time"

	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLoad_Profile(t *testing.T) {
	cfg := config.MockConfig{
		Platform: 1000,
		Bottle:   200,
		Liquid:   5000,
		Period:   100 * time.Second,
	}

	tests := []struct {
		name string
		at   time.Duration
		want int32
	}{
		{name: "no bottle at start", at: 5 * time.Second, want: 1000},
		{name: "full", at: 20 * time.Second, want: 6200},
		{name: "half drained", at: 52500 * time.Millisecond, want: 3700},
		{name: "empty bottle", at: 80 * time.Second, want: 1200},
		{name: "no bottle before swap", at: 95 * time.Second, want: 1000},
		{name: "next cycle full", at: 125 * time.Second, want: 6200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MockLoad(cfg, tt.at), 1)
		})
	}
}

func TestMockLoad_NoiseIsBounded(t *testing.T) {
	cfg := config.MockConfig{Platform: 500, Noise: 4, Period: time.Minute}
	for i := range 1000 {
		v := MockLoad(cfg, time.Duration(i)*37*time.Millisecond)
		assert.InDelta(t, 500, v, 4)
	}
}

func TestMock_PowerDown(t *testing.T) {
	cfg := config.Default().Mock
	m, err := NewMock(&cfg, hx711.Config{Samples: 4})
	require.NoError(t, err)

	require.NoError(t, m.Connect())
	require.NoError(t, m.PowerDown())
	assert.True(t, m.Chip().PoweredDown())
	require.NoError(t, m.PowerUp())
	assert.False(t, m.Chip().PoweredDown())
	assert.Equal(t, hx711.Gain128, m.Chip().Gain())
	require.NoError(t, m.Close())
}

// TestMock_GracefulShutdown tests that the Mock device closes its samples
// channel when Close() is called.
func TestMock_GracefulShutdown(t *testing.T) {
	cfg := config.Default().Mock
	cfg.SampleRate = 2 * time.Millisecond

	mock, err := NewMock(&cfg, hx711.Config{Samples: 4})
	require.NoError(t, err)
	require.NoError(t, mock.Connect())

	samples := mock.Samples()

	received := 0
	tared := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range samples {
			if received == 0 {
				tared = s.TareDone
			}
			received++
			if received == 3 {
				mock.Close()
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Samples channel did not close within timeout")
	}

	assert.GreaterOrEqual(t, received, 3)
	assert.True(t, tared, "the first sample completes the start tare")
	assert.False(t, mock.IsConnected())

	_, ok := <-samples
	assert.False(t, ok, "Channel should be closed")
}
