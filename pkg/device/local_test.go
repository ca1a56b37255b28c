package device

import (
	"testing"
	"time"

	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/hx711/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closingChip counts Close calls on top of the simulator.
type closingChip struct {
	*sim.Chip
	closes int
}

func (c *closingChip) Close() error {
	c.closes++
	return nil
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func newTestLocal(t *testing.T, opts LocalOptions) (*Local, *closingChip, *stepClock) {
	t.Helper()
	chip := &closingChip{Chip: sim.New(1, 2)}
	clk := &stepClock{now: time.Unix(1000, 0)}
	if opts.Interval == 0 {
		opts.Interval = time.Hour // the loop never ticks; tests call poll directly
	}
	opts.Now = clk.Now
	l, err := NewLocal(chip, hx711.Config{Clock: 1, Data: 2, Samples: 4}, opts)
	require.NoError(t, err)
	return l, chip, clk
}

// pollN advances the clock by step before each poll and collects samples.
func pollN(l *Local, clk *stepClock, step time.Duration, n int) []RawSample {
	var out []RawSample
	for range n {
		clk.now = clk.now.Add(step)
		if s, ok := l.poll(); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestNewLocal_Validation(t *testing.T) {
	_, err := NewLocal(sim.New(1, 2), hx711.Config{Clock: 1, Data: 2}, LocalOptions{})
	assert.Error(t, err, "zero interval")

	_, err = NewLocal(sim.New(1, 2), hx711.Config{Clock: 1, Data: 2, Samples: 5}, LocalOptions{Interval: time.Second})
	assert.ErrorIs(t, err, hx711.ErrInvalidCapacity)
}

func TestLocal_StartsWithTare(t *testing.T) {
	l, chip, clk := newTestLocal(t, LocalOptions{})
	chip.SetLevel(2500)

	// Settling takes 400ms, the tare another four samples.
	samples := pollN(l, clk, 100*time.Millisecond, 8)
	assert.Empty(t, samples)

	samples = pollN(l, clk, 100*time.Millisecond, 1)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].TareDone)
	assert.True(t, samples[0].Primed)
	assert.Equal(t, int32(0), samples[0].Raw)
	assert.Equal(t, int64(4*(0x800000+2500)), samples[0].TareOffset)

	chip.SetLevel(2900)
	samples = pollN(l, clk, 100*time.Millisecond, 4)
	require.Len(t, samples, 4)
	assert.Equal(t, int32(400), samples[3].Raw)
	assert.False(t, samples[3].TareDone)
}

func TestLocal_TareCommand(t *testing.T) {
	l, chip, clk := newTestLocal(t, LocalOptions{RestoreTare: true, TareOffset: 4 * 0x800000})
	assert.ErrorIs(t, l.Tare(), ErrNotConnected)

	require.NoError(t, l.Connect())
	defer l.Close()

	chip.SetLevel(100)
	samples := pollN(l, clk, 100*time.Millisecond, 4)
	require.Len(t, samples, 4, "restored tare skips the start sequence")
	assert.Equal(t, int32(100), samples[3].Raw)

	require.NoError(t, l.Tare())
	samples = pollN(l, clk, 100*time.Millisecond, 4)
	require.Len(t, samples, 4)
	assert.False(t, samples[2].TareDone)
	assert.True(t, samples[3].TareDone)
	assert.Equal(t, int32(0), samples[3].Raw)
}

func TestLocal_PowerCommands(t *testing.T) {
	l, _, _ := newTestLocal(t, LocalOptions{RestoreTare: true})
	assert.ErrorIs(t, l.PowerDown(), ErrNotConnected)
	assert.ErrorIs(t, l.PowerUp(), ErrNotConnected)

	require.NoError(t, l.Connect())
	require.NoError(t, l.PowerDown())
	require.NoError(t, l.PowerUp())
	require.NoError(t, l.Close())
}

func TestLocal_CloseReleasesDriver(t *testing.T) {
	l, chip, _ := newTestLocal(t, LocalOptions{})
	require.NoError(t, l.Connect())
	assert.True(t, l.IsConnected())

	require.NoError(t, l.Close())
	assert.False(t, l.IsConnected())
	assert.Equal(t, 1, chip.closes)
	_, ok := <-l.Samples()
	assert.False(t, ok)

	require.NoError(t, l.Close(), "second close is a no-op")
	assert.Equal(t, 1, chip.closes)
	assert.ErrorIs(t, l.Connect(), ErrClosed)
}

func TestLocal_Loop(t *testing.T) {
	chip := sim.New(1, 2)
	chip.SetLevel(10)
	l, err := NewLocal(chip, hx711.Config{Clock: 1, Data: 2, Samples: 4}, LocalOptions{
		Interval:    time.Millisecond,
		RestoreTare: true,
	})
	require.NoError(t, err)
	require.NoError(t, l.Connect())

	for range 5 {
		select {
		case s := <-l.Samples():
			assert.NotZero(t, s.Timestamp)
		case <-time.After(5 * time.Second):
			t.Fatal("no samples from poll loop")
		}
	}
	require.NoError(t, l.Close())
}

func TestOpen_Backends(t *testing.T) {
	cfg := config.Default()

	dev, err := Open(cfg)
	require.NoError(t, err)
	require.IsType(t, &Serial{}, dev)
	assert.False(t, dev.(*Serial).restoring)

	cfg.Calibration.Stable = true
	cfg.Calibration.TareOffset = 5150
	dev, err = Open(cfg)
	require.NoError(t, err)
	s := dev.(*Serial)
	assert.True(t, s.restoring)
	assert.Equal(t, int64(5150), s.restore)

	cfg.Sensor.Backend = config.BackendMock
	dev, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, dev)
	require.NoError(t, dev.Close())

	cfg.Sensor.Gain = 7
	_, err = Open(cfg)
	assert.ErrorIs(t, err, hx711.ErrInvalidGain)
}

type fakeNamer map[hx711.Pin]string

func (f fakeNamer) Alias(pin hx711.Pin, name string) { f[pin] = name }

func TestNamePins(t *testing.T) {
	s := config.Default().Sensor
	f := fakeNamer{}
	namePins(f, s)
	assert.Empty(t, f, "numbers resolve to GPIO<n>")

	s.ClockName = "P1_29"
	s.DataName = "P1_31"
	namePins(f, s)
	assert.Equal(t, fakeNamer{5: "P1_29", 6: "P1_31"}, f)
}
