package hx711_test

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/hx711/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmoothedValue_NoTrimming(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4, CalFactor: 1})
	feed(t, dev, chip, 10, 20, 30, 40)

	assert.True(t, dev.Primed())
	assert.Equal(t, int64(100), dev.SmoothedSum())
	assert.Equal(t, int64(100), dev.LastSmoothed())
	assert.Equal(t, int32(25), dev.Raw())
	assert.Equal(t, float32(25.0), dev.Value())
}

func TestSmoothedValue_Trimming(t *testing.T) {
	tests := []struct {
		name    string
		cfg     hx711.Config
		wantSum int64
		wantRaw int32
	}{
		{
			name:    "ignore high keeps capacity shift",
			cfg:     hx711.Config{Samples: 4, IgnoreHigh: true},
			wantSum: 60,
			wantRaw: 15,
		},
		{
			name:    "ignore low keeps capacity shift",
			cfg:     hx711.Config{Samples: 4, IgnoreLow: true},
			wantSum: 90,
			wantRaw: 22,
		},
		{
			name:    "ignore high with exact divisor",
			cfg:     hx711.Config{Samples: 4, IgnoreHigh: true, ExactTrimDivisor: true},
			wantSum: 60,
			wantRaw: 20,
		},
		{
			name:    "ignore both with exact divisor",
			cfg:     hx711.Config{Samples: 4, IgnoreLow: true, IgnoreHigh: true, ExactTrimDivisor: true},
			wantSum: 50,
			wantRaw: 25,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, chip := newDevice(t, tt.cfg)
			feed(t, dev, chip, 10, 20, 30, 40)
			assert.Equal(t, tt.wantSum, dev.SmoothedSum())
			assert.Equal(t, tt.wantRaw, dev.Raw())
		})
	}
}

func TestSmoothedValue_EndToEnd(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Gain: hx711.Gain128, Samples: 8, CalFactor: 100})
	feed(t, dev, chip, 1_000_000, 1_000_000, 1_000_000, 1_000_000, 1_000_000, 1_000_000, 1_000_000, 1_000_000)

	assert.Equal(t, 25, chip.LastPulses())
	assert.Equal(t, int64(8_000_000), dev.SmoothedSum())
	assert.Equal(t, float32(10_000.0), dev.Value())
}

func TestSmoothedValue_NegativeAfterTare(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4, CalFactor: 2})
	feed(t, dev, chip, 10, 20, 30, 40)

	dev.SetTareOffset(400)
	assert.Equal(t, int32(-75), dev.Raw())
	assert.Equal(t, float32(-37.5), dev.Value())
}

func TestSetCalFactor(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	feed(t, dev, chip, 40, 40, 40, 40)

	dev.SetCalFactor(4)
	assert.Equal(t, float32(10), dev.Value())

	// Zero would divide by zero and is ignored.
	dev.SetCalFactor(0)
	assert.Equal(t, float32(10), dev.Value())
}

func TestUpdate_Statuses(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})

	chip.SetBusy(1)
	st, err := dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusIdle, st)

	chip.PushCorrected(10)
	st, err = dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusSample, st)

	chip.PushCorrected(0)
	st, err = dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusRejected, st)
}

func TestUpdate_TareWindow(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	feed(t, dev, chip, 1, 2, 3)

	dev.TareNoDelay()
	assert.True(t, dev.TarePending())
	assert.False(t, dev.TareDone())

	chip.PushCorrected(10, 20, 30, 40)
	want := []hx711.Status{hx711.StatusSample, hx711.StatusSample, hx711.StatusSample, hx711.StatusTared}
	for i, w := range want {
		st, err := dev.Update()
		require.NoError(t, err)
		assert.Equal(t, w, st, "poll %d", i)
	}

	assert.Equal(t, int64(100), dev.TareOffset())
	assert.False(t, dev.TarePending())
	assert.True(t, dev.TareDone())
	assert.False(t, dev.TareDone(), "completion flag is cleared on read")
	assert.Equal(t, int32(0), dev.Raw())
}

func TestUpdate_TareIgnoresNotReadyPolls(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	dev.TareNoDelay()

	chip.PushCorrected(10, 20)
	for range 2 {
		_, err := dev.Update()
		require.NoError(t, err)
	}

	chip.SetBusy(3)
	for range 3 {
		st, err := dev.Update()
		require.NoError(t, err)
		assert.Equal(t, hx711.StatusIdle, st)
	}

	chip.PushCorrected(30, 40)
	st, err := dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusSample, st)
	st, err = dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusTared, st)
	assert.Equal(t, int64(100), dev.TareOffset())
}

func TestUpdate_RejectedSampleRestartsTare(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	dev.TareNoDelay()

	chip.PushCorrected(10, 20, 0, 30, 40, 50)
	statuses := make([]hx711.Status, 0, 6)
	for range 6 {
		st, err := dev.Update()
		require.NoError(t, err)
		statuses = append(statuses, st)
	}
	assert.Equal(t, []hx711.Status{
		hx711.StatusSample, hx711.StatusSample, hx711.StatusRejected,
		hx711.StatusSample, hx711.StatusSample, hx711.StatusSample,
	}, statuses)
	assert.True(t, dev.TarePending())
	assert.Equal(t, int64(0), dev.TareOffset())

	chip.PushCorrected(60)
	st, err := dev.Update()
	require.NoError(t, err)
	assert.Equal(t, hx711.StatusTared, st)
	assert.Equal(t, int64(30+40+50+60), dev.TareOffset())
}

func TestTare_Blocking(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 8}, sim.WithBusyPolls(2))
	chip.SetLevel(1000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, dev.Tare(ctx))
	first := dev.TareOffset()
	assert.Equal(t, int64(8*(0x800000+1000)), first)
	assert.Equal(t, int32(0), dev.Raw())
	assert.False(t, dev.TareDone(), "blocking tare consumes its completion flag")

	require.NoError(t, dev.Tare(ctx))
	assert.InDelta(t, first, dev.TareOffset(), 1)
}

func TestTare_OffsetFollowsLoad(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4, CalFactor: 10})
	ctx := context.Background()

	chip.SetLevel(500)
	require.NoError(t, dev.Tare(ctx))

	chip.SetLevel(800)
	for range 4 {
		_, err := dev.Update()
		require.NoError(t, err)
	}
	assert.Equal(t, int32(300), dev.Raw())
	assert.Equal(t, float32(30), dev.Value())
}

func TestTare_ContextCancelled(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	dev.SetTareOffset(77)
	chip.SetBusy(1 << 30)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := dev.Tare(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, dev.TarePending())
	assert.Equal(t, int64(77), dev.TareOffset())
}

func TestTare_SaturatedInputHonoursContext(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	dev.SetTareOffset(77)
	// Below range the chip outputs 0x800000, which sign-corrects to a
	// rejected zero code.
	chip.SetLevel(-0x800000)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- dev.Tare(ctx) }()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Tare did not return after the deadline")
	}
	assert.False(t, dev.TarePending())
	assert.Equal(t, int64(77), dev.TareOffset())
}

func TestStart_SaturatedInputHonoursContext(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	chip.SetLevel(-0x800000)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- dev.Start(ctx, 0) }()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after the deadline")
	}
}

func TestStart(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4}, sim.WithBusyPolls(1))
	chip.SetLevel(-200)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	begin := time.Now()
	require.NoError(t, dev.Start(ctx, 0))
	assert.GreaterOrEqual(t, time.Since(begin), hx711.StartSettleExtra)
	assert.Equal(t, int64(4*(0x800000-200)), dev.TareOffset())
	assert.True(t, dev.Primed())
}

func TestStartNoDelay(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	chip.SetLevel(50)

	base := time.Unix(100, 0)
	done := false
	polls := 0
	for ; polls < 20 && !done; polls++ {
		var err error
		done, err = dev.StartNoDelay(base.Add(time.Duration(polls)*100*time.Millisecond), 0)
		require.NoError(t, err)
	}

	require.True(t, done)
	// Tare is armed at 400ms and needs four more samples.
	assert.Equal(t, 9, polls)
	assert.Equal(t, int64(4*(0x800000+50)), dev.TareOffset())

	done, err := dev.StartNoDelay(base.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStartNoDelay_RestoredOffsetSkipsTare(t *testing.T) {
	dev, chip := newDevice(t, hx711.Config{Samples: 4})
	chip.SetLevel(50)

	base := time.Unix(100, 0)
	for i := range 6 {
		_, err := dev.StartNoDelay(base.Add(time.Duration(i)*100*time.Millisecond), 0)
		require.NoError(t, err)
	}
	require.True(t, dev.TarePending())

	dev.SetTareOffset(1234)
	assert.False(t, dev.TarePending())

	for i := range 10 {
		done, err := dev.StartNoDelay(base.Add(time.Second+time.Duration(i)*100*time.Millisecond), 0)
		require.NoError(t, err)
		assert.True(t, done)
	}
	assert.False(t, dev.TareDone())
	assert.Equal(t, int64(1234), dev.TareOffset())
}
