package scope

import (
	"testing"
	"time"

	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/reading"
	"github.com/stretchr/testify/assert"
)

func TestBounds(t *testing.T) {
	now := time.Unix(5000, 0)
	rs := []reading.Reading{
		{Timestamp: now, Raw: 100},
		{Timestamp: now.Add(time.Second), Raw: 300},
		{Timestamp: now.Add(2 * time.Second), Raw: 200},
	}

	t.Run("empty", func(t *testing.T) {
		yMin, yMax, xMin, xMax := bounds(nil, level.Calibration{}, false, time.Minute, now)
		assert.Equal(t, 0.0, yMin)
		assert.Equal(t, 1.0, yMax)
		assert.Equal(t, now, xMin)
		assert.Equal(t, now.Add(time.Minute), xMax)
	})

	t.Run("readings with minimum window", func(t *testing.T) {
		yMin, yMax, xMin, xMax := bounds(rs, level.Calibration{}, false, time.Minute, now)
		assert.InDelta(t, 80, yMin, 1e-9)
		assert.InDelta(t, 320, yMax, 1e-9)
		assert.Equal(t, now, xMin)
		assert.Equal(t, now.Add(time.Minute), xMax)
	})

	t.Run("window shorter than readings", func(t *testing.T) {
		_, _, _, xMax := bounds(rs, level.Calibration{}, false, time.Second, now)
		assert.Equal(t, now.Add(2*time.Second), xMax)
	})

	t.Run("reference points widen the range", func(t *testing.T) {
		yMin, yMax, _, _ := bounds(rs, level.Calibration{Empty: 0, Full: 1000}, true, time.Minute, now)
		assert.InDelta(t, -100, yMin, 1e-9)
		assert.InDelta(t, 1100, yMax, 1e-9)
	})

	t.Run("flat trace", func(t *testing.T) {
		yMin, yMax, _, _ := bounds(rs[:1], level.Calibration{}, false, time.Minute, now)
		assert.InDelta(t, 99.9, yMin, 1e-9)
		assert.InDelta(t, 100.1, yMax, 1e-9)
	})
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "0.50s", formatTime(500*time.Millisecond))
	assert.Equal(t, "12.0s", formatTime(12*time.Second))
	assert.Equal(t, "2.5m", formatTime(150*time.Second))
}
