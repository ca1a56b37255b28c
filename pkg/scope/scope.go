// Package scope provides a Fyne widget plotting the load cell trace together
// with the calibrated empty and full reference levels.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golcm/pkg/calibration"
	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/monitor"
	"github.com/itohio/golcm/pkg/reading"
)

const defaultMaxPoints = 1000

// ScopeWidget displays the reading window of a monitor.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	mu         sync.RWMutex
	display    []reading.Reading // downsampled, reused between updates
	points     level.Calibration
	calibrated bool
	current    level.Report
	step       string

	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a scope showing at least window worth of time.
func New(window time.Duration) *ScopeWidget {
	s := &ScopeWidget{
		window:           window,
		display:          make([]reading.Reading, 0, defaultMaxPoints),
		maxDisplayPoints: defaultMaxPoints,
	}
	s.yMin, s.yMax, s.xMin, s.xMax = bounds(nil, level.Calibration{}, false, window, time.Now())
	s.ExtendBaseWidget(s)
	return s
}

// UpdateData replaces the plotted state. Call it on the Fyne goroutine,
// e.g. through fyne.Do.
func (s *ScopeWidget) UpdateData(st monitor.State) {
	s.mu.Lock()
	s.display = reading.Downsample(s.display, st.Readings, s.maxDisplayPoints)
	s.points = st.Points
	s.calibrated = st.Calibrated
	s.current = st.Level
	s.step = ""
	if st.Calibration.Step != calibration.Idle {
		s.step = st.Calibration.Step.String()
	}
	s.yMin, s.yMax, s.xMin, s.xMax = bounds(s.display, s.points, s.calibrated, s.window, time.Now())
	s.mu.Unlock()

	s.Refresh()
}

// SetWindow changes the minimum time span shown.
func (s *ScopeWidget) SetWindow(window time.Duration) {
	s.mu.Lock()
	s.window = window
	s.mu.Unlock()
}

// bounds auto-scales the axes to the readings and, when calibrated, to both
// reference points. The time axis spans at least window.
func bounds(rs []reading.Reading, cal level.Calibration, calibrated bool, window time.Duration, now time.Time) (yMin, yMax float64, xMin, xMax time.Time) {
	if len(rs) == 0 {
		xMin, xMax = now, now.Add(window)
		if !calibrated {
			return 0, 1, xMin, xMax
		}
	} else {
		xMin, xMax = rs[0].Timestamp, rs[len(rs)-1].Timestamp
		if xMax.Sub(xMin) < window {
			xMax = xMin.Add(window)
		}
	}

	first := true
	grow := func(v float64) {
		if first {
			yMin, yMax, first = v, v, false
			return
		}
		yMin, yMax = min(yMin, v), max(yMax, v)
	}
	for _, r := range rs {
		grow(float64(r.Raw))
	}
	if calibrated {
		grow(float64(cal.Empty))
		grow(float64(cal.Full))
	}

	span := yMax - yMin
	if span == 0 {
		span = 1
	}
	yMin -= span * 0.1
	yMax += span * 0.1
	return yMin, yMax, xMin, xMax
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
