package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/reading"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	emptyColor = color.RGBA{R: 200, G: 60, B: 60, A: 255}
	fullColor  = color.RGBA{R: 0, G: 100, B: 200, A: 255}
	textColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// plot is the drawing area inside the margins together with the axis ranges.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (p plot) posX(t time.Time) float32 {
	span := p.xMax.Sub(p.xMin).Seconds()
	if span <= 0 {
		return p.x
	}
	return p.x + float32(t.Sub(p.xMin).Seconds()/span)*p.w
}

func (p plot) posY(v float64) float32 {
	return p.y + p.h - float32((v-p.yMin)/(p.yMax-p.yMin))*p.h
}

type scopeRenderer struct {
	scope *ScopeWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds all canvas objects from the widget data.
func (r *scopeRenderer) Refresh() {
	s := r.scope
	s.mu.RLock()
	rs := s.display
	points, calibrated := s.points, s.calibrated
	current, step := s.current, s.step
	p := plot{yMin: s.yMin, yMax: s.yMax, xMin: s.xMin, xMax: s.xMax}
	s.mu.RUnlock()

	size := s.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const marginLeft, marginRight, marginTop, marginBottom = 70, 20, 20, 40
	p.x, p.y = marginLeft, marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom

	r.objects = []fyne.CanvasObject{r.bg}
	r.drawGrid(p)
	if calibrated {
		r.drawReference(p, float64(points.Empty), "empty", emptyColor)
		r.drawReference(p, float64(points.Full), "full", fullColor)
	}
	r.drawTrace(p, rs)
	r.drawStatus(p, calibrated, current, step)
}

func (r *scopeRenderer) drawGrid(p plot) {
	const hLines, vLines = 8, 10
	for i := range hLines + 1 {
		y := p.y + float32(i)*p.h/hLines
		r.line(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), gridColor, 1)

		v := p.yMax - float64(i)*(p.yMax-p.yMin)/hLines
		r.text(fmt.Sprintf("%.0f", v), fyne.NewPos(p.x-5, y-6), labelColor, 10, fyne.TextAlignTrailing)
	}
	span := p.xMax.Sub(p.xMin)
	for i := range vLines + 1 {
		x := p.x + float32(i)*p.w/vLines
		r.line(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), gridColor, 1)

		d := span * time.Duration(i) / vLines
		r.text(formatTime(d), fyne.NewPos(x-20, p.y+p.h+5), labelColor, 10, fyne.TextAlignCenter)
	}
}

// drawReference draws a dashed horizontal line at a calibration point.
func (r *scopeRenderer) drawReference(p plot, v float64, label string, c color.Color) {
	if v < p.yMin || v > p.yMax {
		return
	}
	y := p.posY(v)
	const dash = 8
	for x := p.x; x < p.x+p.w; x += 2 * dash {
		r.line(fyne.NewPos(x, y), fyne.NewPos(min(x+dash, p.x+p.w), y), c, 1)
	}
	r.text(label, fyne.NewPos(p.x+p.w-40, y-14), c, 10, fyne.TextAlignLeading)
}

func (r *scopeRenderer) drawTrace(p plot, rs []reading.Reading) {
	if len(rs) < 2 {
		return
	}
	prev := fyne.NewPos(p.posX(rs[0].Timestamp), p.posY(float64(rs[0].Raw)))
	for _, rd := range rs[1:] {
		cur := fyne.NewPos(p.posX(rd.Timestamp), p.posY(float64(rd.Raw)))
		r.line(prev, cur, traceColor, 1.5)
		prev = cur
	}
}

func (r *scopeRenderer) drawStatus(p plot, calibrated bool, current level.Report, step string) {
	msg := "not calibrated"
	if calibrated {
		msg = fmt.Sprintf("%d%%  %.2f L", current.Percent, current.Liters)
	}
	if step != "" {
		msg += "  calibration: " + step
	}
	r.text(msg, fyne.NewPos(p.x+10, p.y+10), textColor, 12, fyne.TextAlignLeading)
}

func (r *scopeRenderer) line(a, b fyne.Position, c color.Color, width float32) {
	l := canvas.NewLine(c)
	l.Position1, l.Position2 = a, b
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, pos fyne.Position, c color.Color, size float32, align fyne.TextAlign) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *scopeRenderer) Destroy() {}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
