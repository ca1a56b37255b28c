package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(s *appState) {
	tabs := container.NewAppTabs(
		createSensorTab(s),
		createHX711Tab(s),
		createCalibrationTab(s),
		createLevelTab(s),
		createPollTab(s),
		createMockTab(s),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	d := dialog.NewCustom("Settings", "Close", content, s.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// save validates fn on a copy, then applies it under the persister lock and
// writes the file. fn must be idempotent. With reconnect the pipeline is
// rebuilt.
func (s *appState) save(reconnect bool, fn func(*config.Config)) {
	check := *s.cfg
	fn(&check)
	if err := check.Validate(); err != nil {
		dialog.ShowError(err, s.window)
		return
	}
	if err := s.persist.Update(fn); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), s.window)
		return
	}
	if !reconnect {
		return
	}
	wasConnected := s.chain != nil
	s.disconnect()
	s.newMonitor()
	if wasConnected {
		handleConnect(s)
	}
}

func intEntry(v int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(v))
	return e
}

func durationEntry(d time.Duration) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(d.String())
	return e
}

// createSensorTab selects the backend and the serial port.
func createSensorTab(s *appState) *container.TabItem {
	ports, err := device.Ports()
	portOptions := []string{}
	portMap := make(map[string]string)
	if err == nil {
		for _, p := range ports {
			display := p.Name
			if p.Description != "" && p.Description != p.Name {
				display = fmt.Sprintf("%s (%s)", p.Name, p.Description)
			}
			portOptions = append(portOptions, display)
			portMap[display] = p.Name
		}
	}
	current := s.cfg.Serial.Port
	currentDisplay := current
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == current {
			currentDisplay, found = opt, true
			break
		}
	}
	if !found && current != "" {
		portOptions = append(portOptions, current)
		portMap[current] = current
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}
	backendSelect := widget.NewSelect([]string{
		config.BackendSerial, config.BackendGPIOD, config.BackendPeriph, config.BackendMock,
	}, nil)
	backendSelect.SetSelected(s.cfg.Sensor.Backend)
	baudEntry := intEntry(s.cfg.Serial.Baud)
	chipEntry := widget.NewEntry()
	chipEntry.SetText(s.cfg.Sensor.Chip)
	clockEntry := intEntry(s.cfg.Sensor.ClockPin)
	dataEntry := intEntry(s.cfg.Sensor.DataPin)
	clockNameEntry := widget.NewEntry()
	clockNameEntry.SetText(s.cfg.Sensor.ClockName)
	clockNameEntry.SetPlaceHolder("GPIO<pin>")
	dataNameEntry := widget.NewEntry()
	dataNameEntry.SetText(s.cfg.Sensor.DataName)
	dataNameEntry.SetPlaceHolder("GPIO<pin>")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Backend", Widget: backendSelect},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "GPIO Chip", Widget: chipEntry},
			{Text: "Clock Pin", Widget: clockEntry},
			{Text: "Data Pin", Widget: dataEntry},
			{Text: "Clock Pin Name", Widget: clockNameEntry, HintText: "periph only"},
			{Text: "Data Pin Name", Widget: dataNameEntry, HintText: "periph only"},
		},
		OnSubmit: func() {
			s.save(true, func(c *config.Config) {
				if backendSelect.Selected != "" {
					c.Sensor.Backend = backendSelect.Selected
				}
				if portSelect.Selected != "" {
					if p := portMap[portSelect.Selected]; p != "" {
						c.Serial.Port = p
					} else {
						c.Serial.Port = portSelect.Selected
					}
				}
				if v, err := strconv.Atoi(baudEntry.Text); err == nil {
					c.Serial.Baud = v
				}
				c.Sensor.Chip = chipEntry.Text
				if v, err := strconv.Atoi(clockEntry.Text); err == nil {
					c.Sensor.ClockPin = v
				}
				if v, err := strconv.Atoi(dataEntry.Text); err == nil {
					c.Sensor.DataPin = v
				}
				c.Sensor.ClockName = clockNameEntry.Text
				c.Sensor.DataName = dataNameEntry.Text
			})
		},
	}
	return container.NewTabItem("Sensor", form)
}

// createHX711Tab edits the converter and smoothing settings.
func createHX711Tab(s *appState) *container.TabItem {
	gainSelect := widget.NewSelect([]string{"128", "64", "32"}, nil)
	gainSelect.SetSelected(strconv.Itoa(s.cfg.Sensor.Gain))
	samplesSelect := widget.NewSelect([]string{"4", "8", "16", "32", "64", "128"}, nil)
	samplesSelect.SetSelected(strconv.Itoa(s.cfg.Sensor.Samples))
	ignoreLow := widget.NewCheck("Drop lowest sample", nil)
	ignoreLow.SetChecked(s.cfg.Sensor.IgnoreLow)
	ignoreHigh := widget.NewCheck("Drop highest sample", nil)
	ignoreHigh.SetChecked(s.cfg.Sensor.IgnoreHigh)
	exact := widget.NewCheck("Divide by kept samples", nil)
	exact.SetChecked(s.cfg.Sensor.ExactTrimDivisor)
	calFactorEntry := widget.NewEntry()
	calFactorEntry.SetText(strconv.FormatFloat(float64(s.cfg.Sensor.CalFactor), 'g', -1, 32))
	maxDeltaEntry := intEntry(int(s.cfg.Sensor.MaxDelta))
	settleEntry := durationEntry(s.cfg.Sensor.Settle)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Gain", Widget: gainSelect},
			{Text: "Samples", Widget: samplesSelect},
			{Text: "Trim", Widget: container.NewVBox(ignoreLow, ignoreHigh, exact)},
			{Text: "Calibration Factor", Widget: calFactorEntry},
			{Text: "Max Jump", Widget: maxDeltaEntry, HintText: "0 is off, or the host default on gpiod and periph"},
			{Text: "Settle Time", Widget: settleEntry},
		},
		OnSubmit: func() {
			s.save(true, func(c *config.Config) {
				if v, err := strconv.Atoi(gainSelect.Selected); err == nil {
					c.Sensor.Gain = v
				}
				if v, err := strconv.Atoi(samplesSelect.Selected); err == nil {
					c.Sensor.Samples = v
				}
				c.Sensor.IgnoreLow = ignoreLow.Checked
				c.Sensor.IgnoreHigh = ignoreHigh.Checked
				c.Sensor.ExactTrimDivisor = exact.Checked
				if v, err := strconv.ParseFloat(calFactorEntry.Text, 32); err == nil {
					c.Sensor.CalFactor = float32(v)
				}
				if v, err := strconv.Atoi(maxDeltaEntry.Text); err == nil {
					c.Sensor.MaxDelta = int32(v)
				}
				if v, err := time.ParseDuration(settleEntry.Text); err == nil {
					c.Sensor.Settle = v
				}
			})
		},
	}
	return container.NewTabItem("HX711", form)
}

// createCalibrationTab edits the stability criteria.
func createCalibrationTab(s *appState) *container.TabItem {
	toleranceEntry := intEntry(int(s.cfg.Calibration.Tolerance))
	minStableEntry := durationEntry(s.cfg.Calibration.MinStable)
	hold := widget.NewCheck("Wait for continue after the empty point", nil)
	hold.SetChecked(s.cfg.Calibration.HoldBetweenSteps)
	points := widget.NewLabel(fmt.Sprintf("Empty %d, full %d", s.cfg.Calibration.Empty, s.cfg.Calibration.Full))
	if !s.cfg.Calibration.Stable {
		points.SetText("Not calibrated")
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Tolerance", Widget: toleranceEntry},
			{Text: "Min Stable", Widget: minStableEntry},
			{Text: "Hold", Widget: hold},
			{Text: "Reference Points", Widget: points},
		},
		OnSubmit: func() {
			s.save(true, func(c *config.Config) {
				if v, err := strconv.Atoi(toleranceEntry.Text); err == nil {
					c.Calibration.Tolerance = int32(v)
				}
				if v, err := time.ParseDuration(minStableEntry.Text); err == nil {
					c.Calibration.MinStable = v
				}
				c.Calibration.HoldBetweenSteps = hold.Checked
			})
		},
	}
	return container.NewTabItem("Calibration", form)
}

// createLevelTab edits the level tracker and the container stock. A stock
// change applies immediately.
func createLevelTab(s *appState) *container.TabItem {
	litersEntry := widget.NewEntry()
	litersEntry.SetText(strconv.FormatFloat(float64(s.cfg.Level.FullLiters), 'f', -1, 32))
	divisionsEntry := intEntry(s.cfg.Level.Divisions)
	staticEntry := intEntry(s.cfg.Level.StaticCount)
	toleranceEntry := intEntry(int(s.cfg.Level.Tolerance))
	stockEntry := intEntry(s.cfg.Calibration.Stock)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Container (L)", Widget: litersEntry},
			{Text: "Divisions per Liter", Widget: divisionsEntry},
			{Text: "Static Count", Widget: staticEntry},
			{Text: "Steady Tolerance", Widget: toleranceEntry},
			{Text: "Spare Containers", Widget: stockEntry},
		},
		OnSubmit: func() {
			var (
				old     = s.cfg.Level
				stock   = s.cfg.Calibration.Stock
				changed bool
			)
			s.save(false, func(c *config.Config) {
				if v, err := strconv.ParseFloat(litersEntry.Text, 32); err == nil {
					c.Level.FullLiters = float32(v)
				}
				if v, err := strconv.Atoi(divisionsEntry.Text); err == nil {
					c.Level.Divisions = v
				}
				if v, err := strconv.Atoi(staticEntry.Text); err == nil {
					c.Level.StaticCount = v
				}
				if v, err := strconv.Atoi(toleranceEntry.Text); err == nil {
					c.Level.Tolerance = int32(v)
				}
				if v, err := strconv.Atoi(stockEntry.Text); err == nil {
					stock = v
					c.Calibration.Stock = v
				}
				changed = c.Level != old
			})
			if changed {
				s.save(true, func(*config.Config) {})
				return
			}
			s.monitor.SetStock(stock)
		},
	}
	return container.NewTabItem("Level", form)
}

// createPollTab edits the acquisition cadence.
func createPollTab(s *appState) *container.TabItem {
	intervalEntry := durationEntry(s.cfg.Poll.Interval)
	windowEntry := durationEntry(s.cfg.Poll.Window)
	averageEntry := intEntry(s.cfg.Poll.AverageSamples)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Poll Interval", Widget: intervalEntry},
			{Text: "Display Window", Widget: windowEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageEntry},
		},
		OnSubmit: func() {
			s.save(true, func(c *config.Config) {
				if v, err := time.ParseDuration(intervalEntry.Text); err == nil {
					c.Poll.Interval = v
				}
				if v, err := time.ParseDuration(windowEntry.Text); err == nil {
					c.Poll.Window = v
				}
				if v, err := strconv.Atoi(averageEntry.Text); err == nil {
					c.Poll.AverageSamples = v
				}
			})
			s.scopeWidget.SetWindow(s.cfg.Poll.Window)
		},
	}
	return container.NewTabItem("Poll", form)
}

// createMockTab shapes the simulated load.
func createMockTab(s *appState) *container.TabItem {
	platformEntry := intEntry(int(s.cfg.Mock.Platform))
	bottleEntry := intEntry(int(s.cfg.Mock.Bottle))
	liquidEntry := intEntry(int(s.cfg.Mock.Liquid))
	noiseEntry := intEntry(int(s.cfg.Mock.Noise))
	periodEntry := durationEntry(s.cfg.Mock.Period)
	rateEntry := durationEntry(s.cfg.Mock.SampleRate)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Platform", Widget: platformEntry},
			{Text: "Empty Container", Widget: bottleEntry},
			{Text: "Liquid", Widget: liquidEntry},
			{Text: "Noise", Widget: noiseEntry},
			{Text: "Cycle Period", Widget: periodEntry},
			{Text: "Sample Rate", Widget: rateEntry},
		},
		OnSubmit: func() {
			s.save(s.cfg.Sensor.Backend == config.BackendMock, func(c *config.Config) {
				if v, err := strconv.Atoi(platformEntry.Text); err == nil {
					c.Mock.Platform = int32(v)
				}
				if v, err := strconv.Atoi(bottleEntry.Text); err == nil {
					c.Mock.Bottle = int32(v)
				}
				if v, err := strconv.Atoi(liquidEntry.Text); err == nil {
					c.Mock.Liquid = int32(v)
				}
				if v, err := strconv.Atoi(noiseEntry.Text); err == nil {
					c.Mock.Noise = int32(v)
				}
				if v, err := time.ParseDuration(periodEntry.Text); err == nil {
					c.Mock.Period = v
				}
				if v, err := time.ParseDuration(rateEntry.Text); err == nil {
					c.Mock.SampleRate = v
				}
			})
		},
	}
	return container.NewTabItem("Mock", form)
}
