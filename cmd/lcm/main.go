// Command lcm is the desktop front end of the load cell monitor.
package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/antongulenko/golib"
	"github.com/itohio/golcm/pkg/calibration"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/monitor"
	"github.com/itohio/golcm/pkg/scope"
	log "github.com/sirupsen/logrus"
)

// updateInterval throttles scope redraws to about 30 FPS.
const updateInterval = 33 * time.Millisecond

func main() {
	var (
		configFile  = flag.String("config", "config.yaml", "Configuration file path")
		port        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		mock        = flag.Bool("mock", false, "Use the simulated sensor instead of the configured backend")
		averageSize = flag.Int("average-samples", -1, "Number of readings to average (0 = disabled, overrides config)")
	)
	golib.RegisterLogFlags()
	flag.Parse()
	golib.ConfigureLogging()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *mock {
		cfg.Sensor.Backend = config.BackendMock
	}
	if *averageSize >= 0 {
		cfg.Poll.AverageSamples = *averageSize
	}

	application := app.NewWithID("com.itohio.golcm")
	window := application.NewWindow("Load Cell Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configFile: *configFile,
		window:     window,
	}
	state.scopeWidget = scope.New(cfg.Poll.Window)
	state.levelLabel = widget.NewLabel("Disconnected")
	state.newMonitor()

	window.SetContent(container.NewBorder(
		createToolbar(state),
		container.NewPadded(state.levelLabel),
		nil,
		nil,
		state.scopeWidget,
	))
	window.SetOnClosed(func() {
		state.disconnect()
	})
	window.ShowAndRun()
}

// appState holds the application state. Fields other than the throttle are
// only touched on the Fyne goroutine.
type appState struct {
	cfg        *config.Config
	configFile string

	monitor *monitor.Monitor
	persist *monitor.Persister
	chain   *monitor.Chain

	window       fyne.Window
	scopeWidget  *scope.ScopeWidget
	levelLabel   *widget.Label
	connectBtn   *widget.Button
	tareBtn      *widget.Button
	calibrateBtn *widget.Button
	continueBtn  *widget.Button
	cancelBtn    *widget.Button

	updateMu       sync.Mutex
	lastUpdateTime time.Time
}

// newMonitor replaces the monitor so that window and calibration settings
// take effect. Only call it while disconnected.
func (s *appState) newMonitor() {
	m := monitor.New(s.cfg)
	s.persist = monitor.Persist(m, s.cfg, s.configFile)

	m.OnUpdate(func(st monitor.State) {
		s.updateMu.Lock()
		now := time.Now()
		skip := now.Sub(s.lastUpdateTime) < updateInterval && st.Calibration.Step != calibration.Done
		if !skip {
			s.lastUpdateTime = now
		}
		s.updateMu.Unlock()
		if skip {
			return
		}
		fyne.Do(func() {
			s.scopeWidget.UpdateData(st)
			s.levelLabel.SetText(describe(st))
			s.updateCalibrationButtons(st.Calibration)
		})
	})
	m.OnCalibrated(func(res calibration.Result) {
		fyne.Do(func() {
			dialog.ShowInformation("Calibration",
				fmt.Sprintf("Calibration complete\nEmpty: %d\nFull: %d", res.Empty, res.Full), s.window)
		})
	})
	m.OnReport(func(rep level.Report) {
		if !rep.BottleSwapped || rep.Stock > 0 {
			return
		}
		fyne.Do(func() {
			dialog.ShowInformation("Stock", "The last spare container is in use", s.window)
		})
	})
	s.monitor = m
}

// describe renders the status line.
func describe(st monitor.State) string {
	var msg string
	switch {
	case !st.Calibrated:
		msg = "Not calibrated"
	case st.Level.Bucket.NoBottle:
		msg = fmt.Sprintf("No container or nearly empty (%d%%)", st.Level.Percent)
	default:
		msg = fmt.Sprintf("Level %d%% (%d ml bucket), %.2f L", st.Level.Percent, st.Level.Bucket.Milliliters, st.Level.Liters)
	}
	if st.Calibrated {
		msg += fmt.Sprintf(", stock %d", st.Level.Stock)
	}
	if !st.Steady {
		msg += ", settling"
	}

	cal := st.Calibration
	switch cal.Step {
	case calibration.AwaitingEmpty:
		msg += fmt.Sprintf(" | Calibration: place the empty container (%s left)", cal.Remaining.Round(time.Second))
	case calibration.AwaitingFull:
		if cal.Held {
			msg += fmt.Sprintf(" | Calibration: empty = %d, load the full container and press continue", cal.Empty)
		} else {
			msg += fmt.Sprintf(" | Calibration: place the full container (%s left)", cal.Remaining.Round(time.Second))
		}
	}
	return msg
}

// createToolbar creates the connect, settings, tare and calibration buttons.
func createToolbar(s *appState) fyne.CanvasObject {
	s.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(s)
	})
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(s)
	})

	s.tareBtn = widget.NewButton("Tare", func() {
		if s.chain == nil {
			return
		}
		if err := s.chain.Device().Tare(); err != nil {
			dialog.ShowError(fmt.Errorf("tare failed: %w", err), s.window)
		}
	})
	s.calibrateBtn = widget.NewButtonWithIcon("Calibrate", theme.MediaRecordIcon(), func() {
		s.monitor.StartCalibration()
		s.continueBtn.Disable()
		s.cancelBtn.Enable()
	})
	s.continueBtn = widget.NewButtonWithIcon("Continue", theme.MediaPlayIcon(), func() {
		s.monitor.ContinueCalibration()
		s.continueBtn.Disable()
	})
	s.cancelBtn = widget.NewButtonWithIcon("Cancel", theme.CancelIcon(), func() {
		s.monitor.CancelCalibration()
		s.continueBtn.Disable()
		s.cancelBtn.Disable()
	})
	s.setConnected(false)

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(s.connectBtn, settingsBtn),
		container.NewHBox(s.tareBtn, s.calibrateBtn, s.continueBtn, s.cancelBtn),
		nil,
	)
}

func (s *appState) setConnected(connected bool) {
	for _, b := range []*widget.Button{s.tareBtn, s.calibrateBtn} {
		if connected {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	if connected {
		s.connectBtn.SetIcon(theme.LogoutIcon())
	} else {
		s.connectBtn.SetIcon(theme.LoginIcon())
		s.continueBtn.Disable()
		s.cancelBtn.Disable()
	}
}

func (s *appState) updateCalibrationButtons(cal monitor.CalibrationState) {
	active := cal.Step == calibration.AwaitingEmpty || cal.Step == calibration.AwaitingFull
	if active {
		s.cancelBtn.Enable()
	} else {
		s.cancelBtn.Disable()
	}
	if cal.Held {
		s.continueBtn.Enable()
	} else {
		s.continueBtn.Disable()
	}
}

// handleConnect toggles the connection.
func handleConnect(s *appState) {
	if s.chain != nil {
		s.disconnect()
		return
	}

	dev, err := device.Open(s.cfg)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to open %s sensor: %w", s.cfg.Sensor.Backend, err), s.window)
		return
	}
	if err := dev.Connect(); err != nil {
		golib.Printerr(dev.Close())
		dialog.ShowError(fmt.Errorf("failed to connect to %s sensor: %w", s.cfg.Sensor.Backend, err), s.window)
		return
	}
	log.WithField("backend", s.cfg.Sensor.Backend).Info("Connected")

	chain := monitor.Start(dev, s.cfg, s.monitor, nil)
	s.chain = chain
	s.levelLabel.SetText("Waiting for the sensor to settle")
	s.setConnected(true)

	// Reflect a dropped link in the UI.
	go func() {
		<-chain.Done()
		fyne.Do(func() {
			if s.chain == chain {
				golib.Printerr(chain.Close())
				s.chain = nil
				s.setConnected(false)
				s.levelLabel.SetText("Disconnected")
			}
		})
	}()
}

// disconnect closes the chain and waits for it to drain.
func (s *appState) disconnect() {
	if s.chain == nil {
		return
	}
	chain := s.chain
	s.chain = nil
	golib.Printerr(chain.Close())
	s.setConnected(false)
	s.levelLabel.SetText("Disconnected")
	log.Info("Disconnected")
}
