// Command lcmd runs the load cell monitor without a user interface. It logs
// fill level changes and keeps calibration, tare and stock in the
// configuration file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/antongulenko/golib"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
	"github.com/itohio/golcm/pkg/monitor"
	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile  = flag.String("config", "config.yaml", "Configuration file path")
		port        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		backend     = flag.String("backend", "", "Sensor backend override: serial, gpiod, periph or mock")
		calibrate   = flag.Bool("calibrate", false, "Start a calibration run after connecting")
		printRaw    = flag.Bool("raw", false, "Print every raw sample in the serial line format")
		listPorts   = flag.Bool("list", false, "List serial ports and exit")
		stock       = flag.Int("stock", -1, "Override the number of spare containers")
		averageSize = flag.Int("average-samples", -1, "Number of readings to average (0 = disabled, overrides config)")
	)
	golib.RegisterFlags(golib.FlagsAll)
	flag.Parse()
	golib.ConfigureLogging()

	if *listPorts {
		ports, err := device.Ports()
		golib.Checkerr(err)
		for _, p := range ports {
			fmt.Printf("%s\t%s\n", p.Name, p.Description)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *backend != "" {
		cfg.Sensor.Backend = *backend
	}
	if *averageSize >= 0 {
		cfg.Poll.AverageSamples = *averageSize
	}
	if *stock >= 0 {
		cfg.Calibration.Stock = *stock
	}
	golib.Checkerr(cfg.Validate())

	m := monitor.New(cfg)
	monitor.Persist(m, cfg, *configFile)

	dev, err := device.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open device")
	}
	if err := dev.Connect(); err != nil {
		log.WithError(err).WithField("backend", cfg.Sensor.Backend).Fatal("Failed to connect")
	}

	var tap func(device.RawSample)
	if *printRaw {
		tap = func(s device.RawSample) { fmt.Println(device.FormatLine(s)) }
	}
	chain := monitor.Start(dev, cfg, m, tap)
	if *calibrate {
		m.StartCalibration()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		log.WithField("signal", sig).Info("Shutting down")
	case <-chain.Done():
		log.Warn("Device stream ended")
	}
	golib.Printerr(chain.Close())
}
