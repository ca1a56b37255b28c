package monitor

import (
	"sync"

	"github.com/itohio/golcm/pkg/calibration"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/reading"
	log "github.com/sirupsen/logrus"
)

const chainBufferSize = 500

// Chain is a running device, converter and monitor pipeline.
type Chain struct {
	dev  device.Device
	done chan struct{}
}

// Start wires the samples of a connected device through the converters into
// m. tap, if set, sees every raw sample before conversion.
func Start(dev device.Device, cfg *config.Config, m *Monitor, tap func(device.RawSample)) *Chain {
	m.ResetShutdown()

	raw := dev.Samples()
	if tap != nil {
		raw = tee(raw, tap)
	}
	convert := reading.NewConverter(cfg, chainBufferSize)
	if cfg.Poll.AverageSamples > 0 {
		convert = reading.NewAveragingConverter(cfg, cfg.Poll.AverageSamples, chainBufferSize)
	}
	readings := convert(raw)

	c := &Chain{dev: dev, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		m.ProcessReadings(readings)
	}()
	return c
}

// Device returns the device feeding the chain.
func (c *Chain) Device() device.Device {
	return c.dev
}

// Close closes the device and waits until the monitor drained every stage.
func (c *Chain) Close() error {
	err := c.dev.Close()
	<-c.done
	return err
}

// Done is closed once the monitor saw the end of the stream, e.g. after the
// serial link dropped.
func (c *Chain) Done() <-chan struct{} {
	return c.done
}

func tee(in <-chan device.RawSample, tap func(device.RawSample)) <-chan device.RawSample {
	out := make(chan device.RawSample, chainBufferSize)
	go func() {
		defer close(out)
		for s := range in {
			tap(s)
			out <- s
		}
	}()
	return out
}

// Persister writes calibration, tare and stock changes back to the
// configuration file.
type Persister struct {
	mu   sync.Mutex
	cfg  *config.Config
	path string
}

// Persist registers callbacks on m that keep cfg and the file at path in sync
// with completed calibrations, tares and bottle swaps.
func Persist(m *Monitor, cfg *config.Config, path string) *Persister {
	p := &Persister{cfg: cfg, path: path}
	m.OnCalibrated(func(res calibration.Result) {
		p.update(func(c *config.Config) { c.Calibration.Apply(res) })
	})
	m.OnTare(func(offset int64) {
		p.update(func(c *config.Config) { c.Calibration.TareOffset = offset })
	})
	m.OnReport(func(rep level.Report) {
		if rep.BottleSwapped {
			p.update(func(c *config.Config) { c.Calibration.Stock = rep.Stock })
		}
	})
	return p
}

// Update applies fn to the configuration and saves it.
func (p *Persister) Update(fn func(*config.Config)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.cfg)
	if p.path == "" {
		return nil
	}
	return p.cfg.Save(p.path)
}

func (p *Persister) update(fn func(*config.Config)) {
	if err := p.Update(fn); err != nil {
		log.WithError(err).WithField("path", p.path).Error("Failed to save configuration")
	}
}
