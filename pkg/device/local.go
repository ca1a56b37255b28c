package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/golcm/pkg/hx711"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// LocalOptions tune the poll loop of a Local device.
type LocalOptions struct {
	// Interval between polls. Polls faster than the conversion rate return idle.
	Interval time.Duration
	// Settle is the warm-up before the initial tare.
	Settle time.Duration
	// RestoreTare skips the initial tare and installs TareOffset instead.
	RestoreTare bool
	TareOffset  int64
	// BufSize is the samples channel buffer.
	BufSize int
	// Now is the clock, time.Now by default.
	Now func() time.Time
}

// Local polls an HX711 wired to this machine's GPIO.
type Local struct {
	opts   LocalOptions
	closer io.Closer

	// dev is only touched under mu.
	dev     *hx711.Device
	started bool

	samples   chan RawSample
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	closed    bool
}

// NewLocal configures the chip on drv. If drv implements io.Closer it is
// closed together with the device.
func NewLocal(drv hx711.Driver, cfg hx711.Config, opts LocalOptions) (*Local, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", opts.Interval)
	}
	if opts.BufSize == 0 {
		opts.BufSize = DefaultBufferSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dev, err := hx711.New(drv, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		opts:    opts,
		dev:     dev,
		samples: make(chan RawSample, opts.BufSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if c, ok := drv.(io.Closer); ok {
		l.closer = c
	}
	return l, nil
}

// Connect starts the poll loop.
func (l *Local) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.connected {
		return ErrAlreadyConnected
	}

	if l.opts.RestoreTare {
		l.dev.SetTareOffset(l.opts.TareOffset)
		l.started = true
	}
	l.connected = true

	cfg := l.dev.Config()
	log.WithFields(log.Fields{
		"clock":   cfg.Clock,
		"data":    cfg.Data,
		"gain":    cfg.Gain,
		"samples": cfg.Samples,
	}).Info("HX711 connected")

	go l.run()
	return nil
}

// Close stops the poll loop, closes the samples channel and releases the
// driver.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	wasConnected := l.connected
	l.connected = false
	l.cancel()
	l.mu.Unlock()

	if wasConnected {
		<-l.done
	}
	close(l.samples)

	var err error
	if wasConnected {
		// Leave the chip in its low power state.
		err = multierr.Append(err, l.powerDown())
	}
	if l.closer != nil {
		err = multierr.Append(err, l.closer.Close())
	}
	return err
}

// Samples returns the channel for reading samples.
func (l *Local) Samples() <-chan RawSample {
	return l.samples
}

// IsConnected returns whether the poll loop is running.
func (l *Local) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Tare arms a tare over the next full smoothing window. Completion is
// flagged on the sample that finishes it.
func (l *Local) Tare() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}
	l.dev.TareNoDelay()
	return nil
}

// PowerDown powers the chip down. Polls return idle until PowerUp.
func (l *Local) PowerDown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}
	return l.dev.PowerDown()
}

func (l *Local) powerDown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dev.PowerDown()
}

// PowerUp wakes the chip.
func (l *Local) PowerUp() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}
	return l.dev.PowerUp()
}

func (l *Local) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			sample, ok := l.poll()
			if !ok {
				continue
			}
			select {
			case l.samples <- sample:
			case <-l.ctx.Done():
				return
			default:
				log.Warn("Samples channel full, dropping sample")
			}
		}
	}
}

// poll runs one acquisition step and returns a sample when one was admitted.
func (l *Local) poll() (RawSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Now()
	if !l.started {
		done, err := l.dev.StartNoDelay(now, l.opts.Settle)
		if err != nil {
			log.Errorf("HX711 start: %v", err)
			return RawSample{}, false
		}
		if !done {
			return RawSample{}, false
		}
		l.started = true
		log.WithField("offset", l.dev.TareOffset()).Info("HX711 settled and tared")
		return l.sample(now, true), true
	}

	st, err := l.dev.Update()
	if err != nil {
		log.Errorf("HX711 poll: %v", err)
		return RawSample{}, false
	}
	switch st {
	case hx711.StatusSample:
		return l.sample(now, false), true
	case hx711.StatusTared:
		l.dev.TareDone()
		log.WithField("offset", l.dev.TareOffset()).Info("Tare done")
		return l.sample(now, true), true
	case hx711.StatusRejected:
		log.Debug("HX711 sample rejected")
	}
	return RawSample{}, false
}

func (l *Local) sample(now time.Time, tared bool) RawSample {
	return RawSample{
		Timestamp:  now,
		Raw:        l.dev.Raw(),
		TareOffset: l.dev.TareOffset(),
		Primed:     l.dev.Primed(),
		TareDone:   tared,
	}
}
