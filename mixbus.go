package merger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusOccupied is returned by Connect while another connection is live.
var ErrBusOccupied = errors.New("mix bus already has a live connection")

// MixBusConfig configures the shared audio mixing bus.
type MixBusConfig struct {
	SampleRate      int // Output sample rate (default: 48000)
	Channels        int // Output channels (default: 2)
	FrameDurationMs int // Output frame size in milliseconds (default: 20)
}

// DefaultMixBusConfig returns a default mix bus configuration.
func DefaultMixBusConfig() MixBusConfig {
	return MixBusConfig{
		SampleRate:      48000,
		Channels:        2,
		FrameDurationMs: 20,
	}
}

// MixBus is the persistent audio sink of a run. Exactly one clip's audio
// source is connected at any instant; the bus exposes one continuous
// output stream to the recorder, emitting silence whenever no source is
// connected. Created once per run, closed once per run.
//
// MixBus implements AudioSource for the recorder side.
type MixBus struct {
	config       MixBusConfig
	frameSamples int // samples per channel per output frame
	frameBytes   int

	mu   sync.Mutex
	conn *BusConnection // live connection, nil when idle
	fifo []byte         // buffered PCM from the connected source

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	frameCh   chan *AudioSamples
	doneCh    chan struct{}
	produced  int64 // total samples per channel emitted
	closeOnce sync.Once
}

// NewMixBus creates an idle mix bus.
func NewMixBus(config MixBusConfig) *MixBus {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameDurationMs <= 0 {
		config.FrameDurationMs = 20
	}

	frameSamples := config.SampleRate * config.FrameDurationMs / 1000
	return &MixBus{
		config:       config,
		frameSamples: frameSamples,
		frameBytes:   frameSamples * config.Channels * 2,
		frameCh:      make(chan *AudioSamples, 4),
	}
}

// Connect routes src into the bus. At most one connection may be live;
// the previous session must disconnect before the next may connect.
// The source must already produce samples at the bus sample rate.
func (b *MixBus) Connect(src AudioSource) (*BusConnection, error) {
	if src == nil {
		return nil, errors.New("nil audio source")
	}
	if src.SampleRate() != b.config.SampleRate {
		return nil, fmt.Errorf("source sample rate %d does not match bus rate %d",
			src.SampleRate(), b.config.SampleRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil, ErrBusOccupied
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &BusConnection{
		bus:    b,
		src:    src,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	b.conn = conn
	b.fifo = b.fifo[:0]

	go conn.pump(ctx)
	return conn, nil
}

// BusConnection is one clip's audio source feeding the
// bus. Disconnect is idempotent and synchronous: when it returns, the pump
// goroutine has exited and the bus is free for the next connection.
type BusConnection struct {
	bus    *MixBus
	src    AudioSource
	cancel context.CancelFunc
	doneCh chan struct{}
	closed atomic.Bool
}

// Disconnect detaches the source from the bus.
func (c *BusConnection) Disconnect() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	<-c.doneCh

	c.bus.mu.Lock()
	if c.bus.conn == c {
		c.bus.conn = nil
		c.bus.fifo = c.bus.fifo[:0]
	}
	c.bus.mu.Unlock()
}

func (c *BusConnection) pump(ctx context.Context) {
	defer close(c.doneCh)

	// Sources decode as fast as they are pulled, so the pump paces
	// delivery by sample timestamps to keep the audio aligned with the
	// clip's real-time video playback.
	start := time.Now()
	base := int64(-1)

	for {
		samples, err := c.src.ReadSamples(ctx)
		if err != nil {
			return // End of clip, cancellation, or source failure.
		}
		if samples == nil || len(samples.Data) == 0 {
			continue
		}

		if base < 0 {
			base = samples.Timestamp
		}
		if wait := time.Duration(samples.Timestamp-base) - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		data := samples.Data
		if samples.Channels == 1 && c.bus.config.Channels == 2 {
			data = monoToStereo(data)
		}

		c.bus.mu.Lock()
		// Bound the FIFO to one second of audio so a fast source cannot
		// grow it without limit.
		limit := c.bus.config.SampleRate * c.bus.config.Channels * 2
		if len(c.bus.fifo)+len(data) > limit {
			drop := len(c.bus.fifo) + len(data) - limit
			if drop < len(c.bus.fifo) {
				c.bus.fifo = c.bus.fifo[drop:]
			} else {
				c.bus.fifo = c.bus.fifo[:0]
			}
		}
		c.bus.fifo = append(c.bus.fifo, data...)
		c.bus.mu.Unlock()
	}
}

// Start begins emitting output frames. Implements AudioSource.
func (b *MixBus) Start(ctx context.Context) error {
	if b.running.Load() {
		return errors.New("mix bus already running")
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.doneCh = make(chan struct{})
	b.running.Store(true)

	go b.emitLoop()
	return nil
}

// Stop halts output. Implements AudioSource.
func (b *MixBus) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	<-b.doneCh
	return nil
}

// Close releases the bus, disconnecting any live connection. Implements
// AudioSource.
func (b *MixBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn != nil {
			conn.Disconnect()
		}
		b.Stop()
	})
	return nil
}

// ReadSamples reads the next output frame. Implements AudioSource.
func (b *MixBus) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.ctx.Done():
		return nil, b.ctx.Err()
	case samples := <-b.frameCh:
		return samples, nil
	}
}

// SampleRate implements AudioSource.
func (b *MixBus) SampleRate() int { return b.config.SampleRate }

// Channels implements AudioSource.
func (b *MixBus) Channels() int { return b.config.Channels }

func (b *MixBus) emitLoop() {
	defer close(b.doneCh)

	frameDuration := time.Duration(b.config.FrameDurationMs) * time.Millisecond
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			frame := b.nextFrame()
			select {
			case b.frameCh <- frame:
			default:
				// Drop frame if the reader is behind.
			}
		}
	}
}

// nextFrame assembles one output frame from buffered source audio, padding
// with silence so the stream never gaps.
func (b *MixBus) nextFrame() *AudioSamples {
	data := make([]byte, b.frameBytes)

	b.mu.Lock()
	n := copy(data, b.fifo)
	if n > 0 {
		b.fifo = b.fifo[n:]
	}
	b.mu.Unlock()

	timestamp := b.produced * 1e9 / int64(b.config.SampleRate)
	b.produced += int64(b.frameSamples)

	return &AudioSamples{
		Data:        data,
		SampleRate:  b.config.SampleRate,
		Channels:    b.config.Channels,
		SampleCount: b.frameSamples,
		Format:      AudioFormatS16,
		Timestamp:   timestamp,
	}
}

func monoToStereo(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i := 0; i+1 < len(data); i += 2 {
		out[i*2] = data[i]
		out[i*2+1] = data[i+1]
		out[i*2+2] = data[i]
		out[i*2+3] = data[i+1]
	}
	return out
}
