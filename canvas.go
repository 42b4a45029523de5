package merger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWriterHeld is returned by AcquireWriter while another writer is live.
var ErrWriterHeld = errors.New("canvas writer already held")

// ErrWriterReleased is returned when drawing through a released writer.
var ErrWriterReleased = errors.New("canvas writer released")

// CanvasConfig configures the shared frame canvas.
type CanvasConfig struct {
	FPS        int     // Capture frame rate (default: 30)
	Background [3]byte // Background color in YUV (default: black)
}

// DefaultCanvasConfig returns a default canvas configuration.
func DefaultCanvasConfig() CanvasConfig {
	return CanvasConfig{
		FPS:        30,
		Background: [3]byte{16, 128, 128},
	}
}

// Canvas is the shared frame buffer of a run: a fixed-size I420 surface
// that the active playback session draws into and the recorder captures
// from at a steady cadence.
//
// Dimensions are locked exactly once, from the first clip's native
// resolution, and never change for the remainder of the run. Later clips
// are scaled to fit with letterboxing.
//
// Canvas implements VideoSource: the capture loop snapshots the surface at
// the configured FPS once dimensions are locked.
type Canvas struct {
	config CanvasConfig

	mu         sync.Mutex
	surface    *VideoFrame
	width      int
	height     int
	locked     bool
	writerLive bool
	scaler     *frameScaler
	lastBox    [4]int

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	frameCh   chan *VideoFrame
	doneCh    chan struct{}
	startTime time.Time
}

// NewCanvas creates an unlocked canvas.
func NewCanvas(config CanvasConfig) *Canvas {
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.Background == [3]byte{} {
		config.Background = [3]byte{16, 128, 128}
	}

	return &Canvas{
		config:  config,
		frameCh: make(chan *VideoFrame, 3),
	}
}

// LockDimensions sets the canvas dimensions from the first clip's native
// resolution. Only the first call takes effect; all calls return the locked
// dimensions. Dimensions are rounded down to even values for I420.
func (c *Canvas) LockDimensions(width, height int) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return c.width, c.height
	}

	width &^= 1
	height &^= 1
	if width <= 0 {
		width = 2
	}
	if height <= 0 {
		height = 2
	}

	c.width = width
	c.height = height
	c.surface = NewI420Frame(width, height)
	c.clearLocked()
	c.locked = true
	return width, height
}

// Dimensions returns the canvas dimensions and whether they are locked.
func (c *Canvas) Dimensions() (width, height int, locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height, c.locked
}

// AcquireWriter hands out the single live writer token. Only one writer may
// exist at a time; the holder is the only party allowed to draw.
func (c *Canvas) AcquireWriter() (*CanvasWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writerLive {
		return nil, ErrWriterHeld
	}
	c.writerLive = true
	return &CanvasWriter{canvas: c}, nil
}

// CanvasWriter is the exclusive draw token for a canvas. Sessions hold it
// for the duration of their clip and release it on teardown.
type CanvasWriter struct {
	canvas   *Canvas
	released atomic.Bool
}

// Draw copies a decoded frame onto the canvas, scaled to fit its locked
// dimensions with letterboxing. Requires locked dimensions.
func (w *CanvasWriter) Draw(frame *VideoFrame) error {
	if w.released.Load() {
		return ErrWriterReleased
	}
	return w.canvas.draw(frame)
}

// Release returns the writer token. Idempotent.
func (w *CanvasWriter) Release() {
	if w.released.Swap(true) {
		return
	}
	w.canvas.mu.Lock()
	w.canvas.writerLive = false
	w.canvas.mu.Unlock()
}

func (c *Canvas) draw(frame *VideoFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.locked {
		return errors.New("canvas dimensions not locked")
	}
	if frame == nil || frame.Format != PixelFormatI420 || len(frame.Data) < 3 {
		return fmt.Errorf("cannot draw frame: want I420, got %v", frame.Format)
	}

	x, y, boxW, boxH := fitBox(frame.Width, frame.Height, c.width, c.height)

	box := [4]int{x, y, boxW, boxH}
	if box != c.lastBox {
		c.clearLocked()
		c.lastBox = box
	}

	if c.scaler == nil || c.scaler.dstWidth != boxW || c.scaler.dstHeight != boxH {
		c.scaler = newFrameScaler(boxW, boxH)
	}
	scaled := c.scaler.Scale(frame)

	blitPlane(scaled.Data[0], scaled.Stride[0], boxW, boxH,
		c.surface.Data[0], c.surface.Stride[0], x, y)
	blitPlane(scaled.Data[1], scaled.Stride[1], boxW/2, boxH/2,
		c.surface.Data[1], c.surface.Stride[1], x/2, y/2)
	blitPlane(scaled.Data[2], scaled.Stride[2], boxW/2, boxH/2,
		c.surface.Data[2], c.surface.Stride[2], x/2, y/2)

	return nil
}

func (c *Canvas) clearLocked() {
	if c.surface == nil {
		return
	}
	fillPlane(c.surface.Data[0], c.config.Background[0])
	fillPlane(c.surface.Data[1], c.config.Background[1])
	fillPlane(c.surface.Data[2], c.config.Background[2])
}

// Start begins the capture loop. Implements VideoSource.
func (c *Canvas) Start(ctx context.Context) error {
	if c.running.Load() {
		return errors.New("canvas capture already running")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.doneCh = make(chan struct{})
	c.running.Store(true)
	c.startTime = time.Now()

	go c.captureLoop()
	return nil
}

// Stop halts the capture loop and waits for it to exit. Implements
// VideoSource.
func (c *Canvas) Stop() error {
	if !c.running.Swap(false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	<-c.doneCh
	return nil
}

// Close releases the canvas. Implements VideoSource.
func (c *Canvas) Close() error {
	c.Stop()

	c.mu.Lock()
	c.surface = nil
	c.scaler = nil
	c.mu.Unlock()
	return nil
}

// ReadFrame reads the next captured frame. Implements VideoSource.
func (c *Canvas) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case frame := <-c.frameCh:
		return frame, nil
	}
}

// Config implements VideoSource. Width/Height are zero until locked.
func (c *Canvas) Config() SourceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SourceConfig{
		Width:  c.width,
		Height: c.height,
		FPS:    c.config.FPS,
		Format: PixelFormatI420,
	}
}

func (c *Canvas) captureLoop() {
	defer close(c.doneCh)

	frameDuration := time.Second / time.Duration(c.config.FPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			frame := c.snapshot(frameDuration)
			if frame == nil {
				continue // Dimensions not locked yet, nothing to capture.
			}

			select {
			case c.frameCh <- frame:
			default:
				// Drop frame if the reader is behind.
			}
		}
	}
}

func (c *Canvas) snapshot(frameDuration time.Duration) *VideoFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.locked || c.surface == nil {
		return nil
	}
	frame := c.surface.Clone()
	frame.Timestamp = time.Since(c.startTime).Nanoseconds()
	frame.Duration = frameDuration.Nanoseconds()
	return frame
}

func blitPlane(src []byte, srcStride, w, h int, dst []byte, dstStride, dstX, dstY int) {
	for row := 0; row < h; row++ {
		srcStart := row * srcStride
		dstStart := (dstY+row)*dstStride + dstX
		copy(dst[dstStart:dstStart+w], src[srcStart:srcStart+w])
	}
}

func fillPlane(plane []byte, value byte) {
	for i := range plane {
		plane[i] = value
	}
}
