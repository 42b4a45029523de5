package merger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotSupported is returned when an optional operation is not supported.
var ErrNotSupported = errors.New("operation not supported")

// ErrEndOfClip is returned by clip sources once all media has been read.
var ErrEndOfClip = errors.New("end of clip")

// SourceConfig describes a video source's output.
type SourceConfig struct {
	Width  int         // Frame width in pixels
	Height int         // Frame height in pixels
	FPS    int         // Frames per second (0 = variable, use timestamps)
	Format PixelFormat // Pixel format
}

// VideoSource produces raw video frames.
type VideoSource interface {
	io.Closer

	// Start begins decoding/generation.
	Start(ctx context.Context) error

	// Stop halts decoding/generation.
	Stop() error

	// ReadFrame reads the next frame (blocking).
	// The returned frame is valid until the next ReadFrame call or Close.
	// Returns ErrEndOfClip when the source is exhausted.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// Config returns the source configuration.
	Config() SourceConfig
}

// AudioSource produces raw audio samples.
type AudioSource interface {
	io.Closer

	// Start begins decoding/generation.
	Start(ctx context.Context) error

	// Stop halts decoding/generation.
	Stop() error

	// ReadSamples reads the next audio samples (blocking).
	// Returns ErrEndOfClip when the source is exhausted.
	ReadSamples(ctx context.Context) (*AudioSamples, error)

	// SampleRate returns the audio sample rate.
	SampleRate() int

	// Channels returns the number of audio channels.
	Channels() int
}

// ClipSource is one clip's decode context: a demuxer plus decoders, opened
// when the clip's playback turn begins and closed when it ends. Audio may
// be nil for video-only clips.
type ClipSource struct {
	Video VideoSource
	Audio AudioSource

	closers []io.Closer
}

// AddCloser registers an extra resource to release on Close (file handles,
// decoder contexts not owned by the sources themselves).
func (c *ClipSource) AddCloser(closer io.Closer) {
	c.closers = append(c.closers, closer)
}

// Close releases the decode context. Safe to call on every exit path.
func (c *ClipSource) Close() error {
	var first error
	if c.Video != nil {
		if err := c.Video.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c.Audio != nil {
		if err := c.Audio.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClipOpener opens a clip file into a decode-ready ClipSource.
type ClipOpener func(path string) (*ClipSource, error)

type openerRegistry struct {
	byExt map[string]ClipOpener
	mu    sync.RWMutex
}

var globalOpenerRegistry = &openerRegistry{
	byExt: make(map[string]ClipOpener),
}

// RegisterClipOpener registers an opener for a filename extension
// (with dot, e.g. ".webm").
func RegisterClipOpener(ext string, opener ClipOpener) {
	globalOpenerRegistry.mu.Lock()
	defer globalOpenerRegistry.mu.Unlock()
	globalOpenerRegistry.byExt[strings.ToLower(ext)] = opener
}

// OpenClipFile opens a clip by path, dispatching on its extension.
func OpenClipFile(path string) (*ClipSource, error) {
	ext := strings.ToLower(filepath.Ext(path))

	globalOpenerRegistry.mu.RLock()
	opener, ok := globalOpenerRegistry.byExt[ext]
	globalOpenerRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no clip opener for %q", ext)
	}
	return opener(path)
}

// SupportedClipExtensions returns the registered clip extensions.
func SupportedClipExtensions() []string {
	globalOpenerRegistry.mu.RLock()
	defer globalOpenerRegistry.mu.RUnlock()

	exts := make([]string, 0, len(globalOpenerRegistry.byExt))
	for ext := range globalOpenerRegistry.byExt {
		exts = append(exts, ext)
	}
	return exts
}
