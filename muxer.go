package merger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// StreamInfo describes the elementary streams handed to a muxer.
type StreamInfo struct {
	// Video
	Width  int
	Height int
	FPS    int

	// Audio (zero when the output is video-only)
	SampleRate int
	Channels   int
}

// Muxer writes encoded frames into a container stream. Implementations
// write container bytes to the io.Writer they were created with as data
// becomes ready; Close flushes whatever remains.
type Muxer interface {
	// WriteVideo appends one encoded video frame.
	WriteVideo(frame *EncodedFrame) error

	// WriteAudio appends one encoded audio packet.
	WriteAudio(packet *EncodedAudio) error

	// Close finalizes the container and flushes remaining data.
	Close() error
}

// MuxerFactory creates a muxer writing container data to w.
type MuxerFactory func(spec OutputSpec, info StreamInfo, w io.Writer) (Muxer, error)

type muxerRegistry struct {
	byContainer map[Container]MuxerFactory
	mu          sync.RWMutex
}

var globalMuxerRegistry = &muxerRegistry{
	byContainer: make(map[Container]MuxerFactory),
}

// RegisterMuxer registers a muxer factory for a container format.
func RegisterMuxer(container Container, factory MuxerFactory) {
	globalMuxerRegistry.mu.Lock()
	defer globalMuxerRegistry.mu.Unlock()
	globalMuxerRegistry.byContainer[container] = factory
}

// NewMuxer creates a muxer for the spec's container.
func NewMuxer(spec OutputSpec, info StreamInfo, w io.Writer) (Muxer, error) {
	globalMuxerRegistry.mu.RLock()
	factory, ok := globalMuxerRegistry.byContainer[spec.Container]
	globalMuxerRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no muxer for container %s", spec.Container)
	}
	return factory(spec, info, w)
}

// MuxerAvailable reports whether a muxer is registered for container.
func MuxerAvailable(container Container) bool {
	globalMuxerRegistry.mu.RLock()
	defer globalMuxerRegistry.mu.RUnlock()
	_, ok := globalMuxerRegistry.byContainer[container]
	return ok
}

// Artifact is the final assembled binary output of a successful run.
type Artifact struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Empty reports whether the artifact holds no data.
func (a Artifact) Empty() bool { return len(a.Data) == 0 }

// ChunkHandler receives container chunks as the muxer emits them. The
// chunk slice is only valid for the duration of the call.
type ChunkHandler func(chunk []byte)

// chunkLog is the append-only ordered sequence of container chunks emitted
// during a run. It implements io.WriteCloser so muxers can stream into it;
// Assemble concatenates the chunks, in emission order, into one artifact
// payload.
type chunkLog struct {
	mu      sync.Mutex
	chunks  [][]byte
	total   int
	handler ChunkHandler
	closed  bool
}

func newChunkLog(handler ChunkHandler) *chunkLog {
	return &chunkLog{handler: handler}
}

func (l *chunkLog) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	l.chunks = append(l.chunks, chunk)
	l.total += len(chunk)
	handler := l.handler
	l.mu.Unlock()

	if handler != nil {
		handler(chunk)
	}
	return len(p), nil
}

func (l *chunkLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Assemble concatenates all emitted chunks in emission order.
func (l *chunkLog) Assemble() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]byte, 0, l.total)
	for _, chunk := range l.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Len returns the number of chunks emitted so far.
func (l *chunkLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chunks)
}
