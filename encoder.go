package merger

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Common codec errors.
var (
	ErrCodecNotSupported = errors.New("codec not supported")
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec      VideoCodec // Codec type (VP8, VP9, H264)
	Width      int        // Frame width
	Height     int        // Frame height
	FPS        int        // Target framerate
	BitrateBps int        // Target bitrate in bits per second
	Threads    int        // Encoder threads (0 = auto)
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:      codec,
		Width:      width,
		Height:     height,
		FPS:        30,
		BitrateBps: 2_500_000,
	}
}

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded    uint64
	KeyframesEncoded uint64
	BytesEncoded     uint64
}

// VideoEncoder encodes raw video frames to a compressed bitstream.
type VideoEncoder interface {
	io.Closer

	// Encode encodes a video frame.
	// Returns nil if the encoder is buffering and no output is ready.
	// The returned frame data is valid until the next Encode call.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// RequestKeyframe forces the next frame to be a keyframe.
	RequestKeyframe()

	// Codec returns the codec type.
	Codec() VideoCodec

	// Stats returns encoding statistics.
	Stats() EncoderStats
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec      AudioCodec // Codec type (Opus)
	SampleRate int        // Sample rate (e.g., 48000)
	Channels   int        // Number of channels (1 or 2)
	BitrateBps int        // Target bitrate in bps
}

// DefaultAudioEncoderConfig returns a default audio encoder configuration.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:      codec,
		SampleRate: 48000,
		Channels:   2,
		BitrateBps: 128_000,
	}
}

// AudioEncoder encodes raw audio samples to a compressed bitstream.
type AudioEncoder interface {
	io.Closer

	// Encode encodes one frame of samples. Returns nil if buffering.
	Encode(samples *AudioSamples) (*EncodedAudio, error)

	// Codec returns the codec type.
	Codec() AudioCodec
}

// VideoDecoderConfig configures a video decoder.
type VideoDecoderConfig struct {
	Codec   VideoCodec
	Threads int // Decoder threads (0 = auto)
}

// DecoderStats provides decoding metrics.
type DecoderStats struct {
	FramesDecoded   uint64
	BytesDecoded    uint64
	CorruptedFrames uint64
}

// VideoDecoder decodes a compressed bitstream to raw frames.
type VideoDecoder interface {
	io.Closer

	// Decode decodes one encoded frame. Returns nil while buffering.
	// The returned frame is valid until the next Decode call.
	Decode(encoded *EncodedFrame) (*VideoFrame, error)

	// Codec returns the codec type.
	Codec() VideoCodec

	// Stats returns decoding statistics.
	Stats() DecoderStats
}

// AudioDecoder decodes compressed audio packets to raw samples.
type AudioDecoder interface {
	io.Closer

	// Decode decodes one packet. The returned samples are valid until the
	// next Decode call.
	Decode(packet *EncodedAudio) (*AudioSamples, error)

	// Codec returns the codec type.
	Codec() AudioCodec
}

// --- Registry ---

type (
	videoEncoderFactory func(VideoEncoderConfig) (VideoEncoder, error)
	audioEncoderFactory func(AudioEncoderConfig) (AudioEncoder, error)
	videoDecoderFactory func(VideoDecoderConfig) (VideoDecoder, error)
	audioDecoderFactory func(AudioDecoderConfig) (AudioDecoder, error)
)

// AudioDecoderConfig configures an audio decoder.
type AudioDecoderConfig struct {
	Codec      AudioCodec
	SampleRate int
	Channels   int
}

type codecRegistry struct {
	mu sync.RWMutex

	videoEncoders map[VideoCodec]videoEncoderFactory
	audioEncoders map[AudioCodec]audioEncoderFactory
	videoDecoders map[VideoCodec]videoDecoderFactory
	audioDecoders map[AudioCodec]audioDecoderFactory
}

var globalCodecRegistry = &codecRegistry{
	videoEncoders: make(map[VideoCodec]videoEncoderFactory),
	audioEncoders: make(map[AudioCodec]audioEncoderFactory),
	videoDecoders: make(map[VideoCodec]videoDecoderFactory),
	audioDecoders: make(map[AudioCodec]audioDecoderFactory),
}

func registerVideoEncoder(codec VideoCodec, factory videoEncoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.videoEncoders[codec] = factory
}

func registerAudioEncoder(codec AudioCodec, factory audioEncoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.audioEncoders[codec] = factory
}

func registerVideoDecoder(codec VideoCodec, factory videoDecoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.videoDecoders[codec] = factory
}

func registerAudioDecoder(codec AudioCodec, factory audioDecoderFactory) {
	globalCodecRegistry.mu.Lock()
	defer globalCodecRegistry.mu.Unlock()
	globalCodecRegistry.audioDecoders[codec] = factory
}

// NewVideoEncoder creates a video encoder for the configured codec.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	globalCodecRegistry.mu.RLock()
	factory, ok := globalCodecRegistry.videoEncoders[config.Codec]
	globalCodecRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// NewAudioEncoder creates an audio encoder for the configured codec.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	globalCodecRegistry.mu.RLock()
	factory, ok := globalCodecRegistry.audioEncoders[config.Codec]
	globalCodecRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// NewVideoDecoder creates a video decoder for the configured codec.
func NewVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error) {
	globalCodecRegistry.mu.RLock()
	factory, ok := globalCodecRegistry.videoDecoders[config.Codec]
	globalCodecRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// NewAudioDecoder creates an audio decoder for the configured codec.
func NewAudioDecoder(config AudioDecoderConfig) (AudioDecoder, error) {
	globalCodecRegistry.mu.RLock()
	factory, ok := globalCodecRegistry.audioDecoders[config.Codec]
	globalCodecRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrCodecNotSupported, config.Codec)
	}
	return factory(config)
}

// VideoEncoderAvailable reports whether an encoder is registered for codec.
func VideoEncoderAvailable(codec VideoCodec) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.videoEncoders[codec]
	return ok
}

// AudioEncoderAvailable reports whether an encoder is registered for codec.
func AudioEncoderAvailable(codec AudioCodec) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.audioEncoders[codec]
	return ok
}

// VideoDecoderAvailable reports whether a decoder is registered for codec.
func VideoDecoderAvailable(codec VideoCodec) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.videoDecoders[codec]
	return ok
}

// AudioDecoderAvailable reports whether a decoder is registered for codec.
func AudioDecoderAvailable(codec AudioCodec) bool {
	globalCodecRegistry.mu.RLock()
	defer globalCodecRegistry.mu.RUnlock()
	_, ok := globalCodecRegistry.audioDecoders[codec]
	return ok
}
