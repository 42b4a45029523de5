//go:build darwin || linux

// Opus audio codec support via libmerge_opus using purego.

package merger

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mergeOpusOnce    sync.Once
	mergeOpusHandle  uintptr
	mergeOpusInitErr error
)

// libmerge_opus function pointers
var (
	mergeOpusEncoderCreate  func(sampleRate, channels, bitrateBps int32) uint64
	mergeOpusEncoderEncode  func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	mergeOpusEncoderDestroy func(encoder uint64)

	mergeOpusDecoderCreate  func(sampleRate, channels int32) uint64
	mergeOpusDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, pcmOut uintptr, maxSamples int32) int32
	mergeOpusDecoderDestroy func(decoder uint64)

	mergeOpusGetError  func() uintptr
	mergeOpusAvailable func() int32
)

func loadMergeOpus() error {
	mergeOpusOnce.Do(func() {
		mergeOpusInitErr = loadMergeOpusLib()
	})
	return mergeOpusInitErr
}

func loadMergeOpusLib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libmerge_opus") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			mergeOpusHandle = handle
			loadMergeOpusSymbols()
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmerge_opus: %w", lastErr)
	}
	return errors.New("libmerge_opus not found in any standard location")
}

func loadMergeOpusSymbols() {
	purego.RegisterLibFunc(&mergeOpusEncoderCreate, mergeOpusHandle, "merge_opus_encoder_create")
	purego.RegisterLibFunc(&mergeOpusEncoderEncode, mergeOpusHandle, "merge_opus_encoder_encode")
	purego.RegisterLibFunc(&mergeOpusEncoderDestroy, mergeOpusHandle, "merge_opus_encoder_destroy")

	purego.RegisterLibFunc(&mergeOpusDecoderCreate, mergeOpusHandle, "merge_opus_decoder_create")
	purego.RegisterLibFunc(&mergeOpusDecoderDecode, mergeOpusHandle, "merge_opus_decoder_decode")
	purego.RegisterLibFunc(&mergeOpusDecoderDestroy, mergeOpusHandle, "merge_opus_decoder_destroy")

	purego.RegisterLibFunc(&mergeOpusGetError, mergeOpusHandle, "merge_opus_get_error")
	purego.RegisterLibFunc(&mergeOpusAvailable, mergeOpusHandle, "merge_opus_available")
}

// IsOpusAvailable checks if libmerge_opus is available.
func IsOpusAvailable() bool {
	if loadMergeOpus() != nil {
		return false
	}
	return mergeOpusAvailable() != 0
}

func getOpusError() string {
	ptr := mergeOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// OpusEncoder implements AudioEncoder using libmerge_opus via purego.
type OpusEncoder struct {
	config AudioEncoderConfig

	handle    uint64
	pcmBuf    []int16
	outputBuf []byte

	mu sync.Mutex
}

// NewOpusEncoder creates a new Opus encoder.
func NewOpusEncoder(config AudioEncoderConfig) (*OpusEncoder, error) {
	if err := loadMergeOpus(); err != nil {
		return nil, fmt.Errorf("opus encoder not available: %w", err)
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.BitrateBps <= 0 {
		config.BitrateBps = 128_000
	}

	handle := mergeOpusEncoderCreate(
		int32(config.SampleRate),
		int32(config.Channels),
		int32(config.BitrateBps),
	)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create opus encoder: %s", getOpusError())
	}

	return &OpusEncoder{
		config:    config,
		handle:    handle,
		outputBuf: make([]byte, 4000), // Opus recommended max packet size
	}, nil
}

// Encode implements AudioEncoder. Samples must contain a whole Opus frame
// (2.5, 5, 10, 20, 40 or 60 ms at the configured sample rate).
func (e *OpusEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, errors.New("encoder not initialized")
	}
	if samples.Format != AudioFormatS16 {
		return nil, fmt.Errorf("unsupported audio format: %v", samples.Format)
	}

	total := samples.SampleCount * samples.Channels
	if cap(e.pcmBuf) < total {
		e.pcmBuf = make([]int16, total)
	}
	pcm := e.pcmBuf[:total]
	for i := 0; i < total; i++ {
		pcm[i] = int16(samples.Data[i*2]) | int16(samples.Data[i*2+1])<<8
	}

	result := mergeOpusEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&pcm[0])),
		int32(samples.SampleCount),
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
	)
	runtime.KeepAlive(pcm)

	if result < 0 {
		return nil, fmt.Errorf("opus encode failed: %s", getOpusError())
	}
	if result == 0 {
		return nil, nil
	}

	data := make([]byte, result)
	copy(data, e.outputBuf[:result])

	duration := int64(samples.SampleCount) * 1e9 / int64(samples.SampleRate)
	return &EncodedAudio{
		Data:      data,
		Timestamp: samples.Timestamp,
		Duration:  duration,
	}, nil
}

// Codec implements AudioEncoder.
func (e *OpusEncoder) Codec() AudioCodec { return AudioCodecOpus }

// Close implements AudioEncoder.
func (e *OpusEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != 0 {
		mergeOpusEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

// OpusDecoder implements AudioDecoder using libmerge_opus via purego.
type OpusDecoder struct {
	config AudioDecoderConfig

	handle uint64
	pcmBuf []int16

	mu sync.Mutex
}

// NewOpusDecoder creates a new Opus decoder.
func NewOpusDecoder(config AudioDecoderConfig) (*OpusDecoder, error) {
	if err := loadMergeOpus(); err != nil {
		return nil, fmt.Errorf("opus decoder not available: %w", err)
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}

	handle := mergeOpusDecoderCreate(int32(config.SampleRate), int32(config.Channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create opus decoder: %s", getOpusError())
	}

	// 120 ms is the largest Opus frame.
	maxSamples := config.SampleRate * 120 / 1000

	return &OpusDecoder{
		config: config,
		handle: handle,
		pcmBuf: make([]int16, maxSamples*config.Channels),
	}, nil
}

// Decode implements AudioDecoder.
func (d *OpusDecoder) Decode(encoded *EncodedAudio) (*AudioSamples, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil, errors.New("decoder not initialized")
	}
	if len(encoded.Data) == 0 {
		return nil, errors.New("empty encoded data")
	}

	maxSamples := len(d.pcmBuf) / d.config.Channels
	result := mergeOpusDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&encoded.Data[0])),
		int32(len(encoded.Data)),
		uintptr(unsafe.Pointer(&d.pcmBuf[0])),
		int32(maxSamples),
	)
	runtime.KeepAlive(encoded.Data)

	if result < 0 {
		return nil, fmt.Errorf("opus decode failed: %s", getOpusError())
	}
	if result == 0 {
		return nil, nil
	}

	sampleCount := int(result)
	total := sampleCount * d.config.Channels
	data := make([]byte, total*2)
	for i := 0; i < total; i++ {
		v := d.pcmBuf[i]
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}

	return &AudioSamples{
		Data:        data,
		SampleRate:  d.config.SampleRate,
		Channels:    d.config.Channels,
		SampleCount: sampleCount,
		Format:      AudioFormatS16,
		Timestamp:   encoded.Timestamp,
	}, nil
}

// Codec implements AudioDecoder.
func (d *OpusDecoder) Codec() AudioCodec { return AudioCodecOpus }

// Close implements AudioDecoder.
func (d *OpusDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		mergeOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// Register the Opus encoder and decoder (libopus).
func init() {
	if !IsOpusAvailable() {
		return
	}

	registerAudioEncoder(AudioCodecOpus, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return NewOpusEncoder(config)
	})
	registerAudioDecoder(AudioCodecOpus, func(config AudioDecoderConfig) (AudioDecoder, error) {
		return NewOpusDecoder(config)
	})
}
