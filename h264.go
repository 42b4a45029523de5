//go:build darwin || linux

// H.264 encoding support via libmerge_h264 (openh264 wrapper) using purego.
// Encode only; H.264 input clips are out of scope.

package merger

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mergeH264Once    sync.Once
	mergeH264Handle  uintptr
	mergeH264InitErr error
)

// libmerge_h264 function pointers
var (
	mergeH264EncoderCreate        func(width, height, fps, bitrateKbps, threads int32) uint64
	mergeH264EncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType uintptr) int32
	mergeH264EncoderMaxOutputSize func(encoder uint64) int32
	mergeH264EncoderDestroy       func(encoder uint64)

	mergeH264GetError  func() uintptr
	mergeH264Available func() int32
)

const mergeH264FrameKey = 0

func loadMergeH264() error {
	mergeH264Once.Do(func() {
		mergeH264InitErr = loadMergeH264Lib()
	})
	return mergeH264InitErr
}

func loadMergeH264Lib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libmerge_h264") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			mergeH264Handle = handle
			loadMergeH264Symbols()
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmerge_h264: %w", lastErr)
	}
	return errors.New("libmerge_h264 not found in any standard location")
}

func loadMergeH264Symbols() {
	purego.RegisterLibFunc(&mergeH264EncoderCreate, mergeH264Handle, "merge_h264_encoder_create")
	purego.RegisterLibFunc(&mergeH264EncoderEncode, mergeH264Handle, "merge_h264_encoder_encode")
	purego.RegisterLibFunc(&mergeH264EncoderMaxOutputSize, mergeH264Handle, "merge_h264_encoder_max_output_size")
	purego.RegisterLibFunc(&mergeH264EncoderDestroy, mergeH264Handle, "merge_h264_encoder_destroy")

	purego.RegisterLibFunc(&mergeH264GetError, mergeH264Handle, "merge_h264_get_error")
	purego.RegisterLibFunc(&mergeH264Available, mergeH264Handle, "merge_h264_available")
}

// IsH264Available checks if libmerge_h264 is available.
func IsH264Available() bool {
	if loadMergeH264() != nil {
		return false
	}
	return mergeH264Available() != 0
}

func getH264Error() string {
	ptr := mergeH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// H264Encoder implements VideoEncoder using libmerge_h264 via purego.
// Output is an Annex B byte stream; keyframes carry SPS/PPS in band.
type H264Encoder struct {
	config VideoEncoderConfig

	handle    uint64
	outputBuf []byte

	stats   EncoderStats
	statsMu sync.Mutex

	keyframeReq atomic.Bool
	mu          sync.Mutex
}

// NewH264Encoder creates a new H.264 encoder.
func NewH264Encoder(config VideoEncoderConfig) (*H264Encoder, error) {
	if err := loadMergeH264(); err != nil {
		return nil, fmt.Errorf("h264 encoder not available: %w", err)
	}

	threads := config.Threads
	if threads <= 0 {
		threads = 4
	}
	fps := config.FPS
	if fps <= 0 {
		fps = 30
	}
	bitrateKbps := config.BitrateBps / 1000
	if bitrateKbps <= 0 {
		bitrateKbps = 1000
	}

	handle := mergeH264EncoderCreate(
		int32(config.Width),
		int32(config.Height),
		int32(fps),
		int32(bitrateKbps),
		int32(threads),
	)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create h264 encoder: %s", getH264Error())
	}

	maxOutput := mergeH264EncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(config.Width * config.Height * 3 / 2)
	}

	enc := &H264Encoder{
		config:    config,
		handle:    handle,
		outputBuf: make([]byte, maxOutput),
	}
	enc.keyframeReq.Store(true)

	return enc, nil
}

// Encode implements VideoEncoder.
func (e *H264Encoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, errors.New("encoder not initialized")
	}

	forceKeyframe := int32(0)
	if e.keyframeReq.Swap(false) {
		forceKeyframe = 1
	}

	var frameType int32
	result := mergeH264EncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]),
		int32(frame.Stride[1]),
		forceKeyframe,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
		uintptr(unsafe.Pointer(&frameType)),
	)
	runtime.KeepAlive(frame.Data)

	if result < 0 {
		return nil, fmt.Errorf("encode failed: %s", getH264Error())
	}
	if result == 0 {
		return nil, nil
	}

	ft := FrameTypeDelta
	if frameType == mergeH264FrameKey {
		ft = FrameTypeKey
	}

	e.statsMu.Lock()
	e.stats.FramesEncoded++
	if ft == FrameTypeKey {
		e.stats.KeyframesEncoded++
	}
	e.stats.BytesEncoded += uint64(result)
	e.statsMu.Unlock()

	return &EncodedFrame{
		Data:      e.outputBuf[:result],
		FrameType: ft,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}, nil
}

// RequestKeyframe implements VideoEncoder.
func (e *H264Encoder) RequestKeyframe() {
	e.keyframeReq.Store(true)
}

// Codec implements VideoEncoder.
func (e *H264Encoder) Codec() VideoCodec { return VideoCodecH264 }

// Stats implements VideoEncoder.
func (e *H264Encoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close implements VideoEncoder.
func (e *H264Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != 0 {
		mergeH264EncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

// Register the H.264 encoder (openh264).
func init() {
	if !IsH264Available() {
		return
	}

	registerVideoEncoder(VideoCodecH264, func(config VideoEncoderConfig) (VideoEncoder, error) {
		return NewH264Encoder(config)
	})
}
