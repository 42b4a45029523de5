//go:build darwin || linux

// VP8/VP9 codec support via libmerge_vpx using purego.
//
// libmerge_vpx is a thin wrapper around libvpx with a primitive-only API,
// loaded dynamically at runtime. Set MERGE_SDK_LIB_PATH to the directory
// containing the wrapper libraries.

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
	mergeVPXOnce    sync.Once
	mergeVPXHandle  uintptr
	mergeVPXInitErr error
)

// libmerge_vpx function pointers
var (
	mergeVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mergeVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType uintptr) int32
	mergeVPXEncoderMaxOutputSize func(encoder uint64) int32
	mergeVPXEncoderRequestKF     func(encoder uint64)
	mergeVPXEncoderDestroy       func(encoder uint64)

	mergeVPXDecoderCreate  func(codec, threads int32) uint64
	mergeVPXDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mergeVPXDecoderDestroy func(decoder uint64)

	mergeVPXGetError       func() uintptr
	mergeVPXCodecAvailable func(codec int32) int32
)

// mergeVPXDecodeResult matches merge_vpx_decode_result_t in C.
// Heap-allocated so purego handles the output pointer correctly on arm64.
type mergeVPXDecodeResult struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// Constants from merge_vpx.h
const (
	mergeVPXCodecVP8 = 0
	mergeVPXCodecVP9 = 1

	mergeVPXFrameKey = 0

	mergeVPXOK = 0
)

func loadMergeVPX() error {
	mergeVPXOnce.Do(func() {
		mergeVPXInitErr = loadMergeVPXLib()
	})
	return mergeVPXInitErr
}

func loadMergeVPXLib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libmerge_vpx") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			mergeVPXHandle = handle
			loadMergeVPXSymbols()
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmerge_vpx: %w", lastErr)
	}
	return errors.New("libmerge_vpx not found in any standard location")
}

func loadMergeVPXSymbols() {
	purego.RegisterLibFunc(&mergeVPXEncoderCreate, mergeVPXHandle, "merge_vpx_encoder_create")
	purego.RegisterLibFunc(&mergeVPXEncoderEncode, mergeVPXHandle, "merge_vpx_encoder_encode")
	purego.RegisterLibFunc(&mergeVPXEncoderMaxOutputSize, mergeVPXHandle, "merge_vpx_encoder_max_output_size")
	purego.RegisterLibFunc(&mergeVPXEncoderRequestKF, mergeVPXHandle, "merge_vpx_encoder_request_keyframe")
	purego.RegisterLibFunc(&mergeVPXEncoderDestroy, mergeVPXHandle, "merge_vpx_encoder_destroy")

	purego.RegisterLibFunc(&mergeVPXDecoderCreate, mergeVPXHandle, "merge_vpx_decoder_create")
	purego.RegisterLibFunc(&mergeVPXDecoderDecode, mergeVPXHandle, "merge_vpx_decoder_decode")
	purego.RegisterLibFunc(&mergeVPXDecoderDestroy, mergeVPXHandle, "merge_vpx_decoder_destroy")

	purego.RegisterLibFunc(&mergeVPXGetError, mergeVPXHandle, "merge_vpx_get_error")
	purego.RegisterLibFunc(&mergeVPXCodecAvailable, mergeVPXHandle, "merge_vpx_codec_available")
}

// IsVPXAvailable checks if libmerge_vpx is available.
func IsVPXAvailable() bool {
	return loadMergeVPX() == nil
}

func getVPXError() string {
	ptr := mergeVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func vpxCodecType(codec VideoCodec) (int32, error) {
	switch codec {
	case VideoCodecVP8:
		return mergeVPXCodecVP8, nil
	case VideoCodecVP9:
		return mergeVPXCodecVP9, nil
	default:
		return 0, fmt.Errorf("unsupported codec: %s", codec)
	}
}

// VPXEncoder implements VideoEncoder using libmerge_vpx via purego.
type VPXEncoder struct {
	config VideoEncoderConfig
	codec  VideoCodec

	handle    uint64
	outputBuf []byte

	stats   EncoderStats
	statsMu sync.Mutex

	keyframeReq atomic.Bool
	mu          sync.Mutex
}

// NewVP8Encoder creates a new VP8 encoder.
func NewVP8Encoder(config VideoEncoderConfig) (*VPXEncoder, error) {
	return newVPXEncoder(config, VideoCodecVP8)
}

// NewVP9Encoder creates a new VP9 encoder.
func NewVP9Encoder(config VideoEncoderConfig) (*VPXEncoder, error) {
	return newVPXEncoder(config, VideoCodecVP9)
}

func newVPXEncoder(config VideoEncoderConfig, codec VideoCodec) (*VPXEncoder, error) {
	if err := loadMergeVPX(); err != nil {
		return nil, fmt.Errorf("%s encoder not available: %w", codec, err)
	}

	codecType, err := vpxCodecType(codec)
	if err != nil {
		return nil, err
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

	handle := mergeVPXEncoderCreate(
		codecType,
		int32(config.Width),
		int32(config.Height),
		int32(fps),
		int32(bitrateKbps),
		int32(threads),
	)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s encoder: %s", codec, getVPXError())
	}

	maxOutput := mergeVPXEncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(config.Width * config.Height * 3 / 2)
	}

	enc := &VPXEncoder{
		config:    config,
		codec:     codec,
		handle:    handle,
		outputBuf: make([]byte, maxOutput),
	}
	enc.keyframeReq.Store(true)

	return enc, nil
}

// Encode implements VideoEncoder.
func (e *VPXEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
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
	result := mergeVPXEncoderEncode(
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
		return nil, fmt.Errorf("encode failed: %s", getVPXError())
	}
	if result == 0 {
		return nil, nil // Encoder buffering
	}

	ft := FrameTypeDelta
	if frameType == mergeVPXFrameKey {
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
func (e *VPXEncoder) RequestKeyframe() {
	e.keyframeReq.Store(true)
	if e.handle != 0 {
		mergeVPXEncoderRequestKF(e.handle)
	}
}

// Codec implements VideoEncoder.
func (e *VPXEncoder) Codec() VideoCodec { return e.codec }

// Stats implements VideoEncoder.
func (e *VPXEncoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close implements VideoEncoder.
func (e *VPXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != 0 {
		mergeVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

// VPXDecoder implements VideoDecoder using libmerge_vpx via purego.
type VPXDecoder struct {
	config VideoDecoderConfig
	codec  VideoCodec

	handle uint64
	out    *VideoFrame

	// Heap-allocated result struct, reused across calls; the layout must
	// match merge_vpx_decode_result_t in C exactly.
	decodeResult *mergeVPXDecodeResult

	stats   DecoderStats
	statsMu sync.Mutex
	mu      sync.Mutex
}

// NewVP8Decoder creates a new VP8 decoder.
func NewVP8Decoder(config VideoDecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP8)
}

// NewVP9Decoder creates a new VP9 decoder.
func NewVP9Decoder(config VideoDecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP9)
}

func newVPXDecoder(config VideoDecoderConfig, codec VideoCodec) (*VPXDecoder, error) {
	if err := loadMergeVPX(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", codec, err)
	}

	codecType, err := vpxCodecType(codec)
	if err != nil {
		return nil, err
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}

	handle := mergeVPXDecoderCreate(codecType, threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", codec, getVPXError())
	}

	return &VPXDecoder{
		config:       config,
		codec:        codec,
		handle:       handle,
		decodeResult: &mergeVPXDecodeResult{},
	}, nil
}

// Decode implements VideoDecoder.
func (d *VPXDecoder) Decode(encoded *EncodedFrame) (*VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil, errors.New("decoder not initialized")
	}
	if len(encoded.Data) == 0 {
		return nil, errors.New("empty encoded data")
	}

	out := d.decodeResult
	result := mergeVPXDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&encoded.Data[0])),
		int32(len(encoded.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(encoded.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("decode failed: %s", getVPXError())
	}
	if result == 0 {
		return nil, nil // Buffering, no frame yet
	}

	w := int(out.Width)
	h := int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, w, h)
	}

	if d.out == nil || d.out.Width != w || d.out.Height != h {
		d.out = NewI420Frame(w, h)
	}

	uvW := w / 2
	uvH := h / 2
	for row := 0; row < h; row++ {
		src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(out.YPtr)+uintptr(row*int(out.YStride)))), w)
		copy(d.out.Data[0][row*w:row*w+w], src)
	}
	for row := 0; row < uvH; row++ {
		srcU := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(out.UPtr)+uintptr(row*int(out.UVStride)))), uvW)
		srcV := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(out.VPtr)+uintptr(row*int(out.UVStride)))), uvW)
		copy(d.out.Data[1][row*uvW:row*uvW+uvW], srcU)
		copy(d.out.Data[2][row*uvW:row*uvW+uvW], srcV)
	}

	d.out.Timestamp = encoded.Timestamp
	d.out.Duration = encoded.Duration

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(len(encoded.Data))
	d.statsMu.Unlock()

	return d.out, nil
}

// Codec implements VideoDecoder.
func (d *VPXDecoder) Codec() VideoCodec { return d.codec }

// Stats implements VideoDecoder.
func (d *VPXDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements VideoDecoder.
func (d *VPXDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		mergeVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// Register VP8/VP9 encoders and decoders (libvpx).
func init() {
	if loadMergeVPX() != nil {
		return
	}

	if mergeVPXCodecAvailable(mergeVPXCodecVP8) != 0 {
		registerVideoEncoder(VideoCodecVP8, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return NewVP8Encoder(config)
		})
		registerVideoDecoder(VideoCodecVP8, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewVP8Decoder(config)
		})
	}

	if mergeVPXCodecAvailable(mergeVPXCodecVP9) != 0 {
		registerVideoEncoder(VideoCodecVP9, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return NewVP9Encoder(config)
		})
		registerVideoDecoder(VideoCodecVP9, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewVP9Decoder(config)
		})
	}
}
