package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder states
const (
	recorderIdle int32 = iota
	recorderRecording
	recorderStopped
)

// ErrRecorderActive is returned when Start is called on a running recorder.
var ErrRecorderActive = errors.New("recorder already active")

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// KeyframeInterval is the number of video frames between forced
	// keyframes. Defaults to 60.
	KeyframeInterval int

	// OnChunk, if set, is invoked with each chunk of muxed output as it
	// is produced. The chunk is only valid for the duration of the call.
	OnChunk ChunkHandler

	// Factories override codec and muxer construction, mostly for tests.
	// Nil fields fall back to the codec registry and muxer registry.
	NewVideoEncoder func(VideoEncoderConfig) (VideoEncoder, error)
	NewAudioEncoder func(AudioEncoderConfig) (AudioEncoder, error)
	NewMuxer        MuxerFactory

	Logger *slog.Logger
}

// DefaultRecorderConfig returns a RecorderConfig with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		KeyframeInterval: 60,
	}
}

// Recorder pulls raw frames from a video source and an audio source,
// encodes them, and muxes the result into a single in-memory artifact.
//
// The video encoder and muxer are created lazily when the first video
// frame arrives, so recording can begin before the output dimensions
// are known.
type Recorder struct {
	config RecorderConfig
	logger *slog.Logger

	state atomic.Int32

	spec  OutputSpec
	video VideoSource
	audio AudioSource

	videoEnc VideoEncoder
	audioEnc AudioEncoder

	muxMu        sync.Mutex
	muxer        Muxer
	pendingAudio []*EncodedAudio

	chunks *chunkLog

	lastVideoEnd atomic.Int64 // ns
	lastAudioEnd atomic.Int64 // ns

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu    sync.Mutex
	firstErr error
}

// NewRecorder creates a Recorder with the given configuration.
func NewRecorder(config RecorderConfig) *Recorder {
	if config.KeyframeInterval <= 0 {
		config.KeyframeInterval = 60
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		config: config,
		logger: logger.With("component", "recorder"),
	}
}

// Start begins recording from the given sources into the negotiated
// output format. audio may be nil, or the spec may declare no audio
// track; either way a video-only artifact is produced.
func (r *Recorder) Start(ctx context.Context, spec OutputSpec, video VideoSource, audio AudioSource) error {
	if !r.state.CompareAndSwap(recorderIdle, recorderRecording) {
		return ErrRecorderActive
	}

	r.spec = spec
	r.video = video
	r.audio = audio
	r.chunks = newChunkLog(r.config.OnChunk)
	r.ctx, r.cancel = context.WithCancel(ctx)

	if spec.HasAudio() && audio != nil {
		enc, err := r.newAudioEncoder(AudioEncoderConfig{
			Codec:      spec.AudioCodec,
			SampleRate: audio.SampleRate(),
			Channels:   audio.Channels(),
			BitrateBps: spec.AudioBitrateBps,
		})
		if err != nil {
			r.state.Store(recorderIdle)
			r.cancel()
			return fmt.Errorf("create audio encoder: %w", err)
		}
		r.audioEnc = enc
	}

	r.logger.Info("recording started",
		"mime_type", spec.MimeType,
		"video_codec", spec.VideoCodec.String(),
		"has_audio", r.audioEnc != nil)

	r.wg.Add(1)
	go r.videoLoop()

	if r.audioEnc != nil {
		r.wg.Add(1)
		go r.audioLoop()
	}

	return nil
}

// Stop ends the recording and returns the assembled artifact. Calling
// Stop on a recorder that never started returns an empty artifact.
func (r *Recorder) Stop() (Artifact, error) {
	if !r.state.CompareAndSwap(recorderRecording, recorderStopped) {
		return Artifact{}, nil
	}

	r.cancel()
	r.wg.Wait()

	r.muxMu.Lock()
	if r.muxer != nil {
		if err := r.muxer.Close(); err != nil {
			r.recordErr(fmt.Errorf("close muxer: %w", err))
		}
		r.muxer = nil
	}
	r.pendingAudio = nil
	r.muxMu.Unlock()

	if r.videoEnc != nil {
		r.videoEnc.Close()
		r.videoEnc = nil
	}
	if r.audioEnc != nil {
		r.audioEnc.Close()
		r.audioEnc = nil
	}

	duration := time.Duration(r.lastVideoEnd.Load())
	if audioEnd := time.Duration(r.lastAudioEnd.Load()); audioEnd > duration {
		duration = audioEnd
	}

	artifact := Artifact{
		Data:     r.chunks.Assemble(),
		MimeType: r.spec.MimeType,
		Duration: duration,
	}

	r.errMu.Lock()
	err := r.firstErr
	r.errMu.Unlock()

	r.logger.Info("recording stopped",
		"bytes", len(artifact.Data),
		"duration", artifact.Duration)

	return artifact, err
}

// Err reports the first error encountered by the encode loops.
func (r *Recorder) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.firstErr
}

func (r *Recorder) recordErr(err error) {
	r.errMu.Lock()
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.errMu.Unlock()
}

func (r *Recorder) newVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	if r.config.NewVideoEncoder != nil {
		return r.config.NewVideoEncoder(config)
	}
	return NewVideoEncoder(config)
}

func (r *Recorder) newAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	if r.config.NewAudioEncoder != nil {
		return r.config.NewAudioEncoder(config)
	}
	return NewAudioEncoder(config)
}

func (r *Recorder) videoLoop() {
	defer r.wg.Done()

	frameCount := 0
	for {
		frame, err := r.video.ReadFrame(r.ctx)
		if err != nil {
			return
		}
		if frame == nil {
			continue
		}

		if r.videoEnc == nil {
			if err := r.initVideoPath(frame); err != nil {
				r.recordErr(err)
				r.logger.Error("video path init failed", "error", err)
				return
			}
		}

		if frameCount%r.config.KeyframeInterval == 0 {
			r.videoEnc.RequestKeyframe()
		}
		frameCount++

		encoded, err := r.videoEnc.Encode(frame)
		if err != nil {
			r.recordErr(fmt.Errorf("encode video: %w", err))
			r.logger.Error("video encode failed", "error", err)
			return
		}
		if encoded == nil {
			continue
		}

		r.lastVideoEnd.Store(encoded.Timestamp + encoded.Duration)

		r.muxMu.Lock()
		err = r.muxer.WriteVideo(encoded)
		r.muxMu.Unlock()
		if err != nil {
			r.recordErr(fmt.Errorf("mux video: %w", err))
			r.logger.Error("video mux failed", "error", err)
			return
		}
	}
}

// initVideoPath creates the video encoder and muxer once the first frame
// reveals the output dimensions, then flushes any audio buffered in the
// meantime.
func (r *Recorder) initVideoPath(frame *VideoFrame) error {
	fps := 30
	if cfg := r.video.Config(); cfg.FPS > 0 {
		fps = cfg.FPS
	}

	enc, err := r.newVideoEncoder(VideoEncoderConfig{
		Codec:      r.spec.VideoCodec,
		Width:      frame.Width,
		Height:     frame.Height,
		FPS:        fps,
		BitrateBps: r.spec.VideoBitrateBps,
	})
	if err != nil {
		return fmt.Errorf("create video encoder: %w", err)
	}
	r.videoEnc = enc

	info := StreamInfo{
		Width:  frame.Width,
		Height: frame.Height,
		FPS:    fps,
	}
	if r.audioEnc != nil {
		info.SampleRate = r.audio.SampleRate()
		info.Channels = r.audio.Channels()
	}

	newMuxer := r.config.NewMuxer
	if newMuxer == nil {
		newMuxer = NewMuxer
	}
	mux, err := newMuxer(r.spec, info, r.chunks)
	if err != nil {
		enc.Close()
		r.videoEnc = nil
		return fmt.Errorf("create muxer: %w", err)
	}

	r.muxMu.Lock()
	r.muxer = mux
	pending := r.pendingAudio
	r.pendingAudio = nil
	for _, ea := range pending {
		if err := mux.WriteAudio(ea); err != nil {
			r.muxMu.Unlock()
			return fmt.Errorf("mux buffered audio: %w", err)
		}
	}
	r.muxMu.Unlock()

	r.logger.Info("video path initialized",
		"width", frame.Width, "height", frame.Height, "fps", fps)

	return nil
}

func (r *Recorder) audioLoop() {
	defer r.wg.Done()

	for {
		samples, err := r.audio.ReadSamples(r.ctx)
		if err != nil {
			return
		}
		if samples == nil {
			continue
		}

		encoded, err := r.audioEnc.Encode(samples)
		if err != nil {
			r.recordErr(fmt.Errorf("encode audio: %w", err))
			r.logger.Error("audio encode failed", "error", err)
			return
		}
		if encoded == nil {
			continue
		}

		r.lastAudioEnd.Store(encoded.Timestamp + encoded.Duration)

		r.muxMu.Lock()
		if r.muxer == nil {
			// Video path not initialized yet. Hold encoded audio so
			// nothing is lost before the first frame arrives.
			r.pendingAudio = append(r.pendingAudio, encoded)
			r.muxMu.Unlock()
			continue
		}
		err = r.muxer.WriteAudio(encoded)
		r.muxMu.Unlock()
		if err != nil {
			r.recordErr(fmt.Errorf("mux audio: %w", err))
			r.logger.Error("audio mux failed", "error", err)
			return
		}
	}
}
