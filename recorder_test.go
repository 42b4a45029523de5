package merger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// stubVideoSource emits count solid frames, closes done, then blocks
// until the context ends. It mimics the canvas capture behavior.
type stubVideoSource struct {
	width, height int
	fps           int
	count         int
	done          chan struct{}
	gate          chan struct{} // when non-nil, blocks the first frame

	emitted int
}

func newStubVideoSource(width, height, fps, count int) *stubVideoSource {
	return &stubVideoSource{
		width: width, height: height, fps: fps, count: count,
		done: make(chan struct{}),
	}
}

func (s *stubVideoSource) Start(ctx context.Context) error { return nil }
func (s *stubVideoSource) Stop() error                     { return nil }
func (s *stubVideoSource) Close() error                    { return nil }

func (s *stubVideoSource) Config() SourceConfig {
	return SourceConfig{Width: s.width, Height: s.height, FPS: s.fps, Format: PixelFormatI420}
}

func (s *stubVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if s.emitted == 0 && s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.emitted >= s.count {
		close(s.done)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	frameDur := int64(time.Second) / int64(s.fps)
	frame := NewI420Frame(s.width, s.height)
	frame.Timestamp = int64(s.emitted) * frameDur
	frame.Duration = frameDur
	s.emitted++
	return frame, nil
}

// fakeVideoEncoder emits a small payload per frame, keyframe on request.
type fakeVideoEncoder struct {
	codec VideoCodec

	mu           sync.Mutex
	encoded      int
	keyframeNext bool
	stats        EncoderStats
}

func (e *fakeVideoEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ft := FrameTypeDelta
	if e.keyframeNext || e.encoded == 0 {
		ft = FrameTypeKey
		e.keyframeNext = false
	}
	e.encoded++
	e.stats.FramesEncoded++
	if ft == FrameTypeKey {
		e.stats.KeyframesEncoded++
	}
	e.stats.BytesEncoded += 8

	return &EncodedFrame{
		Data:      []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, byte(e.encoded)},
		FrameType: ft,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}, nil
}

func (e *fakeVideoEncoder) RequestKeyframe() {
	e.mu.Lock()
	e.keyframeNext = true
	e.mu.Unlock()
}

func (e *fakeVideoEncoder) Codec() VideoCodec { return e.codec }

func (e *fakeVideoEncoder) Stats() EncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *fakeVideoEncoder) Close() error { return nil }

type fakeAudioEncoder struct {
	mu      sync.Mutex
	encoded int
}

func (e *fakeAudioEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	e.encoded++
	e.mu.Unlock()

	return &EncodedAudio{
		Data:      []byte{0xA0, 0xD1, 0x00},
		Timestamp: samples.Timestamp,
		Duration:  int64(samples.SampleCount) * int64(time.Second) / int64(samples.SampleRate),
	}, nil
}

func (e *fakeAudioEncoder) Codec() AudioCodec { return AudioCodecOpus }
func (e *fakeAudioEncoder) Close() error      { return nil }

// fakeMuxer appends raw payloads to the output writer.
type fakeMuxer struct {
	w io.Writer

	mu          sync.Mutex
	videoWrites int
	audioWrites int
}

func (m *fakeMuxer) WriteVideo(frame *EncodedFrame) error {
	m.mu.Lock()
	m.videoWrites++
	m.mu.Unlock()
	_, err := m.w.Write(frame.Data)
	return err
}

func (m *fakeMuxer) WriteAudio(audio *EncodedAudio) error {
	m.mu.Lock()
	m.audioWrites++
	m.mu.Unlock()
	_, err := m.w.Write(audio.Data)
	return err
}

func (m *fakeMuxer) Close() error { return nil }

func fakeRecorderConfig(videoEnc *fakeVideoEncoder, audioEnc *fakeAudioEncoder, muxer **fakeMuxer) RecorderConfig {
	config := DefaultRecorderConfig()
	config.NewVideoEncoder = func(c VideoEncoderConfig) (VideoEncoder, error) {
		videoEnc.codec = c.Codec
		return videoEnc, nil
	}
	config.NewAudioEncoder = func(AudioEncoderConfig) (AudioEncoder, error) {
		return audioEnc, nil
	}
	config.NewMuxer = func(spec OutputSpec, info StreamInfo, w io.Writer) (Muxer, error) {
		m := &fakeMuxer{w: w}
		*muxer = m
		return m, nil
	}
	return config
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func webmVP8Spec() OutputSpec {
	return OutputSpec{
		Container:  ContainerWebM,
		VideoCodec: VideoCodecVP8,
		AudioCodec: AudioCodecOpus,
		MimeType:   "video/webm",
	}
}

func TestRecorder_ProducesArtifact(t *testing.T) {
	videoEnc := &fakeVideoEncoder{}
	audioEnc := &fakeAudioEncoder{}
	var muxer *fakeMuxer

	recorder := NewRecorder(fakeRecorderConfig(videoEnc, audioEnc, &muxer))

	video := newStubVideoSource(320, 240, 30, 10)
	audio := &stubAudioSource{sampleRate: 48000, channels: 2, chunks: 5, value: 1}

	if err := recorder.Start(context.Background(), webmVP8Spec(), video, audio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-video.done:
	case <-time.After(2 * time.Second):
		t.Fatal("video source never drained")
	}

	artifact, err := recorder.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if artifact.Empty() {
		t.Fatal("artifact is empty")
	}
	if artifact.MimeType != "video/webm" {
		t.Errorf("mime type = %q", artifact.MimeType)
	}
	if artifact.Duration <= 0 {
		t.Errorf("duration = %v", artifact.Duration)
	}
	if muxer.videoWrites != 10 {
		t.Errorf("video writes = %d, want 10", muxer.videoWrites)
	}
	if videoEnc.Stats().KeyframesEncoded == 0 {
		t.Error("no keyframes encoded")
	}
}

func TestRecorder_BuffersAudioBeforeFirstFrame(t *testing.T) {
	videoEnc := &fakeVideoEncoder{}
	audioEnc := &fakeAudioEncoder{}
	var muxer *fakeMuxer

	recorder := NewRecorder(fakeRecorderConfig(videoEnc, audioEnc, &muxer))

	// Audio flows immediately; video is gated so the muxer does not
	// exist yet when the first audio packets are encoded.
	video := newStubVideoSource(320, 240, 30, 1)
	video.gate = make(chan struct{})
	audio := &stubAudioSource{sampleRate: 48000, channels: 2, chunks: 3, value: 1}

	if err := recorder.Start(context.Background(), webmVP8Spec(), video, audio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		audioEnc.mu.Lock()
		defer audioEnc.mu.Unlock()
		return audioEnc.encoded == 3
	})

	close(video.gate)
	select {
	case <-video.done:
	case <-time.After(2 * time.Second):
		t.Fatal("video source never drained")
	}

	artifact, err := recorder.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if artifact.Empty() {
		t.Fatal("artifact is empty")
	}
	if audioEnc.encoded != 3 {
		t.Errorf("audio chunks encoded = %d, want 3", audioEnc.encoded)
	}
	if got := muxer.audioWrites; got != 3 {
		t.Errorf("audio writes = %d, want 3 (buffered audio must not be dropped)", got)
	}
}

func TestRecorder_StopWithoutStart(t *testing.T) {
	recorder := NewRecorder(DefaultRecorderConfig())

	artifact, err := recorder.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !artifact.Empty() {
		t.Error("expected empty artifact from idle recorder")
	}
}

func TestRecorder_VideoOnly(t *testing.T) {
	videoEnc := &fakeVideoEncoder{}
	var muxer *fakeMuxer

	config := fakeRecorderConfig(videoEnc, &fakeAudioEncoder{}, &muxer)
	recorder := NewRecorder(config)

	spec := OutputSpec{
		Container:  ContainerMP4,
		VideoCodec: VideoCodecH264,
		MimeType:   "video/mp4",
	}
	video := newStubVideoSource(640, 360, 30, 5)

	if err := recorder.Start(context.Background(), spec, video, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-video.done:
	case <-time.After(2 * time.Second):
		t.Fatal("video source never drained")
	}

	artifact, err := recorder.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if artifact.Empty() {
		t.Fatal("artifact is empty")
	}
	if muxer.audioWrites != 0 {
		t.Errorf("audio writes = %d on video-only spec", muxer.audioWrites)
	}
}

func TestRecorder_DoubleStart(t *testing.T) {
	videoEnc := &fakeVideoEncoder{}
	var muxer *fakeMuxer
	recorder := NewRecorder(fakeRecorderConfig(videoEnc, &fakeAudioEncoder{}, &muxer))

	video := newStubVideoSource(320, 240, 30, 1)
	if err := recorder.Start(context.Background(), webmVP8Spec(), video, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer recorder.Stop()

	if err := recorder.Start(context.Background(), webmVP8Spec(), video, nil); err != ErrRecorderActive {
		t.Errorf("second Start: expected ErrRecorderActive, got %v", err)
	}
}
