package merger

import (
	"context"
	"math"
	"time"
)

// PatternConfig configures a synthetic test clip.
type PatternConfig struct {
	Width      int
	Height     int
	FPS        int
	Duration   time.Duration
	SampleRate int
	Channels   int
	ToneHz     float64 // 0 disables the audio track
}

// DefaultPatternConfig returns a 640x360 30fps clip, two seconds long,
// with a 440 Hz tone.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Width:      640,
		Height:     360,
		FPS:        30,
		Duration:   2 * time.Second,
		SampleRate: 48000,
		Channels:   2,
		ToneHz:     440,
	}
}

// PatternClip builds a fully synthetic clip: moving color bars with a
// sweeping scanline, plus a sine tone. It needs no codec libraries or
// input files, which makes it useful for tests and smoke runs.
func PatternClip(name string, config PatternConfig) Clip {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = 640, 360
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.Duration <= 0 {
		config.Duration = 2 * time.Second
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}

	return Clip{
		Name: name,
		Open: func() (*ClipSource, error) {
			src := &ClipSource{
				Video: newPatternVideoSource(config),
			}
			if config.ToneHz > 0 {
				src.Audio = newPatternAudioSource(config)
			}
			return src, nil
		},
	}
}

// YUV values for the classic 75% color bars.
var patternBars = [7][3]byte{
	{180, 128, 128}, // white
	{162, 44, 142},  // yellow
	{131, 156, 44},  // cyan
	{112, 72, 58},   // green
	{84, 184, 198},  // magenta
	{65, 100, 212},  // red
	{35, 212, 114},  // blue
}

type patternVideoSource struct {
	config     PatternConfig
	frameIndex int
	total      int
}

func newPatternVideoSource(config PatternConfig) *patternVideoSource {
	total := int(config.Duration.Seconds() * float64(config.FPS))
	if total < 1 {
		total = 1
	}
	return &patternVideoSource{config: config, total: total}
}

func (s *patternVideoSource) Start(ctx context.Context) error { return nil }
func (s *patternVideoSource) Stop() error                     { return nil }
func (s *patternVideoSource) Close() error                    { return nil }

func (s *patternVideoSource) Config() SourceConfig {
	return SourceConfig{
		Width:  s.config.Width,
		Height: s.config.Height,
		FPS:    s.config.FPS,
		Format: PixelFormatI420,
	}
}

func (s *patternVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.frameIndex >= s.total {
		return nil, ErrEndOfClip
	}

	w, h := s.config.Width, s.config.Height
	frame := NewI420Frame(w, h)

	barWidth := w / len(patternBars)
	if barWidth < 1 {
		barWidth = 1
	}
	for x := 0; x < w; x++ {
		bar := x / barWidth
		if bar >= len(patternBars) {
			bar = len(patternBars) - 1
		}
		for y := 0; y < h; y++ {
			frame.Data[0][y*w+x] = patternBars[bar][0]
		}
	}
	uvW, uvH := w/2, h/2
	for x := 0; x < uvW; x++ {
		bar := (x * 2) / barWidth
		if bar >= len(patternBars) {
			bar = len(patternBars) - 1
		}
		for y := 0; y < uvH; y++ {
			frame.Data[1][y*uvW+x] = patternBars[bar][1]
			frame.Data[2][y*uvW+x] = patternBars[bar][2]
		}
	}

	// A bright scanline sweeps down the frame so motion is visible.
	line := (s.frameIndex * 4) % h
	for x := 0; x < w; x++ {
		frame.Data[0][line*w+x] = 235
	}

	frameDur := int64(time.Second) / int64(s.config.FPS)
	frame.Timestamp = int64(s.frameIndex) * frameDur
	frame.Duration = frameDur
	s.frameIndex++

	return frame, nil
}

type patternAudioSource struct {
	config      PatternConfig
	samplesRead int
	total       int
	phase       float64
}

func newPatternAudioSource(config PatternConfig) *patternAudioSource {
	return &patternAudioSource{
		config: config,
		total:  int(config.Duration.Seconds() * float64(config.SampleRate)),
	}
}

func (s *patternAudioSource) Start(ctx context.Context) error { return nil }
func (s *patternAudioSource) Stop() error                     { return nil }
func (s *patternAudioSource) Close() error                    { return nil }
func (s *patternAudioSource) SampleRate() int                 { return s.config.SampleRate }
func (s *patternAudioSource) Channels() int                   { return s.config.Channels }

func (s *patternAudioSource) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.samplesRead >= s.total {
		return nil, ErrEndOfClip
	}

	// 20 ms chunks, matching the mix bus frame size.
	count := s.config.SampleRate / 50
	if remaining := s.total - s.samplesRead; count > remaining {
		count = remaining
	}

	data := make([]byte, count*s.config.Channels*2)
	step := 2 * math.Pi * s.config.ToneHz / float64(s.config.SampleRate)
	for i := 0; i < count; i++ {
		v := int16(math.Sin(s.phase) * 0.25 * math.MaxInt16)
		s.phase += step
		for ch := 0; ch < s.config.Channels; ch++ {
			off := (i*s.config.Channels + ch) * 2
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
		}
	}

	samples := &AudioSamples{
		Data:        data,
		SampleRate:  s.config.SampleRate,
		Channels:    s.config.Channels,
		SampleCount: count,
		Format:      AudioFormatS16,
		Timestamp:   int64(s.samplesRead) * int64(time.Second) / int64(s.config.SampleRate),
	}
	s.samplesRead += count

	return samples, nil
}
