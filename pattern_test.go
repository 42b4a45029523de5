package merger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPatternClip_VideoFrames(t *testing.T) {
	config := DefaultPatternConfig()
	config.Duration = time.Second
	config.FPS = 10

	source, err := PatternClip("test", config).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer source.Close()

	ctx := context.Background()
	var last int64 = -1
	frames := 0
	for {
		frame, err := source.Video.ReadFrame(ctx)
		if errors.Is(err, ErrEndOfClip) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame.Width != config.Width || frame.Height != config.Height {
			t.Fatalf("frame is %dx%d", frame.Width, frame.Height)
		}
		if frame.Timestamp <= last {
			t.Fatalf("timestamps not increasing: %d after %d", frame.Timestamp, last)
		}
		last = frame.Timestamp
		frames++
	}

	if frames != 10 {
		t.Errorf("frames = %d, want 10", frames)
	}

	// EOF is sticky.
	if _, err := source.Video.ReadFrame(ctx); !errors.Is(err, ErrEndOfClip) {
		t.Errorf("expected ErrEndOfClip after end, got %v", err)
	}
}

func TestPatternClip_AudioSamples(t *testing.T) {
	config := DefaultPatternConfig()
	config.Duration = 500 * time.Millisecond

	source, err := PatternClip("test", config).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer source.Close()

	if source.Audio == nil {
		t.Fatal("expected an audio source")
	}
	if source.Audio.SampleRate() != 48000 || source.Audio.Channels() != 2 {
		t.Fatalf("format = %d Hz %d ch", source.Audio.SampleRate(), source.Audio.Channels())
	}

	ctx := context.Background()
	total := 0
	nonZero := false
	for {
		samples, err := source.Audio.ReadSamples(ctx)
		if errors.Is(err, ErrEndOfClip) {
			break
		}
		if err != nil {
			t.Fatalf("ReadSamples: %v", err)
		}
		total += samples.SampleCount
		for _, b := range samples.Data {
			if b != 0 {
				nonZero = true
				break
			}
		}
	}

	if want := 48000 / 2; total != want {
		t.Errorf("total samples = %d, want %d", total, want)
	}
	if !nonZero {
		t.Error("tone should produce non-silent samples")
	}
}

func TestPatternClip_NoAudioWhenToneDisabled(t *testing.T) {
	config := DefaultPatternConfig()
	config.ToneHz = 0

	source, err := PatternClip("silent", config).Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer source.Close()

	if source.Audio != nil {
		t.Error("expected no audio source when tone is disabled")
	}
}
