package merger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fakeMergerConfig(t *testing.T) (MergerConfig, *fakeVideoEncoder, **fakeMuxer) {
	t.Helper()

	videoEnc := &fakeVideoEncoder{}
	muxer := new(*fakeMuxer)

	config := DefaultMergerConfig()
	config.Canvas.FPS = 60 // capture a few frames even from very short clips
	config.Recorder = fakeRecorderConfig(videoEnc, &fakeAudioEncoder{}, muxer)
	config.Probe = SupportProbeFunc(func(s OutputSpec) bool {
		return s.MimeType == "video/webm"
	})
	return config, videoEnc, muxer
}

func TestMerger_RunMergesClips(t *testing.T) {
	config, videoEnc, _ := fakeMergerConfig(t)

	var mu sync.Mutex
	var phases []Phase
	config.OnStateChange = func(s RunState) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}

	m := NewMerger(config)

	clips := ClipList{
		PatternClip("part 1", shortPatternConfig()),
		PatternClip("part 2", shortPatternConfig()),
	}

	artifact, err := m.Run(context.Background(), clips)
	if err != nil {
		t.Fatalf("Run: %v", err)
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
	if videoEnc.Stats().FramesEncoded == 0 {
		t.Error("no frames were encoded")
	}

	state := m.State()
	if state.Phase != PhaseCompleted {
		t.Errorf("phase = %s", state.Phase)
	}
	if state.RunID == "" {
		t.Error("missing run ID")
	}
	if state.ClipCount != 2 || state.ClipIndex != 2 {
		t.Errorf("clip progress = %d/%d", state.ClipIndex, state.ClipCount)
	}
	if state.Progress != 100 {
		t.Errorf("progress = %d, want 100", state.Progress)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 || phases[len(phases)-1] != PhaseCompleted {
		t.Errorf("observed phases = %v", phases)
	}
}

func TestMerger_RunRejectsEmptyList(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)

	var observed []RunState
	config.OnStateChange = func(s RunState) {
		observed = append(observed, s)
	}
	m := NewMerger(config)

	if _, err := m.Run(context.Background(), nil); !errors.Is(err, ErrNoClips) {
		t.Errorf("expected ErrNoClips, got %v", err)
	}

	state := m.State()
	if state.Phase != PhaseErrored {
		t.Errorf("phase = %s after rejected run", state.Phase)
	}
	if state.Message == "" {
		t.Error("missing error message")
	}
	if !errors.Is(state.Err, ErrNoClips) {
		t.Errorf("state error = %v", state.Err)
	}
	if len(observed) != 1 || observed[0].Phase != PhaseErrored {
		t.Errorf("observed states = %+v", observed)
	}
}

func TestMerger_ClipOpenFailureEndsRun(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)
	m := NewMerger(config)

	boom := errors.New("corrupt file")
	clips := ClipList{
		PatternClip("good", shortPatternConfig()),
		{Name: "bad", Open: func() (*ClipSource, error) { return nil, boom }},
	}

	_, err := m.Run(context.Background(), clips)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	var clipErr *ClipError
	if !errors.As(err, &clipErr) || clipErr.Clip != "bad" {
		t.Errorf("error = %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("cause not preserved")
	}
	if m.State().Phase != PhaseErrored {
		t.Errorf("phase = %s", m.State().Phase)
	}
}

func TestMerger_ClipFailureSkipsRemainingClips(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)
	m := NewMerger(config)

	thirdOpened := false
	clips := ClipList{
		PatternClip("first", shortPatternConfig()),
		{Name: "second", Open: func() (*ClipSource, error) { return nil, errors.New("corrupt file") }},
		{Name: "third", Open: func() (*ClipSource, error) {
			thirdOpened = true
			return PatternClip("third", shortPatternConfig()).Open()
		}},
	}

	if _, err := m.Run(context.Background(), clips); err == nil {
		t.Fatal("expected run to fail")
	}
	if thirdOpened {
		t.Error("clip after the failing one was opened")
	}
	if state := m.State(); state.ClipIndex != 2 {
		t.Errorf("clip index = %d, want 2", state.ClipIndex)
	}
}

func TestMerger_Cancel(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)
	m := NewMerger(config)

	long := shortPatternConfig()
	long.Duration = 10 * time.Second
	clips := ClipList{PatternClip("long", long)}

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background(), clips)
		errCh <- err
	}()

	waitFor(t, 2*time.Second, func() bool {
		return m.State().Phase == PhaseProcessing && m.State().ClipIndex == 1
	})
	m.Cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("cancelled run should stop cleanly, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	state := m.State()
	if state.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want completed", state.Phase)
	}
	if state.Message != "cancelled" {
		t.Errorf("message = %q", state.Message)
	}
	if state.Err != nil {
		t.Errorf("state error = %v", state.Err)
	}
}

func TestMerger_SingleRunAtATime(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)
	m := NewMerger(config)

	long := shortPatternConfig()
	long.Duration = 5 * time.Second
	go m.Run(context.Background(), ClipList{PatternClip("long", long)})

	waitFor(t, 2*time.Second, func() bool {
		return m.State().Phase == PhaseProcessing
	})
	defer m.Cancel()

	if _, err := m.Run(context.Background(), ClipList{PatternClip("second", shortPatternConfig())}); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}
}

func TestMerger_Reset(t *testing.T) {
	config, _, _ := fakeMergerConfig(t)
	m := NewMerger(config)

	clips := ClipList{PatternClip("clip", shortPatternConfig())}
	if _, err := m.Run(context.Background(), clips); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.State().Phase != PhaseCompleted {
		t.Fatalf("phase = %s", m.State().Phase)
	}

	// A finished run's state stays readable until Reset; a new run is
	// refused until then.
	if _, err := m.Run(context.Background(), clips); !errors.Is(err, ErrRunFinished) {
		t.Errorf("expected ErrRunFinished, got %v", err)
	}

	m.Reset()
	state := m.State()
	if state.Phase != PhaseIdle || state.RunID != "" || !state.Artifact.Empty() {
		t.Errorf("state after reset = %+v", state)
	}

	if _, err := m.Run(context.Background(), clips); err != nil {
		t.Errorf("Run after reset: %v", err)
	}
}
