package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a merge run.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseCompleted
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProcessing:
		return "processing"
	case PhaseCompleted:
		return "completed"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// RunState is a snapshot of a merge run's progress.
type RunState struct {
	RunID     string
	Phase     Phase
	Message   string
	ClipIndex int // 1-based index of the clip in flight, 0 before playback
	ClipCount int
	Progress  int // 0..100
	Artifact  Artifact
	Err       error
}

// ErrRunActive is returned when Run is called while a run is in flight.
var ErrRunActive = errors.New("merge run already active")

// ErrRunFinished is returned when Run is called on a merger still holding
// a finished run's state. Reset clears it.
var ErrRunFinished = errors.New("merge run finished, reset required")

// MergerConfig configures a Merger.
type MergerConfig struct {
	Canvas   CanvasConfig
	Bus      MixBusConfig
	Recorder RecorderConfig

	// Probe decides which output formats the host supports. Nil uses
	// the codec and muxer registries.
	Probe SupportProbe

	// OnStateChange, if set, receives a snapshot after every state
	// transition. Called synchronously; keep it fast.
	OnStateChange func(RunState)

	Logger *slog.Logger
}

// DefaultMergerConfig returns a MergerConfig with sensible defaults.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		Canvas:   DefaultCanvasConfig(),
		Bus:      DefaultMixBusConfig(),
		Recorder: DefaultRecorderConfig(),
	}
}

// Merger merges an ordered list of clips into a single media artifact.
// Clips play sequentially onto a shared canvas and mix bus while a
// recorder encodes the composite into one file.
//
// A Merger executes one run at a time. After a run finishes its state
// (including the artifact) stays readable until Reset.
type Merger struct {
	config MergerConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   RunState
	running bool
	cancel  context.CancelFunc
}

// NewMerger creates a Merger with the given configuration.
func NewMerger(config MergerConfig) *Merger {
	if config.Canvas.FPS <= 0 {
		config.Canvas = DefaultCanvasConfig()
	}
	if config.Bus.SampleRate <= 0 {
		config.Bus = DefaultMixBusConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		config: config,
		logger: logger.With("component", "merger"),
		state:  RunState{Phase: PhaseIdle},
	}
}

// State returns a snapshot of the current run state.
func (m *Merger) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cancel stops the run in flight, if any. The run winds down the current
// clip, stops the recorder, and completes with the artifact recorded so
// far.
func (m *Merger) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears a finished run's state back to idle. It is a no-op while
// a run is in flight.
func (m *Merger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.state = RunState{Phase: PhaseIdle}
}

func (m *Merger) transition(update func(*RunState)) {
	m.mu.Lock()
	update(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	if m.config.OnStateChange != nil {
		m.config.OnStateChange(snapshot)
	}
}

// Run merges the clips in order and returns the resulting artifact.
// It blocks until the run completes, fails, or is cancelled. Cancellation
// is a clean early stop: the run ends in the completed phase with
// whatever the recorder assembled so far.
func (m *Merger) Run(ctx context.Context, clips ClipList) (Artifact, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Artifact{}, ErrRunActive
	}
	if m.state.Phase == PhaseCompleted || m.state.Phase == PhaseErrored {
		m.mu.Unlock()
		return Artifact{}, ErrRunFinished
	}
	if err := clips.Validate(); err != nil {
		m.state = RunState{Phase: PhaseErrored, Message: err.Error(), Err: err}
		snapshot := m.state
		m.mu.Unlock()
		if m.config.OnStateChange != nil {
			m.config.OnStateChange(snapshot)
		}
		return Artifact{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.state = RunState{
		RunID:     uuid.NewString(),
		Phase:     PhaseProcessing,
		Message:   "starting",
		ClipCount: len(clips),
	}
	m.mu.Unlock()
	defer cancel()

	if m.config.OnStateChange != nil {
		m.config.OnStateChange(m.State())
	}

	logger := m.logger.With("run_id", m.State().RunID)
	logger.Info("merge run started", "clips", len(clips))

	artifact, err := m.run(runCtx, clips, logger)

	m.mu.Lock()
	m.running = false
	m.cancel = nil
	if err != nil {
		m.state.Phase = PhaseErrored
		m.state.Err = err
		m.state.Message = err.Error()
	} else {
		m.state.Phase = PhaseCompleted
		m.state.Artifact = artifact
		m.state.Progress = 100
		m.state.Message = "completed"
		if runCtx.Err() != nil {
			m.state.Message = "cancelled"
		}
	}
	snapshot := m.state
	m.mu.Unlock()

	if m.config.OnStateChange != nil {
		m.config.OnStateChange(snapshot)
	}

	if err != nil {
		logger.Error("merge run failed", "error", err)
		return Artifact{}, err
	}
	logger.Info("merge run completed",
		"bytes", len(artifact.Data),
		"duration", artifact.Duration,
		"mime_type", artifact.MimeType)
	return artifact, nil
}

func (m *Merger) run(ctx context.Context, clips ClipList, logger *slog.Logger) (Artifact, error) {
	spec := Negotiate(m.config.Probe)
	logger.Info("negotiated output format", "mime_type", spec.MimeType)

	canvas := NewCanvas(m.config.Canvas)
	if err := canvas.Start(ctx); err != nil {
		return Artifact{}, fmt.Errorf("start canvas: %w", err)
	}
	defer canvas.Close()

	var bus *MixBus
	if spec.HasAudio() {
		bus = NewMixBus(m.config.Bus)
		if err := bus.Start(ctx); err != nil {
			return Artifact{}, fmt.Errorf("start mix bus: %w", err)
		}
		defer bus.Close()
	}

	// The recorder starts before the first clip plays. It tolerates the
	// unknown canvas dimensions: the canvas emits nothing until the
	// first clip locks them, and the encoder is created on the first
	// frame that comes through.
	recorderConfig := m.config.Recorder
	if recorderConfig.Logger == nil {
		recorderConfig.Logger = logger
	}
	recorder := NewRecorder(recorderConfig)

	var audioSrc AudioSource
	if bus != nil {
		audioSrc = bus
	}
	// The recorder outlives the run context so a cancelled run can still
	// flush its encoders and assemble the chunks written so far. Stop
	// tears its loops down.
	if err := recorder.Start(context.WithoutCancel(ctx), spec, canvas, audioSrc); err != nil {
		return Artifact{}, fmt.Errorf("start recorder: %w", err)
	}

	playErr := m.playClips(ctx, clips, canvas, bus, logger)

	canvas.Close()
	if bus != nil {
		bus.Close()
	}

	artifact, recErr := recorder.Stop()
	if playErr != nil {
		return Artifact{}, playErr
	}
	if recErr != nil {
		return Artifact{}, fmt.Errorf("recording: %w", recErr)
	}
	if artifact.Empty() {
		if ctx.Err() != nil {
			return artifact, nil
		}
		return Artifact{}, errors.New("recording produced no data")
	}
	return artifact, nil
}

func (m *Merger) playClips(ctx context.Context, clips ClipList, canvas *Canvas, bus *MixBus, logger *slog.Logger) error {
	for i, clip := range clips {
		// Cancellation is honored at clip boundaries and, via ctx,
		// inside the active session. It ends playback without error so
		// the run can finish cleanly with a partial artifact.
		if ctx.Err() != nil {
			logger.Info("run cancelled, stopping playback", "clips_played", i)
			return nil
		}

		m.transition(func(s *RunState) {
			s.ClipIndex = i + 1
			s.Progress = i * 100 / len(clips)
			s.Message = fmt.Sprintf("playing clip %d of %d: %s", i+1, len(clips), clip.Name)
		})
		logger.Info("playing clip", "index", i+1, "name", clip.Name)

		source, err := clip.Open()
		if err != nil {
			return &ClipError{Clip: clip.Name, Err: fmt.Errorf("open: %w", err)}
		}

		session := NewPlaybackSession(source, clip.Name, canvas, bus, logger)
		err = session.Play(ctx)
		source.Close()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("run cancelled mid-clip", "clip", clip.Name)
				return nil
			}
			return err
		}
	}
	return nil
}
