package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// SessionState tracks playback session lifecycle.
type SessionState int32

const (
	SessionCreated SessionState = iota
	SessionAwaitingMetadata
	SessionConnectingAudio
	SessionPlaying
	SessionEnded
	SessionFailed
)

// AudioMode records whether a session played with audio or degraded to
// video-only after a failed audio connection.
type AudioMode int32

const (
	AudioModeFull AudioMode = iota
	AudioModeVideoOnly
)

func (m AudioMode) String() string {
	if m == AudioModeFull {
		return "full"
	}
	return "video-only"
}

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionAwaitingMetadata:
		return "awaiting-metadata"
	case SessionConnectingAudio:
		return "connecting-audio"
	case SessionPlaying:
		return "playing"
	case SessionEnded:
		return "ended"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlaybackSession plays a single clip to completion: video frames are
// drawn onto the shared canvas paced by their timestamps, and the clip's
// audio source is connected to the shared mix bus for the duration.
//
// A session is single-use. Play blocks until the clip ends, the context
// is cancelled, or an error occurs; in every case the canvas writer and
// bus connection are released before Play returns.
type PlaybackSession struct {
	clip   *ClipSource
	name   string
	canvas *Canvas
	bus    *MixBus
	logger *slog.Logger

	state     atomic.Int32
	audioMode atomic.Int32
}

// NewPlaybackSession creates a session over an opened clip. bus may be
// nil when no audio mixing is wanted.
func NewPlaybackSession(clip *ClipSource, name string, canvas *Canvas, bus *MixBus, logger *slog.Logger) *PlaybackSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackSession{
		clip:   clip,
		name:   name,
		canvas: canvas,
		bus:    bus,
		logger: logger.With("component", "session", "clip", name),
	}
}

// State returns the current session state.
func (s *PlaybackSession) State() SessionState {
	return SessionState(s.state.Load())
}

// AudioMode reports whether the clip played with audio. It is meaningful
// once the session has reached the playing state.
func (s *PlaybackSession) AudioMode() AudioMode {
	return AudioMode(s.audioMode.Load())
}

func (s *PlaybackSession) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Play runs the clip to completion. It returns nil when the clip's video
// stream ends naturally, ctx.Err() on cancellation, and a wrapped error
// on decode or compositing failures. Audio connection failures are not
// fatal; the clip plays video-only.
func (s *PlaybackSession) Play(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SessionCreated), int32(SessionAwaitingMetadata)) {
		return fmt.Errorf("session for clip %q already used", s.name)
	}

	err := s.play(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.setState(SessionFailed)
	} else {
		s.setState(SessionEnded)
	}
	return err
}

func (s *PlaybackSession) play(ctx context.Context) error {
	if err := s.clip.Video.Start(ctx); err != nil {
		return &ClipError{Clip: s.name, Err: fmt.Errorf("start video: %w", err)}
	}
	defer s.clip.Video.Stop()

	// The first frame carries the clip's native dimensions, which lock
	// the canvas if this is the first clip of the run.
	first, err := s.readFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrEndOfClip) {
			s.logger.Warn("clip has no video frames")
			return nil
		}
		return err
	}

	width, height := s.canvas.LockDimensions(first.Width, first.Height)
	s.logger.Info("clip metadata resolved",
		"clip_width", first.Width, "clip_height", first.Height,
		"canvas_width", width, "canvas_height", height)

	writer, err := s.canvas.AcquireWriter()
	if err != nil {
		return &ClipError{Clip: s.name, Err: err}
	}
	defer writer.Release()

	s.setState(SessionConnectingAudio)
	conn := s.connectAudio(ctx)
	if conn != nil {
		defer conn.Disconnect()
	}

	s.setState(SessionPlaying)
	return s.playVideo(ctx, writer, first)
}

// connectAudio attaches the clip's audio to the mix bus. Failure here
// degrades the clip to video-only rather than aborting the merge.
func (s *PlaybackSession) connectAudio(ctx context.Context) *BusConnection {
	s.audioMode.Store(int32(AudioModeVideoOnly))
	if s.bus == nil || s.clip.Audio == nil {
		return nil
	}

	if err := s.clip.Audio.Start(ctx); err != nil {
		s.logger.Warn("audio start failed, playing video-only", "error", err)
		return nil
	}

	conn, err := s.bus.Connect(s.clip.Audio)
	if err != nil {
		s.logger.Warn("audio connect failed, playing video-only", "error", err)
		s.clip.Audio.Stop()
		return nil
	}
	s.audioMode.Store(int32(AudioModeFull))
	return conn
}

// playVideo draws frames onto the canvas, pacing by each frame's
// timestamp relative to the moment playback began.
func (s *PlaybackSession) playVideo(ctx context.Context, writer *CanvasWriter, first *VideoFrame) error {
	start := time.Now()
	base := first.Timestamp
	frame := first
	frames := 0

	for {
		due := time.Duration(frame.Timestamp - base)
		if wait := due - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := writer.Draw(frame); err != nil {
			return &ClipError{Clip: s.name, Err: fmt.Errorf("draw frame: %w", err)}
		}
		frames++

		next, err := s.readFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfClip) {
				// Hold the last frame on screen for its own duration so
				// the clip's tail is not cut short.
				if frame.Duration > 0 {
					tail := due + time.Duration(frame.Duration) - time.Since(start)
					if tail > 0 {
						timer := time.NewTimer(tail)
						select {
						case <-ctx.Done():
							timer.Stop()
							return ctx.Err()
						case <-timer.C:
						}
					}
				}
				s.logger.Info("clip ended", "frames", frames)
				return nil
			}
			return err
		}
		frame = next
	}
}

func (s *PlaybackSession) readFrame(ctx context.Context) (*VideoFrame, error) {
	for {
		frame, err := s.clip.Video.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfClip) {
				return nil, ErrEndOfClip
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ClipError{Clip: s.name, Err: fmt.Errorf("read frame: %w", err)}
		}
		if frame != nil {
			return frame, nil
		}
	}
}
