package merger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func solidFrame(width, height int, y, u, v byte) *VideoFrame {
	frame := NewI420Frame(width, height)
	fillPlane(frame.Data[0], y)
	fillPlane(frame.Data[1], u)
	fillPlane(frame.Data[2], v)
	return frame
}

func TestCanvas_LockDimensionsFirstCallWins(t *testing.T) {
	canvas := NewCanvas(DefaultCanvasConfig())

	w, h := canvas.LockDimensions(641, 360)
	if w != 640 || h != 360 {
		t.Errorf("expected odd width rounded down to 640x360, got %dx%d", w, h)
	}

	// Later clips must not change the locked dimensions.
	w, h = canvas.LockDimensions(1920, 1080)
	if w != 640 || h != 360 {
		t.Errorf("second lock changed dimensions to %dx%d", w, h)
	}

	gotW, gotH, locked := canvas.Dimensions()
	if !locked || gotW != 640 || gotH != 360 {
		t.Errorf("Dimensions() = %d, %d, %v", gotW, gotH, locked)
	}
}

func TestCanvas_WriterExclusive(t *testing.T) {
	canvas := NewCanvas(DefaultCanvasConfig())
	canvas.LockDimensions(320, 240)

	writer, err := canvas.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}

	if _, err := canvas.AcquireWriter(); !errors.Is(err, ErrWriterHeld) {
		t.Errorf("second acquire: expected ErrWriterHeld, got %v", err)
	}

	writer.Release()
	writer.Release() // Idempotent

	if err := writer.Draw(solidFrame(320, 240, 200, 128, 128)); !errors.Is(err, ErrWriterReleased) {
		t.Errorf("draw after release: expected ErrWriterReleased, got %v", err)
	}

	second, err := canvas.AcquireWriter()
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	second.Release()
}

func TestCanvas_DrawBeforeLock(t *testing.T) {
	canvas := NewCanvas(DefaultCanvasConfig())

	writer, err := canvas.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}
	defer writer.Release()

	if err := writer.Draw(solidFrame(320, 240, 200, 128, 128)); err == nil {
		t.Error("expected error drawing before dimensions are locked")
	}
}

func TestCanvas_DrawLetterboxes(t *testing.T) {
	config := DefaultCanvasConfig()
	canvas := NewCanvas(config)
	canvas.LockDimensions(640, 360)

	writer, err := canvas.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}
	defer writer.Release()

	// A square frame into a 16:9 canvas pillarboxes: background at the
	// edges, content in the middle.
	if err := writer.Draw(solidFrame(360, 360, 200, 90, 90)); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	snap := canvas.snapshot(time.Second / 30)
	if snap == nil {
		t.Fatal("snapshot returned nil after lock")
	}

	centerY := snap.Data[0][180*640+320]
	if centerY != 200 {
		t.Errorf("center pixel: expected 200, got %d", centerY)
	}
	edgeY := snap.Data[0][180*640+10]
	if edgeY != config.Background[0] {
		t.Errorf("edge pixel: expected background %d, got %d", config.Background[0], edgeY)
	}
}

func TestCanvas_CaptureEmitsOnlyAfterLock(t *testing.T) {
	canvas := NewCanvas(CanvasConfig{FPS: 100})
	if err := canvas.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer canvas.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := canvas.ReadFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no frames before lock, got err=%v", err)
	}

	canvas.LockDimensions(320, 240)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	frame, err := canvas.ReadFrame(ctx2)
	if err != nil {
		t.Fatalf("ReadFrame after lock: %v", err)
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Errorf("captured frame is %dx%d, want 320x240", frame.Width, frame.Height)
	}
	if frame.Duration != (time.Second / 100).Nanoseconds() {
		t.Errorf("frame duration = %d", frame.Duration)
	}
}

func TestCanvas_StopIsIdempotent(t *testing.T) {
	canvas := NewCanvas(DefaultCanvasConfig())
	if err := canvas.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := canvas.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := canvas.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := canvas.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
