package merger

import "testing"

func TestNewI420Frame(t *testing.T) {
	frame := NewI420Frame(320, 240)

	if frame.Width != 320 || frame.Height != 240 {
		t.Fatalf("got %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Data[0]) != 320*240 || len(frame.Data[1]) != 160*120 {
		t.Fatal("plane sizes wrong")
	}
	// Black in video range
	if frame.Data[0][0] != 16 || frame.Data[1][0] != 128 || frame.Data[2][0] != 128 {
		t.Errorf("not initialized to black: %d %d %d",
			frame.Data[0][0], frame.Data[1][0], frame.Data[2][0])
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	frame := NewI420Frame(64, 64)
	frame.Timestamp = 42

	clone := frame.Clone()
	clone.Data[0][0] = 99

	if frame.Data[0][0] == 99 {
		t.Error("clone shares plane storage with the original")
	}
	if clone.Timestamp != 42 {
		t.Errorf("timestamp not carried: %d", clone.Timestamp)
	}
}

func TestEncodedFrame_IsKeyframe(t *testing.T) {
	if !(&EncodedFrame{FrameType: FrameTypeKey}).IsKeyframe() {
		t.Error("key frame not detected")
	}
	if (&EncodedFrame{FrameType: FrameTypeDelta}).IsKeyframe() {
		t.Error("delta frame misdetected")
	}
}

func TestAudioSamples_Clone(t *testing.T) {
	samples := &AudioSamples{
		Data:        []byte{1, 2, 3, 4},
		SampleRate:  48000,
		Channels:    2,
		SampleCount: 1,
		Format:      AudioFormatS16,
	}
	clone := samples.Clone()
	clone.Data[0] = 0

	if samples.Data[0] != 1 {
		t.Error("clone shares storage with the original")
	}
}
