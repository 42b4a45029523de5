package merger

import "testing"

func TestSidecarOggPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"clips/take1.ivf", "clips/take1.ogg"},
		{"take1", "take1.ogg"},
		{"a.b.ivf", "a.b.ogg"},
	}
	for _, tt := range tests {
		if got := sidecarOggPath(tt.in); got != tt.want {
			t.Errorf("sidecarOggPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIVFFrameType(t *testing.T) {
	// VP8: low bit of the first byte clear on keyframes.
	if got := ivfFrameType(VideoCodecVP8, []byte{0x00}); got != FrameTypeKey {
		t.Errorf("vp8 keyframe detected as %v", got)
	}
	if got := ivfFrameType(VideoCodecVP8, []byte{0x01}); got != FrameTypeDelta {
		t.Errorf("vp8 delta detected as %v", got)
	}
	if got := ivfFrameType(VideoCodecVP8, nil); got != FrameTypeUnknown {
		t.Errorf("empty payload detected as %v", got)
	}
}

func TestFillPacketDurations(t *testing.T) {
	packets := []*EncodedFrame{
		{Timestamp: 0},
		{Timestamp: 33_000_000},
		{Timestamp: 66_000_000},
	}
	fillPacketDurations(packets)

	if packets[0].Duration != 33_000_000 || packets[1].Duration != 33_000_000 {
		t.Errorf("durations = %d, %d", packets[0].Duration, packets[1].Duration)
	}
	// Last packet reuses the previous gap.
	if packets[2].Duration != 33_000_000 {
		t.Errorf("last duration = %d", packets[2].Duration)
	}
}

func TestRegisteredClipExtensions(t *testing.T) {
	exts := SupportedClipExtensions()
	want := map[string]bool{".webm": false, ".mkv": false, ".ivf": false}
	for _, ext := range exts {
		if _, ok := want[ext]; ok {
			want[ext] = true
		}
	}
	for ext, seen := range want {
		if !seen {
			t.Errorf("extension %s not registered", ext)
		}
	}
}
