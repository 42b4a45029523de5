//go:build darwin || linux

package merger

import (
	"testing"
)

// sineSamples builds one 20ms chunk of stereo S16 audio.
func sineSamples(timestamp int64) *AudioSamples {
	const (
		sampleRate = 48000
		channels   = 2
		count      = sampleRate / 50
	)
	data := make([]byte, count*channels*2)
	for i := 0; i < count; i++ {
		v := int16((i % 64) * 256)
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
		}
	}
	return &AudioSamples{
		Data:        data,
		SampleRate:  sampleRate,
		Channels:    channels,
		SampleCount: count,
		Format:      AudioFormatS16,
		Timestamp:   timestamp,
	}
}

func TestOpusRoundTrip(t *testing.T) {
	if !IsOpusAvailable() {
		t.Skip("libmerge_opus not available")
	}

	enc, err := NewOpusEncoder(DefaultAudioEncoderConfig(AudioCodecOpus))
	if err != nil {
		t.Fatalf("NewOpusEncoder: %v", err)
	}
	defer enc.Close()

	dec, err := NewOpusDecoder(AudioDecoderConfig{
		Codec:      AudioCodecOpus,
		SampleRate: 48000,
		Channels:   2,
	})
	if err != nil {
		t.Fatalf("NewOpusDecoder: %v", err)
	}
	defer dec.Close()

	decoded := 0
	for i := 0; i < 10; i++ {
		samples := sineSamples(int64(i) * 20_000_000)

		packet, err := enc.Encode(samples)
		if err != nil {
			t.Fatalf("Encode chunk %d: %v", i, err)
		}
		if packet == nil {
			continue
		}
		if len(packet.Data) == 0 {
			t.Fatalf("chunk %d produced an empty packet", i)
		}

		out, err := dec.Decode(packet)
		if err != nil {
			t.Fatalf("Decode chunk %d: %v", i, err)
		}
		if out == nil {
			continue
		}
		if out.SampleRate != 48000 || out.Channels != 2 {
			t.Fatalf("decoded format %d/%d, want 48000/2", out.SampleRate, out.Channels)
		}
		decoded++
	}
	if decoded == 0 {
		t.Error("no packets survived the round trip")
	}
}
