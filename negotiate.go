package merger

// OutputSpec is the negotiated container/codec combination for a run.
// Immutable once processing starts.
type OutputSpec struct {
	Container       Container
	VideoCodec      VideoCodec
	AudioCodec      AudioCodec // AudioCodecUnknown = video-only output
	MimeType        string
	VideoBitrateBps int
	AudioBitrateBps int
}

// HasAudio reports whether the spec carries an audio track.
func (s OutputSpec) HasAudio() bool {
	return s.AudioCodec != AudioCodecUnknown
}

// SupportProbe answers runtime capability queries during negotiation.
type SupportProbe interface {
	Supports(spec OutputSpec) bool
}

// SupportProbeFunc adapts a function to the SupportProbe interface.
type SupportProbeFunc func(spec OutputSpec) bool

func (f SupportProbeFunc) Supports(spec OutputSpec) bool { return f(spec) }

// formatPreferences is the fixed negotiation order: WebM VP9+Opus, then
// WebM VP8+Opus without an explicit codec profile, then the MP4/H.264
// fallback pair.
func formatPreferences() []OutputSpec {
	return []OutputSpec{
		{
			Container:       ContainerWebM,
			VideoCodec:      VideoCodecVP9,
			AudioCodec:      AudioCodecOpus,
			MimeType:        "video/webm;codecs=vp9,opus",
			VideoBitrateBps: 8_000_000,
			AudioBitrateBps: 128_000,
		},
		{
			Container:       ContainerWebM,
			VideoCodec:      VideoCodecVP8,
			AudioCodec:      AudioCodecOpus,
			MimeType:        "video/webm",
			VideoBitrateBps: 8_000_000,
			AudioBitrateBps: 128_000,
		},
		{
			Container:       ContainerMP4,
			VideoCodec:      VideoCodecH264,
			AudioCodec:      AudioCodecUnknown,
			MimeType:        "video/mp4",
			VideoBitrateBps: 8_000_000,
		},
	}
}

// Negotiate picks the output format: the first preference the probe reports
// supported. Negotiation never fails; when nothing is reported supported it
// still returns the fallback entry and assumes baseline support.
func Negotiate(probe SupportProbe) OutputSpec {
	prefs := formatPreferences()
	if probe == nil {
		probe = DefaultSupportProbe()
	}
	for _, spec := range prefs {
		if probe.Supports(spec) {
			return spec
		}
	}
	return prefs[len(prefs)-1]
}

// DefaultSupportProbe queries the codec and muxer registries: a spec is
// supported when its video encoder, audio encoder (if any), and container
// muxer are all registered.
func DefaultSupportProbe() SupportProbe {
	return SupportProbeFunc(func(spec OutputSpec) bool {
		if !VideoEncoderAvailable(spec.VideoCodec) {
			return false
		}
		if spec.HasAudio() && !AudioEncoderAvailable(spec.AudioCodec) {
			return false
		}
		return MuxerAvailable(spec.Container)
	})
}
