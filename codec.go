package merger

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	default:
		return "Unknown"
	}
}

// MimeType returns the codec string used in container MIME types.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return "vp8"
	case VideoCodecVP9:
		return "vp9"
	case VideoCodecH264:
		return "avc1"
	default:
		return ""
	}
}

// WebMCodecID returns the Matroska codec ID for this codec, or "" if the
// codec cannot be stored in WebM.
func (c VideoCodec) WebMCodecID() string {
	switch c {
	case VideoCodecVP8:
		return "V_VP8"
	case VideoCodecVP9:
		return "V_VP9"
	default:
		return ""
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	default:
		return "Unknown"
	}
}

// MimeType returns the codec string used in container MIME types.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "opus"
	default:
		return ""
	}
}

// WebMCodecID returns the Matroska codec ID for this codec.
func (c AudioCodec) WebMCodecID() string {
	switch c {
	case AudioCodecOpus:
		return "A_OPUS"
	default:
		return ""
	}
}

// Container identifies the output container format.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerWebM
	ContainerMP4
)

func (c Container) String() string {
	switch c {
	case ContainerWebM:
		return "WebM"
	case ContainerMP4:
		return "MP4"
	default:
		return "Unknown"
	}
}

// MimeType returns the base MIME type for this container.
func (c Container) MimeType() string {
	switch c {
	case ContainerWebM:
		return "video/webm"
	case ContainerMP4:
		return "video/mp4"
	default:
		return ""
	}
}

// Extension returns the filename extension for this container, without dot.
func (c Container) Extension() string {
	switch c {
	case ContainerMP4:
		return "mp4"
	default:
		return "webm"
	}
}
