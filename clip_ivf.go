package merger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

func init() {
	RegisterClipOpener(".ivf", openIVFClip)
}

// openIVFClip reads an IVF file (VP8 or VP9) into a packet list. A
// sidecar Opus file with the same base name and an .ogg extension, when
// present, supplies the audio track.
func openIVFClip(path string) (*ClipSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("parse ivf: %w", err)
	}

	var codec VideoCodec
	switch header.FourCC {
	case "VP80":
		codec = VideoCodecVP8
	case "VP90":
		codec = VideoCodecVP9
	default:
		return nil, fmt.Errorf("unsupported ivf fourcc %q", header.FourCC)
	}

	den := int64(header.TimebaseDenominator)
	num := int64(header.TimebaseNumerator)
	if den == 0 {
		den, num = 30, 1
	}

	var packets []*EncodedFrame
	for {
		payload, frameHeader, err := reader.ParseNextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read ivf frame: %w", err)
		}
		packets = append(packets, &EncodedFrame{
			Data:      payload,
			FrameType: ivfFrameType(codec, payload),
			Timestamp: int64(frameHeader.Timestamp) * num * 1e9 / den,
		})
	}
	if len(packets) == 0 {
		return nil, errors.New("ivf has no frames")
	}

	fillPacketDurations(packets)

	fps := 0
	if num > 0 {
		fps = int(den / num)
	}
	config := SourceConfig{
		Width:  int(header.Width),
		Height: int(header.Height),
		FPS:    fps,
		Format: PixelFormatI420,
	}

	src := &ClipSource{
		Video: newPacketVideoSource(codec, config, packets),
	}

	audio, err := openSidecarOpus(sidecarOggPath(path))
	if err != nil {
		return nil, err
	}
	src.Audio = audio
	return src, nil
}

// ivfFrameType inspects the first payload byte for the keyframe bit.
func ivfFrameType(codec VideoCodec, payload []byte) FrameType {
	if len(payload) == 0 {
		return FrameTypeUnknown
	}
	switch codec {
	case VideoCodecVP8:
		if payload[0]&0x01 == 0 {
			return FrameTypeKey
		}
	case VideoCodecVP9:
		// Good enough for the common non-superframe case.
		if payload[0]&0x04 == 0 {
			return FrameTypeKey
		}
	}
	return FrameTypeDelta
}

func sidecarOggPath(ivfPath string) string {
	ext := ".ogg"
	if i := strings.LastIndex(ivfPath, "."); i >= 0 {
		return ivfPath[:i] + ext
	}
	return ivfPath + ext
}

// openSidecarOpus returns nil with no error when the sidecar file does
// not exist; a clip without audio is valid.
func openSidecarOpus(path string) (AudioSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ogg, header, err := oggreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("parse ogg: %w", err)
	}

	sampleRate := int(header.SampleRate)
	if sampleRate == 0 {
		sampleRate = 48000
	}
	channels := int(header.Channels)
	if channels == 0 {
		channels = 2
	}

	var packets []*EncodedAudio
	var lastGranule uint64
	var tsNs int64
	for {
		payload, pageHeader, err := ogg.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read ogg page: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		packets = append(packets, &EncodedAudio{
			Data:      payload,
			Timestamp: tsNs,
		})
		// Granule positions count 48 kHz samples regardless of the
		// stream's own rate.
		if pageHeader.GranulePosition > lastGranule {
			lastGranule = pageHeader.GranulePosition
		}
		tsNs = int64(lastGranule) * 1e9 / 48000
	}
	if len(packets) == 0 {
		return nil, nil
	}

	return newPacketAudioSource(AudioCodecOpus, sampleRate, channels, packets), nil
}
