package merger

import (
	"fmt"
	"io"

	"github.com/at-wat/ebml-go/webm"
)

func init() {
	RegisterMuxer(ContainerWebM, newWebMMuxer)
}

// webmMuxer streams VP8/VP9 (+ optional Opus) into a WebM container using
// ebml-go's simple block writer.
type webmMuxer struct {
	video webm.BlockWriteCloser
	audio webm.BlockWriteCloser // nil for video-only output
}

func newWebMMuxer(spec OutputSpec, info StreamInfo, w io.Writer) (Muxer, error) {
	videoCodecID := spec.VideoCodec.WebMCodecID()
	if videoCodecID == "" {
		return nil, fmt.Errorf("codec %s cannot be stored in WebM", spec.VideoCodec)
	}

	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}

	tracks := []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         videoCodecID,
			TrackType:       1,
			DefaultDuration: uint64(1e9 / fps),
			Video: &webm.Video{
				PixelWidth:  uint64(info.Width),
				PixelHeight: uint64(info.Height),
			},
		},
	}

	if spec.HasAudio() {
		audioCodecID := spec.AudioCodec.WebMCodecID()
		if audioCodecID == "" {
			return nil, fmt.Errorf("codec %s cannot be stored in WebM", spec.AudioCodec)
		}
		tracks = append(tracks, webm.TrackEntry{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         audioCodecID,
			TrackType:       2,
			DefaultDuration: 20_000_000,
			Audio: &webm.Audio{
				SamplingFrequency: float64(info.SampleRate),
				Channels:          uint64(info.Channels),
			},
		})
	}

	writers, err := webm.NewSimpleBlockWriter(nopWriteCloser{w}, tracks)
	if err != nil {
		return nil, fmt.Errorf("webm writer: %w", err)
	}

	m := &webmMuxer{video: writers[0]}
	if len(writers) > 1 {
		m.audio = writers[1]
	}
	return m, nil
}

func (m *webmMuxer) WriteVideo(frame *EncodedFrame) error {
	_, err := m.video.Write(frame.IsKeyframe(), frame.Timestamp/1e6, frame.Data)
	return err
}

func (m *webmMuxer) WriteAudio(packet *EncodedAudio) error {
	if m.audio == nil {
		return nil
	}
	_, err := m.audio.Write(true, packet.Timestamp/1e6, packet.Data)
	return err
}

func (m *webmMuxer) Close() error {
	err := m.video.Close()
	if m.audio != nil {
		if aerr := m.audio.Close(); err == nil {
			err = aerr
		}
	}
	return err
}

// nopWriteCloser adapts the chunk log to the io.WriteCloser ebml-go wants
// without letting the muxer close it; the recorder owns the log lifecycle.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
