package merger

import (
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"
)

func init() {
	RegisterMuxer(ContainerMP4, newMP4Muxer)
}

const mp4VideoTimescale = 90000

// mp4Muxer streams H.264 into fragmented MP4 using mp4ff: an init segment
// once parameter sets are known, then one fragment per GOP.
type mp4Muxer struct {
	w io.Writer

	initWritten bool
	trackID     uint32
	seqNumber   uint32

	frag      *mp4.Fragment
	fragStart int64 // first decode time of the open fragment, 90kHz

	lastTimestamp int64 // ns
	frameDur      int64 // default duration in 90kHz units
	closed        bool
}

func newMP4Muxer(spec OutputSpec, info StreamInfo, w io.Writer) (Muxer, error) {
	if spec.VideoCodec != VideoCodecH264 {
		return nil, fmt.Errorf("mp4 muxer supports H264 only, got %s", spec.VideoCodec)
	}
	if spec.HasAudio() {
		return nil, errors.New("mp4 muxer is video-only")
	}

	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}

	return &mp4Muxer{
		w:        w,
		trackID:  1,
		frameDur: int64(mp4VideoTimescale / fps),
	}, nil
}

func (m *mp4Muxer) WriteVideo(frame *EncodedFrame) error {
	if m.closed {
		return io.ErrClosedPipe
	}

	if !m.initWritten {
		if !frame.IsKeyframe() {
			return nil // Wait for parameter sets on the first keyframe.
		}
		if err := m.writeInit(frame.Data); err != nil {
			return err
		}
	}

	decodeTime := frame.Timestamp * mp4VideoTimescale / 1e9

	if frame.IsKeyframe() && m.frag != nil {
		if err := m.flushFragment(); err != nil {
			return err
		}
	}
	if m.frag == nil {
		m.seqNumber++
		frag, err := mp4.CreateFragment(m.seqNumber, m.trackID)
		if err != nil {
			return fmt.Errorf("mp4 fragment: %w", err)
		}
		m.frag = frag
		m.fragStart = decodeTime
	}

	sample := avc.ConvertByteStreamToNaluSample(frame.Data)

	dur := m.frameDur
	if frame.Duration > 0 {
		dur = frame.Duration * mp4VideoTimescale / 1e9
	}

	flags := mp4.NonSyncSampleFlags
	if frame.IsKeyframe() {
		flags = mp4.SyncSampleFlags
	}

	m.frag.AddFullSample(mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Dur:   uint32(dur),
			Size:  uint32(len(sample)),
		},
		DecodeTime: uint64(decodeTime),
		Data:       sample,
	})

	m.lastTimestamp = frame.Timestamp
	return nil
}

func (m *mp4Muxer) WriteAudio(*EncodedAudio) error {
	return nil // Video-only container.
}

func (m *mp4Muxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	if m.frag != nil {
		return m.flushFragment()
	}
	return nil
}

func (m *mp4Muxer) writeInit(byteStream []byte) error {
	spsNALUs := avc.ExtractNalusOfTypeFromByteStream(avc.NALU_SPS, byteStream, true)
	ppsNALUs := avc.ExtractNalusOfTypeFromByteStream(avc.NALU_PPS, byteStream, true)
	if len(spsNALUs) == 0 || len(ppsNALUs) == 0 {
		return errors.New("keyframe missing SPS/PPS parameter sets")
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(mp4VideoTimescale, "video", "und")
	trak := init.Moov.Trak
	if err := trak.SetAVCDescriptor("avc1", spsNALUs, ppsNALUs, true); err != nil {
		return fmt.Errorf("avc descriptor: %w", err)
	}
	if err := init.Encode(m.w); err != nil {
		return fmt.Errorf("mp4 init segment: %w", err)
	}

	m.initWritten = true
	return nil
}

func (m *mp4Muxer) flushFragment() error {
	frag := m.frag
	m.frag = nil
	if err := frag.Encode(m.w); err != nil {
		return fmt.Errorf("mp4 fragment encode: %w", err)
	}
	return nil
}
