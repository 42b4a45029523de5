package merger

import (
	"errors"
	"fmt"
	"os"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

func init() {
	RegisterClipOpener(".webm", openWebMClip)
	RegisterClipOpener(".mkv", openWebMClip)
}

// openWebMClip demuxes a WebM file into packet lists for the first video
// track (VP8 or VP9) and the first Opus audio track, if present.
func openWebMClip(path string) (*ClipSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var document struct {
		Header  webm.EBMLHeader `ebml:"EBML"`
		Segment webm.Segment    `ebml:"Segment"`
	}
	if err := ebml.Unmarshal(f, &document); err != nil && !errors.Is(err, ebml.ErrReadStopped) {
		return nil, fmt.Errorf("parse webm: %w", err)
	}

	segment := document.Segment

	timecodeScale := segment.Info.TimecodeScale // ns per tick
	if timecodeScale == 0 {
		timecodeScale = 1_000_000
	}

	var videoTrack, audioTrack *webm.TrackEntry
	for i := range segment.Tracks.TrackEntry {
		entry := &segment.Tracks.TrackEntry[i]
		switch {
		case videoTrack == nil && (entry.CodecID == "V_VP8" || entry.CodecID == "V_VP9"):
			videoTrack = entry
		case audioTrack == nil && entry.CodecID == "A_OPUS":
			audioTrack = entry
		}
	}
	if videoTrack == nil {
		return nil, errors.New("no VP8/VP9 video track found")
	}
	if videoTrack.Video == nil {
		return nil, fmt.Errorf("parse webm: track %d has no video element", videoTrack.TrackNumber)
	}

	codec := VideoCodecVP8
	if videoTrack.CodecID == "V_VP9" {
		codec = VideoCodecVP9
	}

	var audioTrackNum uint64
	if audioTrack != nil {
		audioTrackNum = audioTrack.TrackNumber
	}

	var videoPackets []*EncodedFrame
	var audioPackets []*EncodedAudio
	for _, cluster := range segment.Cluster {
		for _, block := range cluster.SimpleBlock {
			tsNs := int64(cluster.Timecode+uint64(block.Timecode)) * int64(timecodeScale)
			switch block.TrackNumber {
			case videoTrack.TrackNumber:
				for _, lace := range block.Data {
					ft := FrameTypeDelta
					if block.Keyframe {
						ft = FrameTypeKey
					}
					videoPackets = append(videoPackets, &EncodedFrame{
						Data:      lace,
						FrameType: ft,
						Timestamp: tsNs,
					})
				}
			case audioTrackNum:
				for _, lace := range block.Data {
					audioPackets = append(audioPackets, &EncodedAudio{
						Data:      lace,
						Timestamp: tsNs,
					})
				}
			}
		}
	}
	if len(videoPackets) == 0 {
		return nil, errors.New("webm has no video frames")
	}

	fillPacketDurations(videoPackets)

	config := SourceConfig{
		Width:  int(videoTrack.Video.PixelWidth),
		Height: int(videoTrack.Video.PixelHeight),
		Format: PixelFormatI420,
	}
	if videoTrack.DefaultDuration > 0 {
		config.FPS = int(1e9 / videoTrack.DefaultDuration)
	}

	src := &ClipSource{
		Video: newPacketVideoSource(codec, config, videoPackets),
	}
	if audioTrack != nil && len(audioPackets) > 0 {
		sampleRate := 48000
		channels := 2
		if audioTrack.Audio != nil {
			if audioTrack.Audio.SamplingFrequency != 0 {
				sampleRate = int(audioTrack.Audio.SamplingFrequency)
			}
			if audioTrack.Audio.Channels != 0 {
				channels = int(audioTrack.Audio.Channels)
			}
		}
		src.Audio = newPacketAudioSource(AudioCodecOpus, sampleRate, channels, audioPackets)
	}
	return src, nil
}

// fillPacketDurations derives each packet's duration from the gap to the
// next packet, reusing the previous gap for the final one.
func fillPacketDurations(packets []*EncodedFrame) {
	for i := 0; i < len(packets)-1; i++ {
		packets[i].Duration = packets[i+1].Timestamp - packets[i].Timestamp
	}
	if n := len(packets); n > 1 {
		packets[n-1].Duration = packets[n-2].Duration
	}
}
