package merger

import (
	"context"
	"fmt"
)

// packetVideoSource decodes a demuxed packet list into raw frames. The
// decoder is created lazily on the first read so opening a clip never
// requires codec libraries to be present.
type packetVideoSource struct {
	codec   VideoCodec
	config  SourceConfig
	packets []*EncodedFrame

	decoder VideoDecoder
	index   int
}

func newPacketVideoSource(codec VideoCodec, config SourceConfig, packets []*EncodedFrame) *packetVideoSource {
	return &packetVideoSource{codec: codec, config: config, packets: packets}
}

func (s *packetVideoSource) Start(ctx context.Context) error { return nil }
func (s *packetVideoSource) Stop() error                     { return nil }

func (s *packetVideoSource) Config() SourceConfig { return s.config }

func (s *packetVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.decoder == nil {
		dec, err := NewVideoDecoder(VideoDecoderConfig{Codec: s.codec})
		if err != nil {
			return nil, fmt.Errorf("create %s decoder: %w", s.codec, err)
		}
		s.decoder = dec
	}

	for s.index < len(s.packets) {
		packet := s.packets[s.index]
		s.index++

		frame, err := s.decoder.Decode(packet)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.codec, err)
		}
		if frame == nil {
			continue // Decoder buffering
		}
		return frame, nil
	}
	return nil, ErrEndOfClip
}

func (s *packetVideoSource) Close() error {
	if s.decoder != nil {
		err := s.decoder.Close()
		s.decoder = nil
		return err
	}
	return nil
}

// packetAudioSource decodes demuxed Opus packets into raw samples.
type packetAudioSource struct {
	codec      AudioCodec
	sampleRate int
	channels   int
	packets    []*EncodedAudio

	decoder AudioDecoder
	index   int
}

func newPacketAudioSource(codec AudioCodec, sampleRate, channels int, packets []*EncodedAudio) *packetAudioSource {
	return &packetAudioSource{
		codec:      codec,
		sampleRate: sampleRate,
		channels:   channels,
		packets:    packets,
	}
}

func (s *packetAudioSource) Start(ctx context.Context) error { return nil }
func (s *packetAudioSource) Stop() error                     { return nil }
func (s *packetAudioSource) SampleRate() int                 { return s.sampleRate }
func (s *packetAudioSource) Channels() int                   { return s.channels }

func (s *packetAudioSource) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.decoder == nil {
		dec, err := NewAudioDecoder(AudioDecoderConfig{
			Codec:      s.codec,
			SampleRate: s.sampleRate,
			Channels:   s.channels,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s decoder: %w", s.codec, err)
		}
		s.decoder = dec
	}

	for s.index < len(s.packets) {
		packet := s.packets[s.index]
		s.index++

		samples, err := s.decoder.Decode(packet)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.codec, err)
		}
		if samples == nil {
			continue
		}
		samples.Timestamp = packet.Timestamp
		return samples, nil
	}
	return nil, ErrEndOfClip
}

func (s *packetAudioSource) Close() error {
	if s.decoder != nil {
		err := s.decoder.Close()
		s.decoder = nil
		return err
	}
	return nil
}
