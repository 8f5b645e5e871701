/*
NAME
  encoder.go

DESCRIPTION
  encoder.go provides an io.Writer that encodes 16-bit PCM into Opus packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package opus

import (
	"io"

	"github.com/ausocean/utils/logging"
	libopus "github.com/hraban/opus"
	"github.com/pkg/errors"

	"github.com/ausocean/trivialopus/codec/pcm"
)

// EncoderConfig holds the parameters of an Encoder.
type EncoderConfig struct {
	SampleRate  int
	Channels    int
	Application Application
	Bitrate     int // Bits per second.
	Bandwidth   Bandwidth
	FrameSize   int // Samples per channel per frame.
	MaxPayload  int // Upper bound on the size of each packet in bytes.
	Complexity  int
	InbandFEC   bool
	ForceMono   bool // Downmix stereo input so both channels carry the same signal.
	DTX         bool
	Loss        int // Expected packet loss in percent.
}

// Encoder encodes PCM written to it into Opus packets, one per frame, and
// writes the packets to its destination. Encoding uses a constant bitrate so
// that every packet has the same size.
type Encoder struct {
	dst io.Writer
	log logging.Logger
	cfg EncoderConfig
	enc *libopus.Encoder

	buf   []byte  // PCM of the frame being filled.
	n     int     // Number of bytes held in buf.
	pcm   []int16 // Samples of a complete frame.
	pkt   []byte  // Encoded packet.
	stats Stats
}

// NewEncoder returns a new Encoder writing packets to dst. The libopus
// encoder is created and configured immediately.
func NewEncoder(dst io.Writer, cfg EncoderConfig, l logging.Logger) (*Encoder, error) {
	if cfg.FrameSize <= 0 || cfg.FrameSize > MaxFrameSize {
		return nil, errors.Errorf("invalid frame size: %d", cfg.FrameSize)
	}
	if cfg.MaxPayload <= 0 || cfg.MaxPayload > MaxPacketSize {
		return nil, errors.Errorf("max payload must be between 1 and %d, got: %d", MaxPacketSize, cfg.MaxPayload)
	}

	enc, err := libopus.NewEncoder(cfg.SampleRate, cfg.Channels, cfg.Application.lib())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create an encoder")
	}

	type ctl struct {
		name string
		set  func() error
	}
	ctls := []ctl{
		{"bitrate", func() error { return enc.SetBitrate(cfg.Bitrate) }},
		{"vbr", func() error { return enc.SetVBR(false) }},
		{"complexity", func() error { return enc.SetComplexity(cfg.Complexity) }},
		{"inband fec", func() error { return enc.SetInBandFEC(cfg.InbandFEC) }},
		{"dtx", func() error { return enc.SetDTX(cfg.DTX) }},
		{"packet loss", func() error { return enc.SetPacketLossPerc(cfg.Loss) }},
	}
	if cfg.Bandwidth != BandwidthAuto {
		ctls = append(ctls, ctl{"bandwidth", func() error { return enc.SetMaxBandwidth(cfg.Bandwidth.lib()) }})
	}
	for _, c := range ctls {
		err = c.set()
		if err != nil {
			return nil, errors.Wrapf(err, "could not set encoder %s", c.name)
		}
	}
	l.Debug("created opus encoder", "rate", cfg.SampleRate, "channels", cfg.Channels, "application", cfg.Application.String(),
		"bitrate", cfg.Bitrate, "bandwidth", cfg.Bandwidth.String(), "frameSize", cfg.FrameSize)

	return &Encoder{
		dst: dst,
		log: l,
		cfg: cfg,
		enc: enc,
		buf: make([]byte, pcm.FrameBytes(cfg.FrameSize, cfg.Channels)),
		pcm: make([]int16, cfg.FrameSize*cfg.Channels),
		pkt: make([]byte, MaxPacketSize),
	}, nil
}

// Write takes PCM of arbitrary length and encodes every frame it completes.
// Bytes that do not complete a frame are held until the next call.
// It returns the number of bytes of b consumed and the first error encountered.
func (e *Encoder) Write(b []byte) (int, error) {
	var consumed int
	for len(b) > 0 {
		c := copy(e.buf[e.n:], b)
		e.n += c
		consumed += c
		b = b[c:]
		e.stats.BytesIn += c

		if e.n < len(e.buf) {
			break
		}
		e.n = 0
		err := e.encodeFrame()
		if err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// encodeFrame encodes the full frame held in buf and writes the packet to dst.
func (e *Encoder) encodeFrame() error {
	pcm.BytesToSamples(e.pcm, e.buf)
	if e.cfg.ForceMono && e.cfg.Channels == 2 {
		pcm.DualMono(e.pcm)
	}

	n, err := e.enc.Encode(e.pcm, e.pkt[:e.cfg.MaxPayload])
	if err != nil {
		return errors.Wrap(err, "encoding failed")
	}
	e.log.Debug("encoded frame", "frame", e.stats.Frames, "bytes", n)

	_, err = e.dst.Write(e.pkt[:n])
	if err != nil {
		return errors.Wrap(err, "could not write packet")
	}
	e.stats.Frames++
	e.stats.BytesOut += n
	return nil
}

// Close discards any incomplete frame. The Encoder must not be used after Close.
func (e *Encoder) Close() error {
	if e.n != 0 {
		e.log.Info("discarding incomplete frame", "bytes", e.n)
		e.stats.Discarded += e.n
		e.n = 0
	}
	return nil
}

// Stats returns the Encoder's counters.
func (e *Encoder) Stats() Stats { return e.stats }
