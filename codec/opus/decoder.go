/*
NAME
  decoder.go

DESCRIPTION
  decoder.go provides an io.Writer that decodes fixed-size Opus packets into
  16-bit PCM, optionally simulating packet loss.

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
	"math/rand"

	"github.com/ausocean/utils/logging"
	libopus "github.com/hraban/opus"
	"github.com/pkg/errors"

	"github.com/ausocean/trivialopus/codec/pcm"
)

// DecoderConfig holds the parameters of a Decoder.
type DecoderConfig struct {
	SampleRate int
	Channels   int
	PacketSize int // Bytes per packet in the input stream.

	// Loss is the percentage of packets to drop in order to exercise packet
	// loss concealment. Zero disables loss simulation.
	Loss int

	// InbandFEC recovers a dropped packet from the FEC data carried by the
	// packet that follows it, when that packet was received.
	InbandFEC bool

	Seed int64 // Seed for the loss simulation.
}

// Decoder decodes a stream of fixed-size Opus packets written to it and
// writes the decoded PCM to its destination.
type Decoder struct {
	dst io.Writer
	log logging.Logger
	cfg DecoderConfig
	dec *libopus.Decoder
	rng *rand.Rand

	buf       []byte  // Packet being filled.
	n         int     // Number of bytes held in buf.
	pcm       []int16 // Decoded samples, sized for the largest frame.
	out       []byte  // Decoded samples as S16_LE.
	lastFrame int     // Samples per channel in the last decoded frame, 0 until known.
	pending   int     // Dropped packets yet to be concealed.
	stats     Stats
}

// NewDecoder returns a new Decoder writing PCM to dst.
func NewDecoder(dst io.Writer, cfg DecoderConfig, l logging.Logger) (*Decoder, error) {
	if cfg.PacketSize <= 0 || cfg.PacketSize > MaxPacketSize {
		return nil, errors.Errorf("packet size must be between 1 and %d, got: %d", MaxPacketSize, cfg.PacketSize)
	}
	if cfg.Loss < 0 || cfg.Loss > 100 {
		return nil, errors.Errorf("loss must be between 0 and 100, got: %d", cfg.Loss)
	}

	dec, err := libopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	l.Debug("created opus decoder", "rate", cfg.SampleRate, "channels", cfg.Channels, "packetSize", cfg.PacketSize, "loss", cfg.Loss)

	return &Decoder{
		dst: dst,
		log: l,
		cfg: cfg,
		dec: dec,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		buf: make([]byte, cfg.PacketSize),
		pcm: make([]int16, MaxFrameSize*cfg.Channels),
		out: make([]byte, pcm.FrameBytes(MaxFrameSize, cfg.Channels)),
	}, nil
}

// Write takes packet data of arbitrary length and decodes every packet it
// completes. Bytes that do not complete a packet are held until the next call.
// It returns the number of bytes of b consumed and the first error encountered.
func (d *Decoder) Write(b []byte) (int, error) {
	var consumed int
	for len(b) > 0 {
		c := copy(d.buf[d.n:], b)
		d.n += c
		consumed += c
		b = b[c:]
		d.stats.BytesIn += c

		if d.n < len(d.buf) {
			break
		}
		d.n = 0
		err := d.packet(d.buf)
		if err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// packet handles one complete packet. Dropped packets are held back until a
// packet is received, so that they can be concealed at the duration of the
// stream, and the last of them recovered with FEC when enabled.
func (d *Decoder) packet(p []byte) error {
	if d.cfg.Loss > 0 && d.rng.Intn(100) < d.cfg.Loss {
		d.log.Debug("dropping packet", "packet", d.stats.Frames+d.pending)
		d.stats.Lost++
		d.pending++
		return nil
	}

	if d.pending != 0 {
		if d.lastFrame == 0 {
			n, err := d.duration(p)
			if err != nil {
				return err
			}
			d.lastFrame = n
		}
		for ; d.pending > 0; d.pending-- {
			var err error
			if d.pending == 1 && d.cfg.InbandFEC {
				err = d.recoverFEC(p)
			} else {
				err = d.conceal()
			}
			if err != nil {
				return err
			}
		}
	}

	n, err := d.dec.Decode(p, d.pcm)
	if err != nil {
		return errors.Wrap(err, "decoder failed")
	}
	d.log.Debug("decoded packet", "packet", d.stats.Frames, "samples", n)
	d.lastFrame = n
	return d.emit(n)
}

// duration returns the samples per channel carried by p. A separate libopus
// decoder is used so that the state of the stream decoder is untouched.
func (d *Decoder) duration(p []byte) (int, error) {
	dec, err := libopus.NewDecoder(d.cfg.SampleRate, d.cfg.Channels)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create decoder")
	}
	n, err := dec.Decode(p, d.pcm)
	if err != nil {
		return 0, errors.Wrap(err, "could not find packet duration")
	}
	return n, nil
}

// conceal synthesises the frame of a dropped packet using libopus packet loss
// concealment, assuming it had the same duration as the last decoded frame.
func (d *Decoder) conceal() error {
	err := d.dec.DecodePLC(d.frame())
	if err != nil {
		return errors.Wrap(err, "packet loss concealment failed")
	}
	return d.emit(d.lastFrame)
}

// recoverFEC rebuilds the frame of a dropped packet from the inband FEC data of
// the packet p that followed it. libopus falls back to concealment when p
// carries no FEC data, and the frame is still counted as recovered.
func (d *Decoder) recoverFEC(p []byte) error {
	err := d.dec.DecodeFEC(p, d.frame())
	if err != nil {
		return errors.Wrap(err, "fec decode failed")
	}
	d.stats.Recovered++
	return d.emit(d.lastFrame)
}

// frame returns pcm limited in both length and capacity to the last frame
// size, since libopus takes the frame size to synthesise from the capacity.
func (d *Decoder) frame() []int16 {
	n := d.lastFrame * d.cfg.Channels
	return d.pcm[:n:n]
}

// emit writes the first n samples per channel of pcm to dst.
func (d *Decoder) emit(n int) error {
	size := pcm.SamplesToBytes(d.out, d.pcm[:n*d.cfg.Channels])
	_, err := d.dst.Write(d.out[:size])
	if err != nil {
		return errors.Wrap(err, "could not write pcm")
	}
	d.stats.Frames++
	d.stats.BytesOut += size
	return nil
}

// Close conceals trailing dropped packets and discards any incomplete packet.
// If no packet of the stream was received, dropped packets are concealed as
// 20ms frames. The Decoder must not be used after Close.
func (d *Decoder) Close() error {
	if d.pending != 0 && d.lastFrame == 0 {
		d.log.Warning("no packet received, concealing as 20ms frames", "lost", d.pending)
		d.lastFrame = d.cfg.SampleRate / 50
	}
	for ; d.pending > 0; d.pending-- {
		err := d.conceal()
		if err != nil {
			return err
		}
	}
	if d.n != 0 {
		d.log.Info("discarding incomplete packet", "bytes", d.n)
		d.stats.Discarded += d.n
		d.n = 0
	}
	return nil
}

// Stats returns the Decoder's counters.
func (d *Decoder) Stats() Stats { return d.stats }
