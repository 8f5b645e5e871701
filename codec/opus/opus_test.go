/*
NAME
  opus_test.go

DESCRIPTION
  opus_test.go contains tests for the opus package.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package opus

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/trivialopus/codec/pcm"
)

// sine returns dur seconds of a 440Hz tone as interleaved S16_LE.
func sine(rate, channels int, dur float64) []byte {
	n := int(float64(rate) * dur)
	s := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			s[i*channels+c] = v
		}
	}
	b := make([]byte, len(s)*pcm.ByteDepth)
	pcm.SamplesToBytes(b, s)
	return b
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		dur     string
		rate    int
		want    int
		wantErr error
	}{
		{dur: "2.5", rate: 48000, want: 120},
		{dur: "5", rate: 8000, want: 40},
		{dur: "10", rate: 12000, want: 120},
		{dur: "20", rate: 16000, want: 320},
		{dur: "40", rate: 24000, want: 960},
		{dur: "60", rate: 48000, want: 2880},
		{dur: "80", rate: 48000, want: 3840},
		{dur: "100", rate: 48000, want: 4800},
		{dur: "120", rate: 48000, want: MaxFrameSize},
		{dur: "30", rate: 48000, wantErr: ErrFrameSize},
		{dur: "", rate: 48000, wantErr: ErrFrameSize},
	}
	for _, test := range tests {
		got, err := FrameSize(test.dur, test.rate)
		if !errors.Is(err, test.wantErr) {
			t.Errorf("FrameSize(%q, %d) error = %v, want %v", test.dur, test.rate, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("FrameSize(%q, %d) = %d, want %d", test.dur, test.rate, got, test.want)
		}
	}
}

func TestParseBandwidth(t *testing.T) {
	tests := []struct {
		in      string
		want    Bandwidth
		str     string
		wantErr error
	}{
		{in: "NB", want: Narrowband, str: "narrowband"},
		{in: "MB", want: Mediumband, str: "mediumband"},
		{in: "WB", want: Wideband, str: "wideband"},
		{in: "SWB", want: SuperWideband, str: "superwideband"},
		{in: "FB", want: Fullband, str: "fullband"},
		{in: "fb", want: BandwidthAuto, str: "auto bandwidth", wantErr: ErrBandwidth},
		{in: "UWB", want: BandwidthAuto, str: "auto bandwidth", wantErr: ErrBandwidth},
	}
	for _, test := range tests {
		got, err := ParseBandwidth(test.in)
		if !errors.Is(err, test.wantErr) {
			t.Errorf("ParseBandwidth(%q) error = %v, want %v", test.in, err, test.wantErr)
		}
		if got != test.want || got.String() != test.str {
			t.Errorf("ParseBandwidth(%q) = %v (%s), want %v (%s)", test.in, got, got, test.want, test.str)
		}
	}
}

func TestParseApplication(t *testing.T) {
	for _, name := range []string{"voip", "audio", "restricted-lowdelay"} {
		a, err := ParseApplication(name)
		if err != nil {
			t.Errorf("ParseApplication(%q) unexpected error: %v", name, err)
		}
		if a.String() != name {
			t.Errorf("ParseApplication(%q).String() = %q", name, a.String())
		}
	}
	_, err := ParseApplication("music")
	if !errors.Is(err, ErrApplication) {
		t.Errorf("expected ErrApplication, got %v", err)
	}
}

func TestCheckRateAndChannels(t *testing.T) {
	for _, r := range SampleRates {
		if err := CheckSampleRate(r); err != nil {
			t.Errorf("CheckSampleRate(%d) unexpected error: %v", r, err)
		}
	}
	for _, r := range []int{0, 44100, 96000, -8000} {
		if err := CheckSampleRate(r); !errors.Is(err, ErrSampleRate) {
			t.Errorf("CheckSampleRate(%d) = %v, want ErrSampleRate", r, err)
		}
	}
	for n, ok := range map[int]bool{0: false, 1: true, 2: true, 3: false} {
		err := CheckChannels(n)
		if (err == nil) != ok {
			t.Errorf("CheckChannels(%d) = %v", n, err)
		}
	}
}

// TestEncodeCBR checks that the encoder emits one constant size packet per
// complete frame, within the payload limit, and holds back a trailing partial
// frame, for each of the encoder controls.
func TestEncodeCBR(t *testing.T) {
	const (
		rate    = 16000
		bitrate = 32000
		cbrSize = bitrate / 8 / 50 // 20ms frames.
	)

	tests := []struct {
		name       string
		bandwidth  Bandwidth
		complexity int
		dtx        bool
		fec        bool
		loss       int
		maxPayload int
		want       int
	}{
		{name: "defaults", maxPayload: MaxPacketSize, want: cbrSize},
		{name: "wideband", bandwidth: Wideband, maxPayload: MaxPacketSize, want: cbrSize},
		{name: "narrowband", bandwidth: Narrowband, maxPayload: MaxPacketSize, want: cbrSize},
		{name: "complexity 10", complexity: 10, maxPayload: MaxPacketSize, want: cbrSize},
		{name: "dtx", dtx: true, maxPayload: MaxPacketSize, want: cbrSize},
		{name: "fec", fec: true, loss: 10, maxPayload: MaxPacketSize, want: cbrSize},
		{name: "payload below cbr size", maxPayload: 60, want: 60},
		{name: "payload at cbr size", maxPayload: cbrSize, want: cbrSize},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in := sine(rate, 1, 1)
			in = append(in, 0x01, 0x02, 0x03) // Partial frame.

			var packets [][]byte
			dst := writerFunc(func(p []byte) (int, error) {
				packets = append(packets, append([]byte(nil), p...))
				return len(p), nil
			})

			enc, err := NewEncoder(dst, EncoderConfig{
				SampleRate:  rate,
				Channels:    1,
				Application: AppAudio,
				Bitrate:     bitrate,
				Bandwidth:   test.bandwidth,
				FrameSize:   rate / 50,
				MaxPayload:  test.maxPayload,
				Complexity:  test.complexity,
				DTX:         test.dtx,
				InbandFEC:   test.fec,
				Loss:        test.loss,
			}, (*logging.TestLogger)(t))
			if err != nil {
				t.Fatalf("could not create encoder: %v", err)
			}

			// Write in uneven chunks to exercise frame assembly.
			for off := 0; off < len(in); off += 333 {
				end := off + 333
				if end > len(in) {
					end = len(in)
				}
				n, err := enc.Write(in[off:end])
				if err != nil {
					t.Fatalf("unexpected write error: %v", err)
				}
				if n != end-off {
					t.Fatalf("consumed %d bytes, want %d", n, end-off)
				}
			}
			err = enc.Close()
			if err != nil {
				t.Fatalf("unexpected close error: %v", err)
			}

			if len(packets) != 50 {
				t.Fatalf("got %d packets, want 50", len(packets))
			}
			for i, p := range packets {
				if len(p) > test.maxPayload {
					t.Errorf("packet %d has size %d, above max payload %d", i, len(p), test.maxPayload)
				}
				if len(p) != test.want {
					t.Errorf("packet %d has size %d, want %d", i, len(p), test.want)
				}
			}
			s := enc.Stats()
			if s.Frames != 50 || s.Discarded != 3 || s.BytesIn != len(in) || s.BytesOut != 50*test.want {
				t.Errorf("unexpected stats: %+v", s)
			}
		})
	}
}

// TestRoundTrip encodes then decodes a tone and checks that the sample count
// survives for each supported channel count.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		rate      int
		channels  int
		bitrate   int
		dur       string
		forceMono bool
		loss      int
		fec       bool
		bandwidth Bandwidth
		dtx       bool
		payload   int
	}{
		{name: "mono 16kHz", rate: 16000, channels: 1, bitrate: 32000, dur: "20"},
		{name: "stereo 48kHz", rate: 48000, channels: 2, bitrate: 64000, dur: "20"},
		{name: "stereo forced mono", rate: 48000, channels: 2, bitrate: 64000, dur: "10", forceMono: true},
		{name: "narrowband 60ms", rate: 8000, channels: 1, bitrate: 12000, dur: "60"},
		{name: "loss with plc", rate: 16000, channels: 1, bitrate: 32000, dur: "20", loss: 20},
		{name: "loss with fec", rate: 16000, channels: 1, bitrate: 32000, dur: "20", loss: 20, fec: true},
		{name: "superwideband dtx", rate: 24000, channels: 2, bitrate: 48000, dur: "40", bandwidth: SuperWideband, dtx: true},
		{name: "capped payload", rate: 48000, channels: 1, bitrate: 64000, dur: "20", payload: 100},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := (*logging.TestLogger)(t)
			frameSize, err := FrameSize(test.dur, test.rate)
			if err != nil {
				t.Fatal(err)
			}
			in := sine(test.rate, test.channels, 0.6)
			maxPayload := MaxPacketSize
			if test.payload != 0 {
				maxPayload = test.payload
			}

			var packets bytes.Buffer
			enc, err := NewEncoder(&packets, EncoderConfig{
				SampleRate:  test.rate,
				Channels:    test.channels,
				Application: AppVoIP,
				Bitrate:     test.bitrate,
				FrameSize:   frameSize,
				MaxPayload:  maxPayload,
				Bandwidth:   test.bandwidth,
				DTX:         test.dtx,
				Complexity:  5,
				ForceMono:   test.forceMono,
				InbandFEC:   test.fec,
				Loss:        test.loss,
			}, l)
			if err != nil {
				t.Fatalf("could not create encoder: %v", err)
			}
			if _, err = enc.Write(in); err != nil {
				t.Fatalf("could not encode: %v", err)
			}
			enc.Close()

			frames := enc.Stats().Frames
			if frames == 0 || packets.Len()%frames != 0 {
				t.Fatalf("packets are not of constant size: %d bytes in %d frames", packets.Len(), frames)
			}
			if packets.Len()/frames > maxPayload {
				t.Fatalf("packet size %d above max payload %d", packets.Len()/frames, maxPayload)
			}

			var out bytes.Buffer
			dec, err := NewDecoder(&out, DecoderConfig{
				SampleRate: test.rate,
				Channels:   test.channels,
				PacketSize: packets.Len() / frames,
				Loss:       test.loss,
				InbandFEC:  test.fec,
			}, l)
			if err != nil {
				t.Fatalf("could not create decoder: %v", err)
			}
			if _, err = dec.Write(packets.Bytes()); err != nil {
				t.Fatalf("could not decode: %v", err)
			}
			if err = dec.Close(); err != nil {
				t.Fatalf("could not close decoder: %v", err)
			}

			want := frames * pcm.FrameBytes(frameSize, test.channels)
			if out.Len() != want {
				t.Errorf("decoded %d bytes, want %d", out.Len(), want)
			}
			s := dec.Stats()
			if s.Frames != frames {
				t.Errorf("decoder produced %d frames, want %d", s.Frames, frames)
			}
			if test.loss == 0 && s.Lost != 0 {
				t.Errorf("lost %d packets without loss simulation", s.Lost)
			}
			if !test.fec && s.Recovered != 0 {
				t.Errorf("recovered %d packets without fec", s.Recovered)
			}
		})
	}
}

// encode returns the packets for dur seconds of a mono tone and the packet size.
func encode(t *testing.T, rate, frameSize int, fec bool, dur float64) ([]byte, int) {
	var packets bytes.Buffer
	enc, err := NewEncoder(&packets, EncoderConfig{
		SampleRate:  rate,
		Channels:    1,
		Application: AppVoIP,
		Bitrate:     24000,
		FrameSize:   frameSize,
		MaxPayload:  MaxPacketSize,
		InbandFEC:   fec,
		Loss:        30,
	}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create encoder: %v", err)
	}
	if _, err = enc.Write(sine(rate, 1, dur)); err != nil {
		t.Fatalf("could not encode: %v", err)
	}
	enc.Close()
	return packets.Bytes(), packets.Len() / enc.Stats().Frames
}

// TestLeadingLoss checks that dropped packets at the start of a stream are
// concealed at the stream's frame duration rather than a default one.
func TestLeadingLoss(t *testing.T) {
	const (
		rate      = 16000
		frameSize = 3 * rate / 50 // 60ms.
		loss      = 50
	)

	// Find a seed whose first draw drops a packet and whose second keeps one.
	seed := int64(-1)
	for s := int64(0); s < 1000; s++ {
		r := rand.New(rand.NewSource(s))
		if r.Intn(100) < loss && r.Intn(100) >= loss {
			seed = s
			break
		}
	}
	if seed < 0 {
		t.Fatal("no suitable seed")
	}

	for _, fec := range []bool{false, true} {
		packets, size := encode(t, rate, frameSize, fec, 1.2)
		frames := len(packets) / size

		var out bytes.Buffer
		dec, err := NewDecoder(&out, DecoderConfig{
			SampleRate: rate,
			Channels:   1,
			PacketSize: size,
			Loss:       loss,
			InbandFEC:  fec,
			Seed:       seed,
		}, (*logging.TestLogger)(t))
		if err != nil {
			t.Fatalf("could not create decoder: %v", err)
		}
		if _, err = dec.Write(packets); err != nil {
			t.Fatalf("could not decode: %v", err)
		}
		if err = dec.Close(); err != nil {
			t.Fatalf("could not close decoder: %v", err)
		}

		s := dec.Stats()
		if s.Lost == 0 {
			t.Fatalf("fec %v: no packets lost", fec)
		}
		if s.Frames != frames {
			t.Errorf("fec %v: got %d frames, want %d", fec, s.Frames, frames)
		}
		want := frames * pcm.FrameBytes(frameSize, 1)
		if out.Len() != want {
			t.Errorf("fec %v: decoded %d bytes, want %d", fec, out.Len(), want)
		}
	}
}

// TestRecoveredWithoutEncoderFEC checks that decoder side FEC still produces
// whole frames when the packets carry no FEC data, and counts them as
// recovered.
func TestRecoveredWithoutEncoderFEC(t *testing.T) {
	const rate = 16000
	packets, size := encode(t, rate, rate/50, false, 1)
	frames := len(packets) / size

	var out bytes.Buffer
	dec, err := NewDecoder(&out, DecoderConfig{
		SampleRate: rate,
		Channels:   1,
		PacketSize: size,
		Loss:       25,
		InbandFEC:  true,
	}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	if _, err = dec.Write(packets); err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	if err = dec.Close(); err != nil {
		t.Fatalf("could not close decoder: %v", err)
	}

	s := dec.Stats()
	if s.Lost == 0 || s.Recovered == 0 || s.Recovered > s.Lost {
		t.Errorf("unexpected stats: %+v", s)
	}
	if out.Len() != frames*pcm.FrameBytes(rate/50, 1) {
		t.Errorf("decoded %d bytes, want %d", out.Len(), frames*pcm.FrameBytes(rate/50, 1))
	}
}

// TestAllLost checks that a stream with no received packets is concealed as
// 20ms frames on Close.
func TestAllLost(t *testing.T) {
	const rate = 8000
	packets, size := encode(t, rate, rate/100, false, 0.2)
	frames := len(packets) / size

	var out bytes.Buffer
	dec, err := NewDecoder(&out, DecoderConfig{SampleRate: rate, Channels: 1, PacketSize: size, Loss: 100}, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	if _, err = dec.Write(packets); err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	if err = dec.Close(); err != nil {
		t.Fatalf("could not close decoder: %v", err)
	}
	if s := dec.Stats(); s.Lost != frames || s.Frames != frames {
		t.Errorf("unexpected stats: %+v", s)
	}
	if out.Len() != frames*pcm.FrameBytes(rate/50, 1) {
		t.Errorf("decoded %d bytes, want %d", out.Len(), frames*pcm.FrameBytes(rate/50, 1))
	}
}

func TestNewDecoderBadConfig(t *testing.T) {
	l := (*logging.TestLogger)(t)
	tests := []DecoderConfig{
		{SampleRate: 16000, Channels: 1, PacketSize: 0},
		{SampleRate: 16000, Channels: 1, PacketSize: MaxPacketSize + 1},
		{SampleRate: 16000, Channels: 1, PacketSize: 80, Loss: 101},
	}
	for i, cfg := range tests {
		_, err := NewDecoder(&bytes.Buffer{}, cfg, l)
		if err == nil {
			t.Errorf("did not get expected error for config %d: %+v", i, cfg)
		}
	}
}

func TestNewEncoderBadConfig(t *testing.T) {
	l := (*logging.TestLogger)(t)
	base := EncoderConfig{SampleRate: 16000, Channels: 1, Bitrate: 32000, FrameSize: 320, MaxPayload: 100}

	tests := []func(*EncoderConfig){
		func(c *EncoderConfig) { c.FrameSize = 0 },
		func(c *EncoderConfig) { c.FrameSize = MaxFrameSize + 1 },
		func(c *EncoderConfig) { c.MaxPayload = 0 },
		func(c *EncoderConfig) { c.MaxPayload = MaxPacketSize + 1 },
		func(c *EncoderConfig) { c.SampleRate = 44100 },
	}
	for i, mod := range tests {
		cfg := base
		mod(&cfg)
		_, err := NewEncoder(&bytes.Buffer{}, cfg, l)
		if err == nil {
			t.Errorf("did not get expected error for config %d: %+v", i, cfg)
		}
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
