/*
NAME
  opus.go

DESCRIPTION
  opus.go contains the codec parameters shared by the Opus Encoder and Decoder.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package opus provides an Encoder and Decoder that transcode between 16-bit
// PCM and fixed-size Opus packets using libopus.
package opus

import (
	"fmt"

	libopus "github.com/hraban/opus"
	"github.com/pkg/errors"
)

const (
	MaxFrameSize  = 6 * 960  // Samples per channel in the longest (120ms at 48kHz) frame.
	MaxPacketSize = 3 * 1276 // Largest packet libopus will produce for one frame.
)

// Errors returned when parsing codec parameters.
var (
	ErrApplication = errors.New("unknown application")
	ErrBandwidth   = errors.New("unknown bandwidth")
	ErrFrameSize   = errors.New("unknown frame size")
	ErrSampleRate  = errors.New("unsupported sampling rate")
	ErrChannels    = errors.New("unsupported channel count")
)

// SampleRates are the sampling rates accepted by libopus.
var SampleRates = []int{8000, 12000, 16000, 24000, 48000}

// Application is the intended use of an encoder, which tunes its internal mode decisions.
type Application int

const (
	AppAudio Application = iota
	AppVoIP
	AppRestrictedLowDelay
)

// ParseApplication returns the Application named by s, one of "voip", "audio"
// or "restricted-lowdelay".
func ParseApplication(s string) (Application, error) {
	switch s {
	case "audio":
		return AppAudio, nil
	case "voip":
		return AppVoIP, nil
	case "restricted-lowdelay":
		return AppRestrictedLowDelay, nil
	default:
		return AppAudio, fmt.Errorf("%w: %s", ErrApplication, s)
	}
}

func (a Application) String() string {
	switch a {
	case AppAudio:
		return "audio"
	case AppVoIP:
		return "voip"
	case AppRestrictedLowDelay:
		return "restricted-lowdelay"
	default:
		return "unknown"
	}
}

func (a Application) lib() libopus.Application {
	switch a {
	case AppVoIP:
		return libopus.AppVoIP
	case AppRestrictedLowDelay:
		return libopus.AppRestrictedLowdelay
	default:
		return libopus.AppAudio
	}
}

// Bandwidth is an audio bandwidth limit for the encoder.
type Bandwidth int

const (
	BandwidthAuto Bandwidth = iota // Chosen by the encoder from the sampling rate and bitrate.
	Narrowband                     // 4kHz passband.
	Mediumband                     // 6kHz passband.
	Wideband                       // 8kHz passband.
	SuperWideband                  // 12kHz passband.
	Fullband                       // 20kHz passband.
)

// ParseBandwidth returns the Bandwidth for one of the tokens NB, MB, WB, SWB or FB.
func ParseBandwidth(s string) (Bandwidth, error) {
	switch s {
	case "NB":
		return Narrowband, nil
	case "MB":
		return Mediumband, nil
	case "WB":
		return Wideband, nil
	case "SWB":
		return SuperWideband, nil
	case "FB":
		return Fullband, nil
	default:
		return BandwidthAuto, fmt.Errorf("%w: %s, supported are NB, MB, WB, SWB, FB", ErrBandwidth, s)
	}
}

func (b Bandwidth) String() string {
	switch b {
	case Narrowband:
		return "narrowband"
	case Mediumband:
		return "mediumband"
	case Wideband:
		return "wideband"
	case SuperWideband:
		return "superwideband"
	case Fullband:
		return "fullband"
	case BandwidthAuto:
		return "auto bandwidth"
	default:
		return "unknown"
	}
}

func (b Bandwidth) lib() libopus.Bandwidth {
	switch b {
	case Narrowband:
		return libopus.Narrowband
	case Mediumband:
		return libopus.Mediumband
	case Wideband:
		return libopus.Wideband
	case SuperWideband:
		return libopus.SuperWideband
	default:
		return libopus.Fullband
	}
}

// FrameDurations are the accepted frame duration tokens, in milliseconds.
var FrameDurations = []string{"2.5", "5", "10", "20", "40", "60", "80", "100", "120"}

// FrameSize returns the number of samples per channel in a frame of the given
// duration token at the given sampling rate.
func FrameSize(duration string, rate int) (int, error) {
	switch duration {
	case "2.5":
		return rate / 400, nil
	case "5":
		return rate / 200, nil
	case "10":
		return rate / 100, nil
	case "20":
		return rate / 50, nil
	case "40":
		return rate / 25, nil
	case "60":
		return 3 * rate / 50, nil
	case "80":
		return 4 * rate / 50, nil
	case "100":
		return 5 * rate / 50, nil
	case "120":
		return 6 * rate / 50, nil
	default:
		return 0, fmt.Errorf("%w: %s, supported are 2.5, 5, 10, 20, 40, 60, 80, 100, 120", ErrFrameSize, duration)
	}
}

// CheckSampleRate returns an error if rate is not one of SampleRates.
func CheckSampleRate(rate int) error {
	for _, r := range SampleRates {
		if rate == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %d, must be one of 8000, 12000, 16000, 24000, 48000", ErrSampleRate, rate)
}

// CheckChannels returns an error if n is not 1 or 2.
func CheckChannels(n int) error {
	if n < 1 || n > 2 {
		return fmt.Errorf("%w: %d, must be 1 or 2", ErrChannels, n)
	}
	return nil
}

// Stats counts the work done by an Encoder or Decoder.
type Stats struct {
	Frames    int // Frames encoded or decoded, including concealed frames.
	BytesIn   int
	BytesOut  int
	Discarded int // Trailing bytes that did not make up a whole frame or packet.
	Lost      int // Packets dropped by loss simulation.
	// Recovered counts lost packets decoded from the FEC data of the packet
	// that followed them. libopus conceals such a packet instead when the
	// following packet carries no FEC data, and it is still counted here.
	Recovered int
}
