/*
NAME
  config.go

DESCRIPTION
  config.go contains the configuration record built from the command line.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for trivial-opus.
package config

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/trivialopus/codec/opus"
	"github.com/ausocean/trivialopus/codec/pcm"
)

// Mode selects which halves of the codec are run.
type Mode uint8

// Modes.
const (
	// ModeEncode is used when no mode flag is given. It encodes, but takes both
	// a packet size and a bitrate on the command line.
	ModeEncode Mode = iota
	ModeEncodeOnly
	ModeDecodeOnly
)

func (m Mode) String() string {
	switch m {
	case ModeEncode:
		return "encode"
	case ModeEncodeOnly:
		return "encode-only"
	case ModeDecodeOnly:
		return "decode-only"
	default:
		return "unknown"
	}
}

// Encodes reports whether the mode runs the encoder.
func (m Mode) Encodes() bool { return m != ModeDecodeOnly }

// Config holds the parameters of a single trivial-opus run. It is built once
// from the command line using Update and Validate, and is not changed after.
type Config struct {
	// Application is the encoder application profile. Encode modes only.
	Application opus.Application

	// Bandwidth is the encoder's audio bandwidth limit. Defaults to
	// opus.BandwidthAuto.
	Bandwidth opus.Bandwidth

	Bitrate    int  // Encoder bitrate in bits per second.
	Channels   int  // Number of audio channels, 1 for mono, 2 for stereo.
	Complexity int  // Encoder complexity, 0 (lowest) to 10 (highest).
	DTX        bool // Discontinuous transmission.
	ForceMono  bool // Encode stereo input as a mono mix.

	// FrameDuration is the frame duration token in milliseconds, one of
	// opus.FrameDurations. Defaults to "20".
	FrameDuration string

	InbandFEC bool   // Inband forward error correction.
	InputPath string // Path of the input file.

	// Logger holds the logger used by the config and everything built from it.
	// This must be set before calling Update or Validate.
	Logger logging.Logger

	// LogLevel is the logging verbosity level. Valid values are defined by
	// enums from the logging package.
	LogLevel int8

	LogPath string // Path of a rotated log file. Empty for stderr only.

	// Loss is the packet loss percentage, 0 to 100. The encoder is tuned for
	// it, and the decoder simulates it.
	Loss int

	MaxPayload int    // Maximum encoded packet size in bytes.
	Mode       Mode   // Which halves of the codec are run.
	OutputPath string // Path of the output file.
	PacketSize int    // Size in bytes of each packet read by the decoder.
	SampleRate int    // Samples a second (Hz).
}

// Validate checks for any errors in the config fields and defaults optional
// settings that have not been defined. The first invalid field is returned
// as an error.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate == nil {
			continue
		}
		err := v.Validate(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values into the correct type, and sets the config
// fields as appropriate. The first value that can not be parsed is returned as
// an error.
func (c *Config) Update(vars map[string]string) error {
	for _, value := range Variables {
		v, ok := vars[value.Name]
		if !ok || value.Update == nil {
			continue
		}
		err := value.Update(c, v)
		if err != nil {
			return err
		}
	}
	return nil
}

// LogInvalidField logs that the field name was bad or unset and has been
// defaulted to def.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

// FrameSize returns the number of samples per channel in each encoded frame.
func (c *Config) FrameSize() int {
	n, err := opus.FrameSize(c.FrameDuration, c.SampleRate)
	if err != nil {
		n, _ = opus.FrameSize(defaultFrameDuration, c.SampleRate)
	}
	return n
}

// Format returns the format of the PCM side of the codec.
func (c *Config) Format() pcm.BufferFormat {
	return pcm.BufferFormat{SFormat: pcm.S16_LE, Rate: uint(c.SampleRate), Channels: uint(c.Channels)}
}

// EncoderConfig returns the parameters for an opus.Encoder.
func (c *Config) EncoderConfig() opus.EncoderConfig {
	return opus.EncoderConfig{
		SampleRate:  c.SampleRate,
		Channels:    c.Channels,
		Application: c.Application,
		Bitrate:     c.Bitrate,
		Bandwidth:   c.Bandwidth,
		FrameSize:   c.FrameSize(),
		MaxPayload:  c.MaxPayload,
		Complexity:  c.Complexity,
		InbandFEC:   c.InbandFEC,
		ForceMono:   c.ForceMono,
		DTX:         c.DTX,
		Loss:        c.Loss,
	}
}

// DecoderConfig returns the parameters for an opus.Decoder.
func (c *Config) DecoderConfig() opus.DecoderConfig {
	return opus.DecoderConfig{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		PacketSize: c.PacketSize,
		Loss:       c.Loss,
		InbandFEC:  c.InbandFEC,
	}
}
