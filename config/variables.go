/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/trivialopus/codec/opus"
)

// Config map keys. Keys of options match their command line flag names.
const (
	KeyApplication = "application"
	KeyBandwidth   = "bandwidth"
	KeyBitrate     = "bitrate"
	KeyChannels    = "channels"
	KeyComplexity  = "complexity"
	KeyDTX         = "dtx"
	KeyForceMono   = "forcemono"
	KeyFrameSize   = "framesize"
	KeyInbandFEC   = "inbandfec"
	KeyInputPath   = "input"
	KeyLogging     = "logging"
	KeyLogPath     = "logpath"
	KeyLoss        = "loss"
	KeyMaxPayload  = "max_payload"
	KeyMode        = "mode"
	KeyOutputPath  = "output"
	KeyPacketSize  = "packetsize"
	KeySampleRate  = "rate"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultFrameDuration = "20"
	defaultMaxPayload    = opus.MaxPacketSize
	defaultVerbosity     = logging.Warning
	maxComplexity        = 10
)

// ErrInvalid is wrapped by every error returned from Update and Validate.
var ErrInvalid = errors.New("invalid configuration")

// Variables describes the variables that can be used to configure a run.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
// Validation happens in table order, so fields that others depend on come first.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string) error
	Validate func(*Config) error
}{
	{
		Name: KeyMode,
		Type: "enum:encode,encode-only,decode-only",
		Update: func(c *Config, v string) error {
			switch v {
			case "encode":
				c.Mode = ModeEncode
			case "encode-only":
				c.Mode = ModeEncodeOnly
			case "decode-only":
				c.Mode = ModeDecodeOnly
			default:
				return invalid("unknown mode: %s", v)
			}
			return nil
		},
		Validate: func(c *Config) error {
			if c.Mode > ModeDecodeOnly {
				return invalid("unknown mode: %d", c.Mode)
			}
			return nil
		},
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) error {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
				c.LogLevel = defaultVerbosity
			}
			return nil
		},
		Validate: func(c *Config) error {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
			return nil
		},
	},
	{
		Name:   KeyLogPath,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.LogPath = v; return nil },
	},
	{
		Name: KeyApplication,
		Type: "enum:voip,audio,restricted-lowdelay",
		Update: func(c *Config, v string) (err error) {
			c.Application, err = opus.ParseApplication(v)
			return wrap(err)
		},
	},
	{
		Name:   KeySampleRate,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.SampleRate, err = parseInt(KeySampleRate, v); return },
		Validate: func(c *Config) error {
			return wrap(opus.CheckSampleRate(c.SampleRate))
		},
	},
	{
		Name:   KeyChannels,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.Channels, err = parseInt(KeyChannels, v); return },
		Validate: func(c *Config) error {
			return wrap(opus.CheckChannels(c.Channels))
		},
	},
	{
		Name:   KeyPacketSize,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.PacketSize, err = parseInt(KeyPacketSize, v); return },
		Validate: func(c *Config) error {
			if c.Mode == ModeDecodeOnly && (c.PacketSize <= 0 || c.PacketSize > opus.MaxPacketSize) {
				return invalid("packet size must be between 1 and %d, got: %d", opus.MaxPacketSize, c.PacketSize)
			}
			return nil
		},
	},
	{
		Name:   KeyBitrate,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.Bitrate, err = parseInt(KeyBitrate, v); return },
		Validate: func(c *Config) error {
			if c.Mode.Encodes() && c.Bitrate <= 0 {
				return invalid("bitrate must be positive, got: %d", c.Bitrate)
			}
			return nil
		},
	},
	{
		Name: KeyBandwidth,
		Type: "enum:NB,MB,WB,SWB,FB",
		Update: func(c *Config, v string) (err error) {
			c.Bandwidth, err = opus.ParseBandwidth(v)
			return wrap(err)
		},
	},
	{
		Name: KeyFrameSize,
		Type: "enum:" + strings.Join(opus.FrameDurations, ","),
		Update: func(c *Config, v string) error {
			_, err := opus.FrameSize(v, opus.SampleRates[0])
			if err != nil {
				return wrap(err)
			}
			c.FrameDuration = v
			return nil
		},
		Validate: func(c *Config) error {
			if c.FrameDuration == "" {
				c.LogInvalidField(KeyFrameSize, defaultFrameDuration)
				c.FrameDuration = defaultFrameDuration
			}
			_, err := opus.FrameSize(c.FrameDuration, c.SampleRate)
			return wrap(err)
		},
	},
	{
		Name:   KeyMaxPayload,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.MaxPayload, err = parseInt(KeyMaxPayload, v); return },
		Validate: func(c *Config) error {
			if c.MaxPayload == 0 {
				c.LogInvalidField(KeyMaxPayload, defaultMaxPayload)
				c.MaxPayload = defaultMaxPayload
			}
			if c.MaxPayload < 0 || c.MaxPayload > opus.MaxPacketSize {
				return invalid("max_payload must be between 1 and %d, got: %d", opus.MaxPacketSize, c.MaxPayload)
			}
			return nil
		},
	},
	{
		Name:   KeyComplexity,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.Complexity, err = parseInt(KeyComplexity, v); return },
		Validate: func(c *Config) error {
			if c.Complexity < 0 || c.Complexity > maxComplexity {
				return invalid("complexity must be between 0 and %d, got: %d", maxComplexity, c.Complexity)
			}
			return nil
		},
	},
	{
		Name:   KeyInbandFEC,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.InbandFEC, err = parseBool(KeyInbandFEC, v); return },
	},
	{
		Name:   KeyForceMono,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.ForceMono, err = parseBool(KeyForceMono, v); return },
	},
	{
		Name:   KeyDTX,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.DTX, err = parseBool(KeyDTX, v); return },
	},
	{
		Name:   KeyLoss,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.Loss, err = parseInt(KeyLoss, v); return },
		Validate: func(c *Config) error {
			if c.Loss < 0 || c.Loss > 100 {
				return invalid("loss must be between 0 and 100, got: %d", c.Loss)
			}
			return nil
		},
	},
	{
		Name:   KeyInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.InputPath = v; return nil },
		Validate: func(c *Config) error {
			if c.InputPath == "" {
				return invalid("no input file")
			}
			return nil
		},
	},
	{
		Name:   KeyOutputPath,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.OutputPath = v; return nil },
		Validate: func(c *Config) error {
			if c.OutputPath == "" {
				return invalid("no output file")
			}
			return nil
		},
	},
}

// EncoderOnly lists the keys of options that only apply to the encoder.
var EncoderOnly = []string{KeyBandwidth, KeyFrameSize, KeyMaxPayload, KeyComplexity, KeyForceMono, KeyDTX}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// wrap marks err as a configuration error while keeping it matchable with errors.Is.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}

func parseInt(n, v string) (int, error) {
	_v, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("expected integer for param %s, got: %s", n, v)
	}
	return _v, nil
}

func parseBool(n, v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, invalid("expected bool for param %s, got: %s", n, v)
	}
}
