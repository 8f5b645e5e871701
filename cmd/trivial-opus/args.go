/*
DESCRIPTION
  args.go turns the trivial-opus command line into a map of config variables.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/ausocean/trivialopus/codec/opus"
	"github.com/ausocean/trivialopus/config"
)

// errUsage is returned for a command line that does not fit the usage.
var errUsage = errors.New("bad usage")

const usage = `Usage: %[1]s [-e] <application> <sampling rate (Hz)> <channels (1/2)> <bits per second> [options] <input> <output>
       %[1]s -d <sampling rate (Hz)> <channels (1/2)> <packet size> [options] <input> <output>

application: voip | audio | restricted-lowdelay
options:
-e                   : only runs the encoder (output the bit-stream)
-d                   : only runs the decoder (reads the bit-stream as input)
-bandwidth <NB|MB|WB|SWB|FB> : audio bandwidth (from narrowband to fullband); default: sampling rate
-framesize <%[2]s> : frame size in ms; default: 20
-max_payload <bytes> : maximum payload size in bytes, default: %[3]d
-complexity <comp>   : complexity, 0 (lowest) ... 10 (highest); default: 0
-inbandfec           : enable SILK inband FEC
-forcemono           : force mono encoding, even for stereo input
-dtx                 : enable SILK DTX
-loss <perc>         : simulate packet loss, in percent (0-100); default: 0

Files ending in .wav are read and written as WAV, all others as raw
16-bit little-endian PCM.
`

// printUsage writes the usage text to w.
func printUsage(w io.Writer, name string) {
	fmt.Fprintf(w, usage, name, strings.Join(opus.FrameDurations, "|"), opus.MaxPacketSize)
}

// parseArgs maps the command line, excluding the program name, onto config
// variables. Values are not checked here beyond the shape of the command line;
// that is left to config.Update and config.Validate.
func parseArgs(args []string) (map[string]string, error) {
	mode := config.ModeEncode
	if len(args) > 0 {
		switch args[0] {
		case "-e":
			mode = config.ModeEncodeOnly
			args = args[1:]
		case "-d":
			mode = config.ModeDecodeOnly
			args = args[1:]
		}
	}

	var positional []string
	switch mode {
	case config.ModeEncode:
		positional = []string{config.KeyApplication, config.KeySampleRate, config.KeyChannels, config.KeyPacketSize, config.KeyBitrate}
	case config.ModeEncodeOnly:
		positional = []string{config.KeyApplication, config.KeySampleRate, config.KeyChannels, config.KeyBitrate}
	case config.ModeDecodeOnly:
		positional = []string{config.KeySampleRate, config.KeyChannels, config.KeyPacketSize}
	}
	if len(args) < len(positional)+2 {
		return nil, errors.Wrapf(errUsage, "need %d arguments for %s mode, got %d", len(positional)+2, mode, len(args))
	}

	vars := map[string]string{config.KeyMode: mode.String()}
	for i, k := range positional {
		vars[k] = args[i]
	}
	args = args[len(positional):]

	fs := flag.NewFlagSet("trivial-opus", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String(config.KeyBandwidth, "", "audio bandwidth")
	fs.String(config.KeyFrameSize, "", "frame size in ms")
	fs.String(config.KeyMaxPayload, "", "maximum payload size in bytes")
	fs.String(config.KeyComplexity, "", "encoder complexity")
	fs.Bool(config.KeyInbandFEC, false, "enable inband FEC")
	fs.Bool(config.KeyForceMono, false, "force mono encoding")
	fs.Bool(config.KeyDTX, false, "enable DTX")
	fs.String(config.KeyLoss, "", "packet loss percentage")
	err := fs.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	var encOnly []string
	fs.Visit(func(f *flag.Flag) {
		if mode == config.ModeDecodeOnly && isEncoderOnly(f.Name) {
			encOnly = append(encOnly, "-"+f.Name)
		}
		vars[f.Name] = f.Value.String()
	})
	if len(encOnly) != 0 {
		return nil, errors.Wrapf(errUsage, "option %s is only for encoding", strings.Join(encOnly, ", "))
	}

	files := fs.Args()
	if len(files) != 2 {
		return nil, errors.Wrapf(errUsage, "expected <input> <output> after options, got %q", files)
	}
	vars[config.KeyInputPath] = files[0]
	vars[config.KeyOutputPath] = files[1]
	return vars, nil
}

func isEncoderOnly(name string) bool {
	for _, k := range config.EncoderOnly {
		if k == name {
			return true
		}
	}
	return false
}
