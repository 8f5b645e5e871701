/*
DESCRIPTION
  trivial-opus encodes 16-bit little-endian PCM into fixed-size Opus packets,
  or decodes such packets back into PCM, using libopus.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// trivial-opus is a command line harness for the Opus codec.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/trivialopus/codec/opus"
	"github.com/ausocean/trivialopus/codec/pcm"
	"github.com/ausocean/trivialopus/config"
	"github.com/ausocean/trivialopus/device/file"
)

const progName = "trivial-opus"

// Logging configuration.
const (
	logLevelEnv  = "OPUS_LOG_LEVEL"
	logPathEnv   = "OPUS_LOG_PATH"
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Warning
	logLevelName = "Warning"
	logSuppress  = true
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run performs a single encode or decode as directed by args, writing
// diagnostics to stderr. It returns the process exit status.
func run(args []string, stderr io.Writer) int {
	vars, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		printUsage(stderr, progName)
		return 1
	}
	vars[config.KeyLogging] = logLevelName
	if v, ok := os.LookupEnv(logLevelEnv); ok {
		vars[config.KeyLogging] = v
	}
	if v, ok := os.LookupEnv(logPathEnv); ok {
		vars[config.KeyLogPath] = v
	}

	cfg := config.Config{Logger: logging.New(logVerbosity, stderr, logSuppress)}
	err = cfg.Update(vars)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 1
	}

	w := stderr
	if cfg.LogPath != "" {
		fileLog := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		defer fileLog.Close()
		w = io.MultiWriter(stderr, fileLog)
	}
	cfg.Logger = logging.New(cfg.LogLevel, w, logSuppress)

	err = cfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 1
	}

	if cfg.Mode.Encodes() {
		fmt.Fprintf(stderr, "Encoding %d Hz input at %.3f kb/s in %s with %d-sample frames.\n",
			cfg.SampleRate, float64(cfg.Bitrate)/1000, cfg.Bandwidth, cfg.FrameSize())
	} else {
		fmt.Fprintf(stderr, "Decoding with %d Hz output (%d channels)\n", cfg.SampleRate, cfg.Channels)
	}

	err = process(&cfg)
	if err != nil {
		cfg.Logger.Error("run failed", "error", err.Error())
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 1
	}
	return 0
}

// process copies the input file through the encoder or decoder selected by
// c into the output file.
func process(c *config.Config) error {
	f := c.Format()
	var inFmt, outFmt *pcm.BufferFormat
	if c.Mode.Encodes() {
		inFmt = &f
	} else {
		outFmt = &f
	}

	src, err := file.NewSource(c.InputPath, inFmt, c.Logger)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := file.NewSink(c.OutputPath, outFmt, c.Logger)
	if err != nil {
		return err
	}

	var (
		stage io.WriteCloser
		stats func() opus.Stats
	)
	if c.Mode.Encodes() {
		enc, err := opus.NewEncoder(dst, c.EncoderConfig(), c.Logger)
		if err != nil {
			dst.Close()
			return err
		}
		stage, stats = enc, enc.Stats
	} else {
		dec, err := opus.NewDecoder(dst, c.DecoderConfig(), c.Logger)
		if err != nil {
			dst.Close()
			return err
		}
		stage, stats = dec, dec.Stats
	}

	_, err = io.Copy(stage, src)
	if err != nil {
		stage.Close()
		dst.Close()
		return errors.Wrap(err, "could not process input")
	}
	err = stage.Close()
	if err != nil {
		dst.Close()
		return err
	}
	err = dst.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}

	s := stats()
	c.Logger.Info("finished", "mode", c.Mode.String(), "frames", s.Frames, "bytesIn", s.BytesIn, "bytesOut", s.BytesOut,
		"discarded", s.Discarded, "lost", s.Lost, "recovered", s.Recovered)
	return nil
}
