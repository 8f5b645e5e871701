/*
NAME
  pcm.go

DESCRIPTION
  pcm.go contains functions for framing and converting pcm audio.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pcm provides functions for processing and converting pcm audio.
package pcm

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// SampleFormat is the format that PCM samples can be in.
type SampleFormat int

// Used to represent an unknown format.
const (
	Unknown SampleFormat = -1
)

// Sample formats that we use.
const (
	S16_LE SampleFormat = iota
	S32_LE
)

// ByteDepth is the number of bytes in one S16_LE sample.
const ByteDepth = 2

// BufferFormat contains the format of a stream of PCM data.
type BufferFormat struct {
	SFormat  SampleFormat
	Rate     uint
	Channels uint
}

// BitDepth returns the number of bits in a single sample of format f, or 0 if
// the format is unknown.
func (f SampleFormat) BitDepth() int {
	switch f {
	case S16_LE:
		return 16
	case S32_LE:
		return 32
	default:
		return 0
	}
}

// FrameBytes returns the number of bytes in a frame of S16_LE audio holding
// frameSize samples per channel.
func FrameBytes(frameSize, channels int) int {
	return frameSize * channels * ByteDepth
}

// BytesToSamples decodes little-endian 16-bit samples from src into dst and
// returns the number of samples decoded. A trailing odd byte is ignored.
func BytesToSamples(dst []int16, src []byte) int {
	n := len(src) / ByteDepth
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*ByteDepth:]))
	}
	return n
}

// SamplesToBytes encodes the samples in src into dst as little-endian 16-bit
// values and returns the number of bytes written.
func SamplesToBytes(dst []byte, src []int16) int {
	n := len(src)
	if n*ByteDepth > len(dst) {
		n = len(dst) / ByteDepth
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*ByteDepth:], uint16(src[i]))
	}
	return n * ByteDepth
}

// DualMono replaces each interleaved stereo pair in s with the average of the
// two channels, so that both channels carry the same mono mix.
func DualMono(s []int16) {
	for i := 0; i+1 < len(s); i += 2 {
		m := int16((int32(s[i]) + int32(s[i+1])) / 2)
		s[i], s[i+1] = m, m
	}
}

// String returns the string representation of a SampleFormat.
func (f SampleFormat) String() string {
	switch f {
	case S16_LE:
		return "S16_LE"
	case S32_LE:
		return "S32_LE"
	default:
		return "Unknown"
	}
}

// SFFromString takes a string representing a sample format and returns the corresponding SampleFormat.
func SFFromString(s string) (SampleFormat, error) {
	switch s {
	case "S16_LE":
		return S16_LE, nil
	case "S32_LE":
		return S32_LE, nil
	default:
		return Unknown, errors.Errorf("unknown sample format (%s)", s)
	}
}

// SFFromBitDepth returns the little-endian SampleFormat holding samples of
// the given bit depth.
func SFFromBitDepth(bits int) (SampleFormat, error) {
	switch bits {
	case 16:
		return S16_LE, nil
	case 32:
		return S32_LE, nil
	default:
		return Unknown, errors.Errorf("unsupported bit depth (%d)", bits)
	}
}
