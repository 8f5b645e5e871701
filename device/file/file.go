/*
DESCRIPTION
  file.go provides the file endpoints of a codec run. Raw files are passed
  through as they are, while PCM files with a .wav extension are read and
  written as RIFF/WAVE.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides sources and sinks for raw and WAV files.
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ausocean/trivialopus/codec/pcm"
)

const wavFormat = 1 // WAVE_FORMAT_PCM.

// ErrFormat is returned when a WAV file does not match the configured format.
var ErrFormat = errors.New("wav format mismatch")

// IsWAV reports whether path names a WAV file.
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// NewSource opens the file at path for reading. If f is nil, or path is not a
// WAV file, the file's bytes are read as they are. Otherwise the WAV header is
// checked against f and the source yields the file's S16_LE samples.
func NewSource(path string, f *pcm.BufferFormat, l logging.Logger) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open input file: %w", err)
	}
	if f == nil || !IsWAV(path) {
		l.Debug("opened raw input", "path", path)
		return file, nil
	}

	r, err := readWAV(file, *f)
	if err != nil {
		file.Close()
		return nil, err
	}
	l.Debug("opened wav input", "path", path, "rate", f.Rate, "channels", f.Channels)
	return &source{Reader: r, f: file}, nil
}

// readWAV checks the header of the WAV file r and returns its samples as S16_LE.
func readWAV(r io.ReadSeeker, f pcm.BufferFormat) (io.Reader, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	sf, err := pcm.SFFromBitDepth(int(dec.BitDepth))
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	case uint(dec.SampleRate) != f.Rate:
		return nil, fmt.Errorf("%w: file rate %d Hz, want %d Hz", ErrFormat, dec.SampleRate, f.Rate)
	case uint(dec.NumChans) != f.Channels:
		return nil, fmt.Errorf("%w: file has %d channels, want %d", ErrFormat, dec.NumChans, f.Channels)
	case sf != f.SFormat:
		return nil, fmt.Errorf("%w: file has %s samples, want %s", ErrFormat, sf, f.SFormat)
	}

	err = dec.FwdToPCM()
	if err != nil {
		return nil, errors.Wrap(err, "could not find wav samples")
	}
	return &wavReader{
		dec:  dec,
		buf:  &audio.IntBuffer{},
		data: make([]int, wavChunk*f.Channels),
		left: dec.PCMSize,
	}, nil
}

// wavChunk is the number of sample frames read from a WAV file at a time.
const wavChunk = 4096

// wavReader reads the PCM of a WAV file as S16_LE, a chunk at a time.
type wavReader struct {
	dec  *wav.Decoder
	buf  *audio.IntBuffer
	data []int // Sample space for buf.
	left int   // Bytes of the data chunk yet to be read.

	s   []int16
	out []byte // Converted samples not yet read.
	b   []byte // Conversion space backing out.
}

// Read implements io.Reader.
func (r *wavReader) Read(p []byte) (int, error) {
	if len(r.out) == 0 {
		err := r.fill()
		if err != nil {
			return 0, err
		}
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

// fill reads the next chunk of samples into out. It returns io.EOF at the end
// of the PCM data.
func (r *wavReader) fill() error {
	want := r.left / pcm.ByteDepth
	if want == 0 {
		return io.EOF
	}
	if want > len(r.data) {
		want = len(r.data)
	}
	r.buf.Data = r.data[:want]
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return errors.Wrap(err, "could not read wav samples")
	}
	if n == 0 {
		return io.EOF
	}
	r.left -= n * pcm.ByteDepth
	if cap(r.s) < n {
		r.s = make([]int16, n)
		r.b = make([]byte, n*pcm.ByteDepth)
	}
	r.s = r.s[:n]
	for i, v := range r.buf.Data[:n] {
		r.s[i] = int16(v)
	}
	r.out = r.b[:pcm.SamplesToBytes(r.b[:n*pcm.ByteDepth], r.s)]
	return nil
}

// source reads decoded WAV samples and closes the underlying file.
type source struct {
	io.Reader
	f *os.File
}

func (s *source) Close() error { return s.f.Close() }

// NewSink creates the file at path for writing. If f is nil, or path is not a
// WAV file, bytes are written as they are. Otherwise the bytes written must be
// S16_LE samples of format f, and the WAV header is completed on Close.
func NewSink(path string, f *pcm.BufferFormat, l logging.Logger) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	if f == nil || !IsWAV(path) {
		l.Debug("created raw output", "path", path)
		return file, nil
	}

	rate, ch, bits := int(f.Rate), int(f.Channels), f.SFormat.BitDepth()
	l.Debug("created wav output", "path", path, "rate", rate, "channels", ch)
	return &sink{
		f:   file,
		enc: wav.NewEncoder(file, rate, bits, ch, wavFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: ch, SampleRate: rate},
			SourceBitDepth: bits,
		},
	}, nil
}

// sink encodes S16_LE samples written to it as WAV.
type sink struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer

	rem []byte  // Bytes of an incomplete sample frame.
	s   []int16 // Conversion space.
}

// Write implements io.Writer. Bytes that do not complete a sample frame across
// all channels are held until the next call.
func (s *sink) Write(p []byte) (int, error) {
	n := len(p)
	if len(s.rem) != 0 {
		p = append(s.rem, p...)
		s.rem = nil
	}
	frame := pcm.FrameBytes(1, s.buf.Format.NumChannels)
	if tail := len(p) % frame; tail != 0 {
		s.rem = append([]byte(nil), p[len(p)-tail:]...)
		p = p[:len(p)-tail]
	}
	if len(p) == 0 {
		return n, nil
	}

	ns := len(p) / pcm.ByteDepth
	if cap(s.s) < ns {
		s.s = make([]int16, ns)
	}
	s.s = s.s[:ns]
	pcm.BytesToSamples(s.s, p)

	data := s.buf.Data[:0]
	for _, v := range s.s {
		data = append(data, int(v))
	}
	s.buf.Data = data
	err := s.enc.Write(s.buf)
	if err != nil {
		return 0, errors.Wrap(err, "could not write wav samples")
	}
	return n, nil
}

// Close completes the WAV header and closes the file.
func (s *sink) Close() error {
	err := s.enc.Close()
	if err != nil {
		s.f.Close()
		return errors.Wrap(err, "could not finalise wav file")
	}
	return s.f.Close()
}
