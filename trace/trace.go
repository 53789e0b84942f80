// Package trace records generated pulse waveforms as WAV files. One audio
// sample is taken per sample tick, so a recording of the default 100kHz
// sample grid plays back 2000 samples per 20ms pulse cycle.
package trace

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// 16-bit PCM amplitudes for the two logic levels.
	levelHigh = 28000
	levelLow  = -28000

	bitDepth = 16
)

// Recorder accumulates logic-level samples for one output pin.
type Recorder struct {
	buf *audio.IntBuffer
}

// NewRecorder creates a recorder for the given sample rate. For a pulse
// generator the natural rate is the sample-tick rate, clock frequency
// divided by prescaler_max+1.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
	}
}

// Append records one logic-level sample.
func (r *Recorder) Append(level bool) {
	v := levelLow
	if level {
		v = levelHigh
	}
	r.buf.Data = append(r.buf.Data, v)
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	return len(r.buf.Data)
}

// SampleRate returns the recorder's sample rate.
func (r *Recorder) SampleRate() int {
	return r.buf.Format.SampleRate
}

// WriteWAV writes the recorded waveform to a WAV file.
func (r *Recorder) WriteWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	enc := wav.NewEncoder(f, r.buf.Format.SampleRate, bitDepth, r.buf.Format.NumChannels, 1)
	if err := enc.Write(r.buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trace samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize trace file: %w", err)
	}

	return f.Close()
}

// ReadWAV loads a recorded waveform back as logic levels. Samples above the
// zero line read as high.
func ReadWAV(path string) ([]bool, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode trace samples: %w", err)
	}

	levels := make([]bool, len(buf.Data))
	for i, v := range buf.Data {
		levels[i] = v > 0
	}
	return levels, buf.Format.SampleRate, nil
}
