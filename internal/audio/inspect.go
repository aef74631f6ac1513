// Package audio inspects the WAV files the model backend produces.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

// Format represents supported audio formats.
type Format string

// FormatWAV is the only container the backend emits.
const FormatWAV Format = "wav"

const bitsPerByte = 8

// ErrInvalidWAV is returned when data is not a decodable WAV stream.
var ErrInvalidWAV = errors.New("invalid WAV data")

// Info describes a decoded WAV stream.
type Info struct {
	Format     Format        `json:"format"`
	Duration   time.Duration `json:"duration"`
	FileSize   int64         `json:"fileSize"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bitDepth"`
}

// Inspect reads the WAV header of data and reports its properties.
func Inspect(data []byte) (Info, error) {
	return inspect(bytes.NewReader(data), int64(len(data)))
}

func inspect(reader io.ReadSeeker, size int64) (Info, error) {
	decoder := wav.NewDecoder(reader)
	if !decoder.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}

	err := decoder.FwdToPCM()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	bytesPerSecond := int64(decoder.SampleRate) * int64(decoder.NumChans) * int64(decoder.BitDepth) / bitsPerByte
	if bytesPerSecond <= 0 {
		return Info{}, fmt.Errorf("%w: empty format chunk", ErrInvalidWAV)
	}

	duration := time.Duration(decoder.PCMLen() * int64(time.Second) / bytesPerSecond)

	return Info{
		Format:     FormatWAV,
		Duration:   duration,
		FileSize:   size,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}, nil
}
