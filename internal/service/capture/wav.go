package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedWAV is returned for WAV files that are not 16-bit mono PCM.
var ErrUnsupportedWAV = errors.New("unsupported wav format")

// WAVFormat describes the PCM stream inside a WAV container.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// WriteWAV writes a 44-byte header followed by 16-bit mono PCM.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	dataSize := len(pcm)
	fields := []any{
		[]byte("RIFF"), uint32(36 + dataSize), []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(1), uint16(1),
		uint32(sampleRate), uint32(sampleRate * 2), uint16(2), uint16(16),
		[]byte("data"), uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	_, err := w.Write(pcm)
	return err
}

// EncodeWAV wraps PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// ReadWAVHeader consumes chunks up to the start of the data chunk and
// returns the stream format. Only 16-bit mono PCM is accepted.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVFormat{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVFormat{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	var format WAVFormat
	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WAVFormat{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVFormat{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVFormat{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if audioFormat := binary.LittleEndian.Uint16(body[0:2]); audioFormat != 1 {
				return WAVFormat{}, fmt.Errorf("%w: compression code %d", ErrUnsupportedWAV, audioFormat)
			}
			format = WAVFormat{
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVFormat{}, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			if format.Channels != 1 || format.BitsPerSample != 16 {
				return WAVFormat{}, fmt.Errorf("%w: %d channels, %d bits", ErrUnsupportedWAV, format.Channels, format.BitsPerSample)
			}
			return format, nil
		default:
			// Chunks are word aligned.
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return WAVFormat{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}
