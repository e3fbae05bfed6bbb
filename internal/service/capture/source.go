package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPermissionDenied  = errors.New("audio source permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrSourceClosed means the caller side of the audio source went away,
	// for example a hangup or the end of a recorded call.
	ErrSourceClosed = errors.New("audio source closed")
)

// FrameStream yields 16-bit little-endian mono PCM frames until io.EOF.
type FrameStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Source grants access to a live audio stream.
type Source interface {
	Acquire(ctx context.Context) (FrameStream, error)
	SampleRate() int
}

// ReaderSource reads raw PCM from a shared reader. Each Acquire continues
// where the previous turn stopped, so one reader can carry a whole call.
// Frames a capture read but did not use are replayed first.
type ReaderSource struct {
	mu         sync.Mutex
	r          io.Reader
	sampleRate int
	frameBytes int
	pace       bool
	closer     io.Closer
	pending    [][]byte
	exhausted  bool
	closed     bool
}

// NewReaderSource wraps r. When pace is true frames are released in real
// time, which is how a microphone or phone line behaves.
func NewReaderSource(r io.Reader, sampleRate int, frame time.Duration, pace bool) *ReaderSource {
	frameBytes := int(int64(sampleRate) * int64(frame) / int64(time.Second) * 2)
	if frameBytes < 2 {
		frameBytes = 2
	}
	return &ReaderSource{r: r, sampleRate: sampleRate, frameBytes: frameBytes, pace: pace}
}

// OpenWAV opens a 16-bit mono WAV file as a source.
func OpenWAV(path string, frame time.Duration, pace bool) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	format, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	src := NewReaderSource(f, format.SampleRate, frame, pace)
	src.closer = f
	return src, nil
}

// SampleRate returns the PCM sample rate.
func (s *ReaderSource) SampleRate() int {
	return s.sampleRate
}

// Acquire returns a stream over the remaining audio.
func (s *ReaderSource) Acquire(ctx context.Context) (FrameStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.exhausted && len(s.pending) == 0) {
		return nil, ErrSourceClosed
	}
	if s.r == nil {
		return nil, ErrDeviceUnavailable
	}
	return &readerStream{src: s}, nil
}

// Close releases the underlying reader. Idempotent.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type readerStream struct {
	src    *ReaderSource
	closed atomic.Bool
}

func (rs *readerStream) Next(ctx context.Context) ([]byte, error) {
	if rs.closed.Load() {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := rs.src
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if len(s.pending) > 0 {
		// Replayed audio already arrived, so it is not paced again.
		pcm := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		return pcm, nil
	}
	buf := make([]byte, s.frameBytes)
	n, err := io.ReadFull(s.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		s.exhausted = true
	}
	s.mu.Unlock()

	// Drop a trailing odd byte.
	n -= n % 2
	if n == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return nil, err
	}

	if s.pace {
		t := time.NewTimer(pcmDuration(n, s.sampleRate))
		select {
		case <-ctx.Done():
			t.Stop()
			s.unread(buf[:n])
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return buf[:n], nil
}

// Unread puts pcm back at the front of the source.
func (rs *readerStream) Unread(pcm []byte) {
	rs.src.unread(pcm)
}

func (s *ReaderSource) unread(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([][]byte{pcm}, s.pending...)
}

func (rs *readerStream) Close() error {
	rs.closed.Store(true)
	return nil
}
