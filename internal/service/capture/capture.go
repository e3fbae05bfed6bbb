// Package capture turns a live audio source into bounded utterances using
// energy-based end-of-speech detection and a hard ceiling.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"voice-order-service/internal/observability/metrics"
)

// StopReason explains why a capture ended.
type StopReason string

const (
	StopSilence     StopReason = "silence"
	StopCeiling     StopReason = "ceiling"
	StopMaxBytes    StopReason = "max_bytes"
	StopEndOfStream StopReason = "end_of_stream"
)

// Config bounds a single utterance.
type Config struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	Smoothing        float64
	SilenceHold      time.Duration
	MaxDuration      time.Duration
	MaxAudioBytes    int64
	// CloseGrace bounds how long Capture waits for a stuck reader on exit.
	CloseGrace time.Duration
}

// DefaultConfig returns the default capture limits.
func DefaultConfig() Config {
	vad := DefaultVADConfig()
	return Config{
		SpeechThreshold:  vad.SpeechThreshold,
		SilenceThreshold: vad.SilenceThreshold,
		Smoothing:        vad.Smoothing,
		SilenceHold:      vad.SilenceHold,
		MaxDuration:      10 * time.Second,
		MaxAudioBytes:    1024 * 1024,
		CloseGrace:       250 * time.Millisecond,
	}
}

// Utterance is one captured user turn.
type Utterance struct {
	PCM         []byte
	SampleRate  int
	Duration    time.Duration
	StopReason  StopReason
	HeardSpeech bool
}

// WAV wraps the PCM for services that need a file format.
func (u Utterance) WAV() []byte {
	return EncodeWAV(u.PCM, u.SampleRate)
}

// Capturer records utterances.
type Capturer struct {
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a capturer.
func New(cfg Config) *Capturer {
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 250 * time.Millisecond
	}
	return &Capturer{cfg: cfg, metrics: metrics.DefaultMetrics}
}

type frameResult struct {
	pcm []byte
	err error
}

// Capture acquires the source and buffers frames until the caller stops
// talking, the ceiling elapses (by wall clock or by audio time), the byte
// limit is hit, or the stream ends. It returns ctx.Err() if the parent
// context is cancelled, and never blocks past the ceiling.
func (c *Capturer) Capture(ctx context.Context, src Source) (Utterance, error) {
	stream, err := src.Acquire(ctx)
	if err != nil {
		c.metrics.RecordCaptureError(captureErrorType(err))
		return Utterance{}, err
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	ceiling := time.NewTimer(c.cfg.MaxDuration)
	// Unbuffered: the reader holds at most one frame the loop has not taken,
	// and hands it back to the stream when the capture ends.
	frames := make(chan frameResult)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			pcm, err := stream.Next(readCtx)
			select {
			case frames <- frameResult{pcm: pcm, err: err}:
			case <-readCtx.Done():
				if err == nil {
					unread(stream, pcm)
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	defer func() {
		ceiling.Stop()
		cancelRead()
		select {
		case <-done:
		case <-time.After(c.cfg.CloseGrace):
		}
		stream.Close()
	}()

	sampleRate := src.SampleRate()
	vad := NewVAD(VADConfig{
		SpeechThreshold:  c.cfg.SpeechThreshold,
		SilenceThreshold: c.cfg.SilenceThreshold,
		Smoothing:        c.cfg.Smoothing,
		SilenceHold:      c.cfg.SilenceHold,
		SampleRateHz:     sampleRate,
	})

	var buf []byte
	finish := func(reason StopReason) (Utterance, error) {
		utt := Utterance{
			PCM:         buf,
			SampleRate:  sampleRate,
			Duration:    pcmDuration(len(buf), sampleRate),
			StopReason:  reason,
			HeardSpeech: vad.HeardSpeech(),
		}
		c.metrics.RecordCapture(string(reason), utt.Duration.Seconds())
		return utt, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()

		case <-ceiling.C:
			return finish(StopCeiling)

		case fr := <-frames:
			if fr.err != nil {
				if errors.Is(fr.err, io.EOF) {
					if len(buf) == 0 {
						return Utterance{}, ErrSourceClosed
					}
					return finish(StopEndOfStream)
				}
				if ctx.Err() != nil {
					return Utterance{}, ctx.Err()
				}
				c.metrics.RecordCaptureError(captureErrorType(fr.err))
				if len(buf) == 0 {
					return Utterance{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, fr.err)
				}
				return finish(StopEndOfStream)
			}

			if c.cfg.MaxAudioBytes > 0 && int64(len(buf)+len(fr.pcm)) > c.cfg.MaxAudioBytes {
				unread(stream, fr.pcm)
				return finish(StopMaxBytes)
			}
			buf = append(buf, fr.pcm...)

			if vad.ProcessFrame(fr.pcm) == VADSpeechEnd {
				return finish(StopSilence)
			}
			if pcmDuration(len(buf), sampleRate) >= c.cfg.MaxDuration {
				return finish(StopCeiling)
			}
		}
	}
}

// Unreader is implemented by streams that can take back a frame that was
// read but not used, so the next capture starts with it.
type Unreader interface {
	Unread(pcm []byte)
}

func unread(stream FrameStream, pcm []byte) {
	if u, ok := stream.(Unreader); ok && len(pcm) > 0 {
		u.Unread(pcm)
	}
}

func captureErrorType(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrSourceClosed):
		return "source_closed"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	}
	return metrics.ErrorType(err)
}
