// Package stt defines the transcription gateway used by dialogue turns.
package stt

import (
	"context"
	"strings"
	"time"

	"voice-order-service/internal/observability/metrics"
)

// Error is a transcription failure that callers can match with errors.Is.
type Error struct {
	kind string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind is the metrics label for the failure.
func (e *Error) Kind() string { return e.kind }

var (
	// ErrServiceUnavailable covers network errors, timeouts and 5xx responses.
	ErrServiceUnavailable = &Error{kind: "unavailable", msg: "transcription service unavailable"}
	// ErrInvalidAudio is returned when the provider rejects the audio.
	ErrInvalidAudio = &Error{kind: "invalid_audio", msg: "invalid audio"}
)

// Audio formats accepted by the gateway.
const (
	FormatWAV   = "wav"
	FormatPCM16 = "pcm16"
	FormatWebM  = "webm"
	FormatOgg   = "ogg"
)

// Audio is one utterance to transcribe.
type Audio struct {
	Data       []byte
	Format     string
	SampleRate int
}

// Transcriber converts audio to text. An empty transcript is a valid result.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio, languageHint string) (string, error)
	Name() string
}

// FormatFromContentType maps an upload's content type or file name to a format.
func FormatFromContentType(contentType, filename string) string {
	ct := strings.ToLower(contentType)
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(ct, "wav") || strings.HasSuffix(name, ".wav"):
		return FormatWAV
	case strings.Contains(ct, "webm") || strings.HasSuffix(name, ".webm"):
		return FormatWebM
	case strings.Contains(ct, "ogg") || strings.HasSuffix(name, ".ogg"):
		return FormatOgg
	case strings.Contains(ct, "l16") || strings.HasSuffix(name, ".pcm") || strings.HasSuffix(name, ".raw"):
		return FormatPCM16
	}
	return ""
}

// BaseLanguage reduces a BCP-47 tag like "en-US" to "en".
func BaseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

type instrumented struct {
	next    Transcriber
	metrics *metrics.Metrics
}

// Instrument wraps a transcriber with latency and error metrics.
func Instrument(t Transcriber) Transcriber {
	return &instrumented{next: t, metrics: metrics.DefaultMetrics}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Transcribe(ctx context.Context, audio Audio, languageHint string) (string, error) {
	start := time.Now()
	text, err := i.next.Transcribe(ctx, audio, languageHint)
	i.metrics.RecordSTT(i.next.Name(), err, time.Since(start).Seconds())
	return text, err
}
