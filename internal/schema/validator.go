// Package schema validates payloads at the service boundary. JSON request
// bodies are checked against JSON Schemas; uploaded audio and outgoing
// events are checked as Go values.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"voice-order-service/internal/models"
	"voice-order-service/internal/service/stt"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid payload")

const (
	DefaultMaxAudioBytes    = 1024 * 1024
	DefaultMaxTranscriptLen = 2000
	maxLocations            = 20
	maxNameLen              = 200
	maxSetupStep            = 5
)

// FieldError names one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects the field errors of one payload.
type ValidationError struct {
	Fields []FieldError
	cause  error
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match ErrInvalid and, for audio, stt.ErrInvalidAudio.
func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrInvalid, e.cause}
	}
	return []error{ErrInvalid}
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// TurnRequest is a typed turn for a simulated call. Its body is checked
// with ValidateJSON(DocTurn, ...).
type TurnRequest struct {
	Transcript string `json:"transcript"`
}

// Validator checks payloads against size and shape limits.
type Validator struct {
	maxAudioBytes int64
	documents     map[Document]*gojsonschema.Schema
}

// New creates a validator. Non-positive limits take the defaults.
func New(maxAudioBytes int64, maxTranscriptLen int) *Validator {
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxAudioBytes
	}
	if maxTranscriptLen <= 0 {
		maxTranscriptLen = DefaultMaxTranscriptLen
	}
	return &Validator{
		maxAudioBytes: maxAudioBytes,
		documents:     compileDocuments(maxTranscriptLen),
	}
}

// MaxAudioBytes is the largest accepted upload.
func (v *Validator) MaxAudioBytes() int64 { return v.maxAudioBytes }

// Validate checks a decoded payload. Unknown payload types are rejected.
func (v *Validator) Validate(payload any) error {
	switch p := payload.(type) {
	case stt.Audio:
		return v.validateAudio(p)
	case models.TurnCompleted:
		return validateTurnEvent(p)
	case models.OrderCreated:
		return validateOrderEvent(p)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalid, payload)
	}
}

func (v *Validator) validateAudio(a stt.Audio) error {
	verr := &ValidationError{cause: stt.ErrInvalidAudio}
	switch a.Format {
	case stt.FormatWAV, stt.FormatWebM, stt.FormatOgg:
	case stt.FormatPCM16:
		if a.SampleRate <= 0 {
			verr.add("sampleRate", "required for raw pcm16")
		}
	case "":
		verr.add("format", "unrecognized audio type")
	default:
		verr.add("format", "unsupported format %q", a.Format)
	}
	switch {
	case len(a.Data) == 0:
		verr.add("audio", "empty")
	case int64(len(a.Data)) > v.maxAudioBytes:
		verr.add("audio", "exceeds %d bytes", v.maxAudioBytes)
	}
	return verr.orNil()
}

func validateTurnEvent(e models.TurnCompleted) error {
	verr := &ValidationError{}
	if e.SessionID == "" {
		verr.add("sessionId", "required")
	}
	if e.Intent == "" {
		verr.add("intent", "required")
	}
	return verr.orNil()
}

func validateOrderEvent(e models.OrderCreated) error {
	verr := &ValidationError{}
	if e.OrderID == "" {
		verr.add("orderId", "required")
	}
	if e.RestaurantID == "" {
		verr.add("restaurantId", "required")
	}
	if len(e.Items) == 0 {
		verr.add("items", "at least one item required")
	}
	if e.Total < 0 {
		verr.add("total", "must not be negative")
	}
	return verr.orNil()
}
