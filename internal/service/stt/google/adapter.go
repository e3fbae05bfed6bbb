// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-order-service/internal/service/stt"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
}

// DefaultConfig returns default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// recognizer is the subset of the speech client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type clientRecognizer struct {
	c *speech.Client
}

func (r clientRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return r.c.Recognize(ctx, req)
}

func (r clientRecognizer) Close() error { return r.c.Close() }

// Transcriber implements stt.Transcriber with synchronous recognition.
type Transcriber struct {
	client recognizer
	cfg    Config
}

// New creates a Google transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Transcriber{client: clientRecognizer{c: c}, cfg: cfg}, nil
}

// Name returns the provider label.
func (t *Transcriber) Name() string { return "google" }

// Close releases the gRPC connection.
func (t *Transcriber) Close() error {
	return t.client.Close()
}

// Transcribe sends one utterance and joins the best alternatives.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, languageHint string) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: empty audio", stt.ErrInvalidAudio)
	}

	resp, err := t.client.Recognize(ctx, t.request(audio, languageHint))
	if err != nil {
		return "", classify(err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.Join(parts, " "), nil
}

func (t *Transcriber) request(audio stt.Audio, languageHint string) *speechpb.RecognizeRequest {
	lang := t.cfg.LanguageCode
	if languageHint != "" {
		lang = languageHint
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:     parseAudioEncoding(t.cfg.AudioEncoding),
		LanguageCode: lang,
	}
	switch audio.Format {
	case stt.FormatWAV:
		// The header carries the rate.
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
	case stt.FormatWebM:
		cfg.Encoding = speechpb.RecognitionConfig_WEBM_OPUS
	case stt.FormatOgg:
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
	default:
		rate := audio.SampleRate
		if rate == 0 {
			rate = t.cfg.SampleRateHz
		}
		cfg.SampleRateHertz = int32(rate)
	}

	return &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	}
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.OutOfRange:
		return fmt.Errorf("%w: %v", stt.ErrInvalidAudio, err)
	}
	return fmt.Errorf("%w: %v", stt.ErrServiceUnavailable, err)
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
