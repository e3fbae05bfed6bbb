package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-order-service/internal/auth"
	"voice-order-service/internal/config"
	"voice-order-service/internal/events"
	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/restutil"
	"voice-order-service/internal/schema"
	"voice-order-service/internal/service/capture"
	"voice-order-service/internal/service/dialogue"
	"voice-order-service/internal/service/intent"
	"voice-order-service/internal/service/llm"
	"voice-order-service/internal/service/order"
	"voice-order-service/internal/service/restaurant"
	"voice-order-service/internal/service/stt"
	"voice-order-service/internal/service/stt/google"
	"voice-order-service/internal/service/stt/mock"
	"voice-order-service/internal/service/stt/openai"
	"voice-order-service/internal/storage"
	"voice-order-service/internal/store"
	"voice-order-service/internal/store/memory"
	"voice-order-service/internal/store/postgres"
	"voice-order-service/internal/telephony"
)

const sweepInterval = 30 * time.Second

// NumberLister lists the phone numbers available as AI numbers.
type NumberLister interface {
	ListNumbers(limit int) ([]telephony.PhoneNumber, error)
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Store       store.Store
	Publisher   *events.Publisher
	Transcriber stt.Transcriber
	Replier     llm.Replier
	Restaurants *restaurant.Service
	Engine      *dialogue.Engine
	Sessions    *dialogue.Registry
	Validator   *schema.Validator
	Auth        *auth.Verifier
	Signatures  *telephony.SignatureValidator
	Numbers     NumberLister

	closers []func() error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   atomic.Bool
}

// New wires the service from configuration. The store is connected here
// and injected everywhere it is needed.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.Service.Name,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	var err error
	if a.Auth, err = auth.NewVerifier(cfg.Auth.JWTSecret); err != nil {
		return nil, err
	}
	if a.Store, err = newStore(ctx, cfg.Database); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Store.Close(); return nil })

	a.Publisher = events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicTurns:  cfg.Kafka.TopicTurns,
		TopicOrders: cfg.Kafka.TopicOrders,
		Principal:   cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	transcriber, closeSTT, err := NewTranscriber(ctx, cfg.STT)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	if closeSTT != nil {
		a.closers = append(a.closers, closeSTT)
	}
	a.Transcriber = stt.Instrument(transcriber)

	if a.Replier, err = NewReplier(cfg.LLM); err != nil {
		a.Shutdown()
		return nil, err
	}

	deps := dialogue.Deps{
		Capturer: capture.New(capture.Config{
			SpeechThreshold:  cfg.Capture.SpeechThreshold,
			SilenceThreshold: cfg.Capture.SilenceThreshold,
			Smoothing:        cfg.Capture.Smoothing,
			SilenceHold:      cfg.Capture.SilenceHold,
			MaxDuration:      cfg.Capture.MaxDuration,
			MaxAudioBytes:    cfg.Capture.MaxAudioBytes,
		}),
		Transcriber: a.Transcriber,
		Resolver:    intent.NewResolver(a.Replier, cfg.LLM.Timeout),
		Finalizer:   order.NewFinalizer(a.Store, a.Publisher),
		Speaker:     dialogue.Discard,
		Publisher:   a.Publisher,
	}
	if cfg.Recordings.Enabled {
		r2, err := storage.NewR2Client(ctx, storage.Config{
			Endpoint:  cfg.Recordings.Endpoint,
			AccessKey: cfg.Recordings.AccessKey,
			SecretKey: cfg.Recordings.SecretKey,
			Bucket:    cfg.Recordings.Bucket,
			Region:    cfg.Recordings.Region,
		})
		if err != nil {
			a.Shutdown()
			return nil, err
		}
		deps.Archive = r2
	}

	a.Engine = dialogue.NewEngine(dialogue.Config{
		MaxConsecutiveFailures: cfg.Dialogue.MaxConsecutiveFailures,
		TurnTimeout:            cfg.Dialogue.TurnTimeout,
		HistorySize:            cfg.Dialogue.HistorySize,
	}, deps)
	a.Sessions = dialogue.NewRegistry(cfg.Dialogue.SessionIdleTTL, cfg.Dialogue.SessionMaxLifetime)
	a.Restaurants = restaurant.NewService(a.Store)
	a.Validator = schema.New(cfg.Capture.MaxAudioBytes, 0)
	a.Signatures = telephony.NewSignatureValidator(cfg.Twilio.AuthToken)

	if numbers, err := telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken); err == nil {
		a.Numbers = numbers
	} else {
		a.Logger.Info().Msg("Twilio credentials not set, number listing disabled")
	}

	a.Logger.Info().
		Str("sttProvider", a.Transcriber.Name()).
		Str("llmProvider", replierName(a.Replier)).
		Str("dbDriver", cfg.Database.Driver).
		Bool("kafka", a.Publisher.Enabled()).
		Bool("recordings", deps.Archive != nil).
		Msg("Voice order service application created")
	return a, nil
}

// Start launches background work and marks the service ready.
func (a *Application) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.StartupTime = time.Now().UTC()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Sessions.Run(ctx, sweepInterval)
	}()

	a.ready.Store(true)
	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Voice order service starting")
	return nil
}

// Ready reports whether the service accepts traffic and its store answers.
func (a *Application) Ready(ctx context.Context) error {
	if !a.ready.Load() {
		return errors.New("not started")
	}
	return a.Store.Ping(ctx)
}

// Shutdown terminates live sessions, waits for background uploads and
// closes every backend. It is safe to call more than once.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.Sessions != nil {
		a.Sessions.CloseAll()
	}
	if a.Engine != nil {
		a.Engine.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
	a.Logger.Info().Msg("Voice order service shut down")
}

func newStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	case "postgres":
		return postgres.Connect(ctx, postgres.Config{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

// NewTranscriber returns the configured provider and, when it holds a
// connection, its close function.
func NewTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, func() error, error) {
	switch cfg.Provider {
	case "", "mock":
		return mock.New(), nil, nil
	case "openai":
		t, err := openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, restutil.DefaultClient)
		return t, nil, err
	case "google":
		t, err := google.New(ctx, google.Config{
			LanguageCode:  cfg.LanguageCode,
			SampleRateHz:  cfg.SampleRateHz,
			AudioEncoding: cfg.AudioEncoding,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("google speech client: %w", err)
		}
		return t, t.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.Provider)
	}
}

// NewReplier returns nil for provider "none": replies then come from
// templates only.
func NewReplier(cfg config.LLMConfig) (llm.Replier, error) {
	var (
		r   llm.Replier
		err error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		r, err = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
		}, restutil.DefaultClient)
	case "gemini":
		r, err = llm.NewGemini(llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
		}, restutil.DefaultClient)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.WithBreaker(llm.Instrument(r), llm.BreakerConfig{
		MaxConsecutiveFailures: uint32(cfg.BreakerMaxFailure),
		OpenFor:                cfg.BreakerOpenFor,
	}), nil
}

func replierName(r llm.Replier) string {
	if r == nil {
		return "none"
	}
	return r.Name()
}
