package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/observability/metrics"
	"voice-order-service/internal/service/capture"
	"voice-order-service/internal/service/intent"
	"voice-order-service/internal/service/order"
	"voice-order-service/internal/service/stt"
)

// Capturer records one utterance from a live source.
type Capturer interface {
	Capture(ctx context.Context, src capture.Source) (capture.Utterance, error)
}

// Resolver decides a turn's intent and reply.
type Resolver interface {
	Resolve(ctx context.Context, in intent.Input) intent.Resolution
}

// Finalizer persists a confirmed order.
type Finalizer interface {
	Finalize(ctx context.Context, in order.FinalizeInput) (order.Receipt, models.OrderRecord, error)
}

// TurnPublisher receives a turn event after every processed turn.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event models.TurnCompleted) error
}

// Archive stores utterance audio.
type Archive interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Config holds per-session limits.
type Config struct {
	MaxConsecutiveFailures int
	// TurnTimeout bounds transcription of one utterance.
	TurnTimeout time.Duration
	HistorySize int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 3,
		TurnTimeout:            30 * time.Second,
		HistorySize:            20,
	}
}

// Deps are the engine's collaborators. Capturer, Publisher and Archive
// may be nil.
type Deps struct {
	Capturer    Capturer
	Transcriber stt.Transcriber
	Resolver    Resolver
	Finalizer   Finalizer
	Speaker     Speaker
	Publisher   TurnPublisher
	Archive     Archive
}

// TurnResult describes one completed turn.
type TurnResult struct {
	TurnID      string         `json:"turnId"`
	Transcript  string         `json:"transcript"`
	Reply       string         `json:"reply"`
	Intent      string         `json:"intent"`
	Item        string         `json:"item,omitempty"`
	Quantity    int            `json:"quantity,omitempty"`
	State       string         `json:"state"`
	OrderPlaced bool           `json:"orderPlaced"`
	Receipt     *order.Receipt `json:"receipt,omitempty"`
	Degraded    bool           `json:"degraded,omitempty"`
	// Err is a failure the turn recovered from (or the one that ended it).
	Err error `json:"-"`
}

// Engine drives sessions. One engine serves all sessions concurrently;
// turns within a session are strictly sequential.
type Engine struct {
	cfg     Config
	deps    Deps
	metrics *metrics.Metrics
	uploads sync.WaitGroup
}

// NewEngine creates an engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = def.TurnTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if deps.Speaker == nil {
		deps.Speaker = NewReplyCollector()
	}
	return &Engine{cfg: cfg, deps: deps, metrics: metrics.DefaultMetrics}
}

// NewSession creates a session with the engine's history limit.
func (e *Engine) NewSession(p SessionParams) *Session {
	if p.HistorySize <= 0 {
		p.HistorySize = e.cfg.HistorySize
	}
	return NewSession(p)
}

// Start speaks the greeting and moves the session to LISTENING. A session
// with an empty menu is terminated immediately.
func (e *Engine) Start(ctx context.Context, sess *Session) (string, error) {
	if !sess.turnMu.TryLock() {
		return "", ErrTurnInProgress
	}
	defer sess.turnMu.Unlock()

	switch st := sess.State(); {
	case st.IsTerminal():
		return "", ErrSessionTerminated
	case st != StateGreeting:
		return "", ErrAlreadyStarted
	}

	logger := logging.WithSession(sess.ID, sess.RestaurantID, sess.CustomerID)

	if sess.Menu.Empty() {
		sess.terminate(ReasonConfiguration, ErrEmptyMenu)
		logger.Warn().Msg("Session rejected, restaurant has no menu")
		return "", ErrEmptyMenu
	}

	ctx, cancel := sess.bind(ctx)
	defer cancel()

	greeting := Greeting(sess.RestaurantName, sess.Menu)
	if err := e.speak(ctx, sess, greeting); err != nil {
		return "", err
	}
	sess.appendTurn(Turn{ID: sess.turnIDs.Next(sess.ID), Reply: greeting, Intent: "greeting", At: time.Now()})
	sess.setState(StateListening)

	logger.Info().
		Str("channel", sess.Channel).
		Int("menuItems", len(sess.Menu.Vocabulary())).
		Msg("Session started")
	return greeting, nil
}

// Run drives a live session from src until it terminates: capture,
// transcribe, resolve, speak. It returns the session's terminal error,
// or nil when the call ended normally.
func (e *Engine) Run(ctx context.Context, sess *Session, src capture.Source) error {
	if e.deps.Capturer == nil {
		return errors.New("dialogue: no capturer configured")
	}
	if sess.State() == StateGreeting {
		if _, err := e.Start(ctx, sess); err != nil {
			return err
		}
	}

	for !sess.State().IsTerminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.liveTurn(ctx, sess, src); err != nil {
			if errors.Is(err, ErrSessionTerminated) {
				break
			}
			return err
		}
	}
	return sess.Err()
}

func (e *Engine) liveTurn(ctx context.Context, sess *Session, src capture.Source) (TurnResult, error) {
	release, err := e.beginTurn(sess)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	ctx, cancel := sess.bind(ctx)
	defer cancel()

	turnID := sess.turnIDs.Next(sess.ID)
	start := time.Now()

	utt, err := e.deps.Capturer.Capture(ctx, src)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return TurnResult{}, e.interrupted(ctx)
	case errors.Is(err, capture.ErrSourceClosed):
		sess.terminate(ReasonHangup, nil)
		logger := logging.WithSession(sess.ID, sess.RestaurantID, sess.CustomerID)
		logger.Info().Msg("Caller hung up")
		return TurnResult{TurnID: turnID, State: StateTerminated.String()}, ErrSessionTerminated
	case errors.Is(err, capture.ErrPermissionDenied):
		sess.terminate(ReasonPermissionDenied, err)
		return TurnResult{TurnID: turnID, State: StateTerminated.String(), Err: err}, err
	default:
		return e.fail(ctx, sess, turnID, apologyReply, err), nil
	}

	if !utt.HeardSpeech {
		return e.fail(ctx, sess, turnID, silenceReply, errNoSpeech), nil
	}

	audio := stt.Audio{Data: utt.WAV(), Format: stt.FormatWAV, SampleRate: utt.SampleRate}
	e.archive(ctx, sess, turnID, audio)

	transcript, err := e.transcribe(ctx, sess, audio)
	if err != nil {
		if ctx.Err() != nil {
			return TurnResult{}, e.interrupted(ctx)
		}
		return e.fail(ctx, sess, turnID, apologyReply, err), nil
	}
	return e.process(ctx, sess, turnID, transcript, start)
}

// HandleAudio runs one turn from already-captured audio.
func (e *Engine) HandleAudio(ctx context.Context, sess *Session, audio stt.Audio) (TurnResult, error) {
	release, err := e.beginTurn(sess)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	ctx, cancel := sess.bind(ctx)
	defer cancel()

	turnID := sess.turnIDs.Next(sess.ID)
	start := time.Now()

	e.archive(ctx, sess, turnID, audio)

	transcript, err := e.transcribe(ctx, sess, audio)
	if err != nil {
		if ctx.Err() != nil {
			return TurnResult{}, e.interrupted(ctx)
		}
		return e.fail(ctx, sess, turnID, apologyReply, err), nil
	}
	return e.process(ctx, sess, turnID, transcript, start)
}

// HandleTranscript runs one turn from text transcribed upstream.
func (e *Engine) HandleTranscript(ctx context.Context, sess *Session, transcript string) (TurnResult, error) {
	release, err := e.beginTurn(sess)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	ctx, cancel := sess.bind(ctx)
	defer cancel()

	return e.process(ctx, sess, sess.turnIDs.Next(sess.ID), transcript, time.Now())
}

// HandleSilence runs a turn in which the caller said nothing. It counts
// toward the consecutive failure limit.
func (e *Engine) HandleSilence(ctx context.Context, sess *Session) (TurnResult, error) {
	release, err := e.beginTurn(sess)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	ctx, cancel := sess.bind(ctx)
	defer cancel()

	return e.fail(ctx, sess, sess.turnIDs.Next(sess.ID), silenceReply, errNoSpeech), nil
}

// Cancel terminates the session immediately, stopping any in-flight
// capture, transcription or speech. It is idempotent.
func (e *Engine) Cancel(sess *Session) {
	if sess.terminate(ReasonCancelled, nil) {
		logger := logging.WithSession(sess.ID, sess.RestaurantID, sess.CustomerID)
		logger.Info().Msg("Session cancelled")
	}
}

// Wait blocks until background recording uploads finish.
func (e *Engine) Wait() {
	e.uploads.Wait()
}

func (e *Engine) beginTurn(sess *Session) (func(), error) {
	if sess.State().IsTerminal() {
		return nil, ErrSessionTerminated
	}
	if !sess.turnMu.TryLock() {
		e.metrics.RecordTurnRejected("in_progress")
		return nil, ErrTurnInProgress
	}
	switch st := sess.State(); {
	case st.IsTerminal():
		sess.turnMu.Unlock()
		return nil, ErrSessionTerminated
	case st == StateGreeting:
		sess.turnMu.Unlock()
		return nil, ErrNotStarted
	}
	sess.setState(StateProcessing)
	return func() {
		// An interrupted turn must not leave the session PROCESSING.
		if sess.State() == StateProcessing {
			sess.setState(sess.resting())
		}
		sess.turnMu.Unlock()
	}, nil
}

func (e *Engine) transcribe(ctx context.Context, sess *Session, audio stt.Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()
	return e.deps.Transcriber.Transcribe(ctx, audio, sess.Language)
}

// process applies one transcript to the session. An empty transcript is
// a failed turn.
func (e *Engine) process(ctx context.Context, sess *Session, turnID, transcript string, start time.Time) (TurnResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return e.fail(ctx, sess, turnID, silenceReply, errNoSpeech), nil
	}
	logger := logging.WithTurn(sess.ID, sess.RestaurantID, turnID)
	pending := sess.Pending()

	res := e.deps.Resolver.Resolve(ctx, intent.Input{
		Transcript:     transcript,
		Menu:           sess.Menu,
		Pending:        pending,
		RestaurantName: sess.RestaurantName,
	})
	if ctx.Err() != nil {
		return TurnResult{}, e.interrupted(ctx)
	}
	if res.Degraded {
		logger.Warn().Err(res.Err).Msg("Reply service unavailable, using fallback reply")
	}

	result := TurnResult{
		TurnID:     turnID,
		Transcript: transcript,
		Intent:     res.Intent.String(),
		Item:       res.Item,
		Quantity:   res.Quantity,
		Degraded:   res.Degraded,
		Err:        res.Err,
	}
	reply := res.Reply
	placed := false

	switch res.Intent {
	case intent.Confirmed:
		receipt, _, err := e.deps.Finalizer.Finalize(ctx, order.FinalizeInput{
			SessionID:      sess.ID,
			RestaurantID:   sess.RestaurantID,
			RestaurantName: sess.RestaurantName,
			CustomerID:     sess.CustomerID,
			Menu:           sess.Menu,
			Item:           res.Item,
			Quantity:       res.Quantity,
			Transcript:     conversationWith(sess, transcript),
			AIResponse:     sess.LastReply(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return TurnResult{}, e.interrupted(ctx)
			}
			logger.Error().Err(err).Str("item", res.Item).Msg("Order could not be saved")
			result.Intent = intentConfirmFailed
			result.Err = err
			failures := sess.recordFailure()
			if failures >= e.cfg.MaxConsecutiveFailures {
				return e.giveUp(ctx, sess, result, transcript, err), nil
			}
			reply = persistenceFailureReply
			sess.setState(StateAwaitingConfirmation)
			break
		}
		sess.setReceipt(receipt)
		result.Receipt = &receipt
		result.OrderPlaced = true
		reply = receipt.Summary()
		placed = true
	default:
		sess.setPending(res.Next(pending))
		sess.resetFailures()
		sess.setState(sess.resting())
	}

	if err := e.speak(ctx, sess, reply); err != nil && ctx.Err() != nil {
		if !placed {
			return TurnResult{}, e.interrupted(ctx)
		}
		// The order is stored, so the turn still reports its receipt.
		logger.Warn().
			Str("orderId", result.Receipt.OrderID).
			Str("reason", sess.TerminationReason()).
			Msg("Session ended while confirming a saved order")
	}
	if placed {
		sess.terminate(ReasonOrderPlaced, nil)
	}

	result.Reply = reply
	result.State = sess.State().String()
	e.finishTurn(ctx, sess, result, logger, start)
	return result, nil
}

// intentConfirmFailed labels a confirmation whose order could not be saved.
const intentConfirmFailed = "confirm_failed"

// fail handles a capture or transcription failure.
func (e *Engine) fail(ctx context.Context, sess *Session, turnID, reply string, cause error) TurnResult {
	logger := logging.WithTurn(sess.ID, sess.RestaurantID, turnID)
	result := TurnResult{TurnID: turnID, Intent: "failure", Err: cause}
	start := time.Now()

	failures := sess.recordFailure()
	logger.Warn().Err(cause).Int("failures", failures).Msg("Turn failed")
	if failures >= e.cfg.MaxConsecutiveFailures {
		return e.giveUp(ctx, sess, result, "", cause)
	}

	sess.setState(sess.resting())
	_ = e.speak(ctx, sess, reply)
	result.Reply = reply
	result.State = sess.State().String()
	e.finishTurn(ctx, sess, result, logger, start)
	return result
}

func (e *Engine) giveUp(ctx context.Context, sess *Session, result TurnResult, transcript string, cause error) TurnResult {
	logger := logging.WithTurn(sess.ID, sess.RestaurantID, result.TurnID)
	err := fmt.Errorf("%w: %w", ErrTooManyFailures, cause)

	_ = e.speak(ctx, sess, tooManyFailuresReply)
	sess.terminate(ReasonTooManyFailures, err)

	result.Transcript = transcript
	result.Reply = tooManyFailuresReply
	result.State = StateTerminated.String()
	result.Err = err
	e.finishTurn(ctx, sess, result, logger, time.Now())
	logger.Warn().Err(cause).Msg("Session terminated after repeated failures")
	return result
}

func (e *Engine) finishTurn(ctx context.Context, sess *Session, result TurnResult, logger zerolog.Logger, start time.Time) {
	sess.appendTurn(Turn{
		ID:         result.TurnID,
		Transcript: result.Transcript,
		Reply:      result.Reply,
		Intent:     result.Intent,
		Item:       result.Item,
		Degraded:   result.Degraded,
		At:         time.Now(),
	})
	e.metrics.RecordTurn(result.Intent, time.Since(start).Seconds())

	logger.Info().
		Str("transcript", result.Transcript).
		Str("intent", result.Intent).
		Str("item", result.Item).
		Str("state", result.State).
		Bool("orderPlaced", result.OrderPlaced).
		Msg("Turn completed")

	if e.deps.Publisher == nil {
		return
	}
	event := models.TurnCompleted{
		EventType:     "dialogue.turn.completed",
		SessionID:     sess.ID,
		RestaurantID:  sess.RestaurantID,
		TurnID:        result.TurnID,
		Timestamp:     time.Now().UnixMilli(),
		Transcript:    result.Transcript,
		Intent:        result.Intent,
		Item:          result.Item,
		Reply:         result.Reply,
		State:         result.State,
		Degraded:      result.Degraded,
		AudioOffsetMs: time.Since(sess.CreatedAt).Milliseconds(),
	}
	// Publish even when the turn ended the session.
	if err := e.deps.Publisher.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish turn event")
	}
}

func (e *Engine) speak(ctx context.Context, sess *Session, text string) error {
	sp := sess.speaker
	if sp == nil {
		sp = e.deps.Speaker
	}
	if err := sp.Speak(ctx, text, sess.Language); err != nil {
		if ctx.Err() == nil {
			logger := logging.WithSession(sess.ID, sess.RestaurantID, sess.CustomerID)
			logger.Warn().Err(err).Msg("Speech output failed")
		}
		return err
	}
	return nil
}

// archive uploads the turn audio in the background. Failures are logged.
func (e *Engine) archive(ctx context.Context, sess *Session, turnID string, audio stt.Audio) {
	if e.deps.Archive == nil || len(audio.Data) == 0 {
		return
	}
	key := RecordingKey(sess.RestaurantID, sess.ID, turnID, audio.Format)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TurnTimeout)

	e.uploads.Add(1)
	go func() {
		defer e.uploads.Done()
		defer cancel()
		err := e.deps.Archive.Upload(ctx, key, audio.Data, contentType(audio.Format))
		e.metrics.RecordRecording(err)
		if err != nil {
			logger := logging.WithTurn(sess.ID, sess.RestaurantID, turnID)
			logger.Warn().Err(err).Str("key", key).Msg("Failed to archive recording")
		}
	}()
}

// interrupted reports why a turn stopped early.
func (e *Engine) interrupted(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrSessionTerminated) {
		return ErrSessionTerminated
	}
	return ctx.Err()
}

// RecordingKey is the archive object key for a turn's audio.
func RecordingKey(restaurantID, sessionID, turnID, format string) string {
	ext := format
	if ext == "" || ext == stt.FormatPCM16 {
		ext = "raw"
	}
	return fmt.Sprintf("recordings/%s/%s/%s.%s", restaurantID, sessionID, turnID, ext)
}

func contentType(format string) string {
	switch format {
	case stt.FormatWAV:
		return "audio/wav"
	case stt.FormatWebM:
		return "audio/webm"
	case stt.FormatOgg:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func conversationWith(sess *Session, transcript string) string {
	conv := sess.Conversation()
	if conv != "" {
		conv += "\n"
	}
	return conv + "Caller: " + transcript
}
