// Command simcall runs a simulated phone call against a local menu: audio is
// read from a WAV file, replies are printed to the terminal and the order is
// kept in memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"voice-order-service/internal/app"
	"voice-order-service/internal/config"
	"voice-order-service/internal/events"
	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/service/capture"
	"voice-order-service/internal/service/dialogue"
	"voice-order-service/internal/service/intent"
	"voice-order-service/internal/service/order"
	"voice-order-service/internal/service/stt"
	"voice-order-service/internal/service/stt/mock"
	"voice-order-service/internal/store/memory"
)

type lines []string

func (l *lines) String() string     { return strings.Join(*l, "|") }
func (l *lines) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	_ = godotenv.Load()

	audioFile := flag.String("audio", "", "Path to a 16-bit mono WAV file with the caller's speech")
	menuFile := flag.String("menu", "testdata/menu.yaml", "Path to the menu YAML")
	name := flag.String("restaurant", "Demo Pizzeria", "Restaurant name used in the greeting")
	language := flag.String("language", "en-US", "BCP-47 language tag")
	pace := flag.Bool("pace", true, "Release audio in real time")
	wpm := flag.Int("wpm", 0, "Hold each reply for its spoken duration at this rate, 0 to disable")
	var say lines
	flag.Var(&say, "say", "Scripted caller utterance for the mock transcriber (repeatable)")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  "console",
		Service: "simcall",
	})

	if *audioFile == "" {
		log.Fatal().Msg("-audio is required")
	}

	f, err := os.Open(*menuFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open menu")
	}
	menu, err := models.LoadMenuYAML(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid menu")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var transcriber stt.Transcriber
	if len(say) > 0 {
		transcriber = mock.FromTexts(say...)
	} else {
		t, closeSTT, err := app.NewTranscriber(ctx, cfg.STT)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create transcriber")
		}
		if closeSTT != nil {
			defer closeSTT()
		}
		transcriber = t
	}

	replier, err := app.NewReplier(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM replier")
	}

	src, err := capture.OpenWAV(*audioFile, cfg.Capture.FrameDuration, *pace)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio")
	}
	defer src.Close()

	orders := memory.New()
	publisher := events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicTurns:  cfg.Kafka.TopicTurns,
		TopicOrders: cfg.Kafka.TopicOrders,
		Principal:   cfg.Kafka.Principal,
	})
	defer publisher.Close()

	engine := dialogue.NewEngine(dialogue.Config{
		MaxConsecutiveFailures: cfg.Dialogue.MaxConsecutiveFailures,
		TurnTimeout:            cfg.Dialogue.TurnTimeout,
		HistorySize:            cfg.Dialogue.HistorySize,
	}, dialogue.Deps{
		Capturer: capture.New(capture.Config{
			SpeechThreshold:  cfg.Capture.SpeechThreshold,
			SilenceThreshold: cfg.Capture.SilenceThreshold,
			Smoothing:        cfg.Capture.Smoothing,
			SilenceHold:      cfg.Capture.SilenceHold,
			MaxDuration:      cfg.Capture.MaxDuration,
			MaxAudioBytes:    cfg.Capture.MaxAudioBytes,
		}),
		Transcriber: stt.Instrument(transcriber),
		Resolver:    intent.NewResolver(replier, cfg.LLM.Timeout),
		Finalizer:   order.NewFinalizer(orders, publisher),
		Speaker:     dialogue.NewConsoleSpeaker(os.Stdout, *wpm),
		Publisher:   publisher,
	})

	sess := engine.NewSession(dialogue.SessionParams{
		RestaurantID:   "local",
		RestaurantName: *name,
		CustomerID:     "simcall",
		Language:       *language,
		Channel:        dialogue.ChannelLocal,
		Menu:           menu,
	})

	start := time.Now()
	runErr := engine.Run(ctx, sess, src)
	engine.Wait()

	fmt.Println()
	fmt.Printf("Call ended after %s: %s (%s)\n", time.Since(start).Round(time.Millisecond), sess.State(), sess.TerminationReason())
	for _, t := range sess.History() {
		fmt.Printf("  caller: %s\n  assistant: %s\n", t.Transcript, t.Reply)
	}
	if receipt := sess.Receipt(); receipt != nil {
		fmt.Printf("Order %s: %d x %s, total %s\n", receipt.OrderID, receipt.Quantity, receipt.Item, receipt.Total)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("Call failed")
		os.Exit(1)
	}
}
