// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	Service    string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Service:    "voice-order-service",
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	log.Logger = ctx.Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRestaurant returns a logger with restaurant context.
func WithRestaurant(restaurantId string) zerolog.Logger {
	return log.With().
		Str("restaurantId", restaurantId).
		Logger()
}

// WithSession returns a logger with dialogue session context.
func WithSession(sessionId, restaurantId, customerId string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("restaurantId", restaurantId).
		Str("customerId", customerId).
		Logger()
}

// WithTurn returns a logger with turn context.
func WithTurn(sessionId, restaurantId, turnId string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("restaurantId", restaurantId).
		Str("turnId", turnId).
		Logger()
}

// WithProvider returns a logger tagged with an external provider.
func WithProvider(component, provider string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("provider", provider).
		Logger()
}
