package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"voice-order-service/internal/app"
	"voice-order-service/internal/observability/metrics"
)

type handlers struct {
	app *app.Application
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application}
	testCalls := newUserLimiters(application.Cfg.RateLimit.TestCallRPS, application.Cfg.RateLimit.TestCallBurst)
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   application.Cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(application.Auth.Middleware)

			r.Get("/setup/check", h.checkSetup)
			r.Post("/setup", h.saveSetup)
			r.Get("/restaurant", h.getRestaurant)
			r.Get("/orders", h.listOrders)
			r.Get("/twilio/numbers", h.listNumbers)

			r.Route("/test-calls", func(r chi.Router) {
				r.Use(testCalls.limit)
				r.Post("/", h.startTestCall)
				r.Get("/{sessionID}", h.getTestCall)
				r.Post("/{sessionID}/turns", h.testCallTurn)
				r.Delete("/{sessionID}", h.endTestCall)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.verifyTwilio)

			r.Post("/twilio/voice", h.twilioVoice)
			r.Post("/twilio/transcribe", h.twilioTranscribe)
			r.Post("/twilio/status", h.twilioStatus)
		})
	})

	return r
}

// instrument records request count and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		metrics.DefaultMetrics.RecordRequest("http", r.Method+" "+route, strconv.Itoa(status), duration.Seconds())

		log.Debug().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}
