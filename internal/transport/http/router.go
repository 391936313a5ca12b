package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter assembles the full HTTP surface.
func NewRouter(handler *Handler, sse *SSEHandler, hostWS *HostWSHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/quizblitz", func(r chi.Router) {
		r.Post("/create", handler.CreateSession)
		r.Post("/start", handler.StartSession)
		r.Post("/join", handler.Join)
		r.Post("/control", handler.Control)
		r.Post("/submit-answer", handler.SubmitAnswer)
		r.Get("/session/{quizCode}", handler.SessionState)
		r.Get("/events/session/{quizCode}", sse.Stream)
	})

	r.Get("/ws/host", hostWS.ServeWS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger logs one line per request. SSE and websocket routes are
// excluded: their duration is the connection lifetime, not a latency.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws/host" || isEventStream(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func isEventStream(r *http.Request) bool {
	return r.Method == http.MethodGet && len(r.URL.Path) > len("/api/quizblitz/events/") &&
		r.URL.Path[:len("/api/quizblitz/events/")] == "/api/quizblitz/events/"
}
