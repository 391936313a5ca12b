package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

var sseConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "quizblitz_sse_connections",
	Help: "Currently open SSE streams.",
})

// SSEHandler streams session state to players. Each push re-derives the view
// (and its remaining time) from the stored anchor, so a freshly connected
// client is correct immediately and a reconnecting one needs no catch-up
// protocol.
type SSEHandler struct {
	service  *quiz.Service
	interval time.Duration
	log      *zap.Logger
}

func NewSSEHandler(service *quiz.Service, interval time.Duration, log *zap.Logger) *SSEHandler {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SSEHandler{service: service, interval: interval, log: log}
}

// Stream handles GET /api/quizblitz/events/session/{quizCode}.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	quizCode := chi.URLParam(r, "quizCode")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Validate the session before committing to the stream so a bad code
	// still gets a regular 404.
	if _, err := h.service.View(r.Context(), quizCode); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sseConnections.Inc()
	defer sseConnections.Dec()

	writeFrame(w, "connected", map[string]interface{}{
		"quizCode":  quiz.NormalizeCode(quizCode),
		"timestamp": time.Now().UnixMilli(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			view, err := h.service.View(r.Context(), quizCode)
			if err != nil {
				// Session vanished mid-stream (cleanup, restart). End the
				// stream; the client reconnects and gets the 404.
				h.log.Debug("sse session lookup failed",
					zap.String("quizCode", quizCode), zap.Error(err))
				return
			}
			writeFrame(w, "session_update", view)
			flusher.Flush()
			if view.Status == domain.StatusFinished {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
