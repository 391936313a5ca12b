package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

// HostWSHandler is the host console channel. Unlike the player SSE stream it
// is bidirectional: the server pushes full session snapshots (correct answers
// included, hosts see everything) and the host sends transition commands.
type HostWSHandler struct {
	service  *quiz.Service
	interval time.Duration
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHostWSHandler(service *quiz.Service, interval time.Duration, log *zap.Logger) *HostWSHandler {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HostWSHandler{
		service:  service,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type hostInbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type nextQuestionPayload struct {
	CurrentQuestionIndex int `json:"currentQuestionIndex"`
}

type hostOutbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ServeWS handles GET /ws/host?quizCode=...
func (h *HostWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizCode := r.URL.Query().Get("quizCode")
	if quizCode == "" {
		http.Error(w, "missing quizCode", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := h.service.Session(r.Context(), quizCode)
	if err != nil {
		_ = conn.WriteJSON(hostOutbound{Type: "error", Payload: errorBody{Code: "not_found", Message: err.Error()}})
		return
	}

	// Single writer goroutine; everything funnels through send so reads and
	// the snapshot ticker never write the connection concurrently.
	send := make(chan hostOutbound, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("host ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				session, err := h.service.Session(r.Context(), quizCode)
				if err != nil {
					return
				}
				select {
				case send <- hostOutbound{Type: "session", Payload: hostSnapshot(session, time.Now())}:
				case <-done:
					return
				}
			}
		}
	}()

	send <- hostOutbound{Type: "session", Payload: hostSnapshot(session, time.Now())}

	for {
		var inbound hostInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "next-question":
			var payload nextQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- hostOutbound{Type: "error", Payload: errorBody{Code: "bad_request", Message: "invalid next-question payload"}}
				continue
			}
			result, err := h.service.AdvanceQuestion(r.Context(), quizCode, payload.CurrentQuestionIndex)
			if err != nil {
				code := "internal"
				switch {
				case errors.Is(err, domain.ErrConflict):
					code = "conflict"
				case errors.Is(err, domain.ErrInvalidState):
					code = "invalid_state"
				case errors.Is(err, domain.ErrSessionNotFound):
					code = "not_found"
				}
				send <- hostOutbound{Type: "error", Payload: errorBody{Code: code, Message: err.Error()}}
				continue
			}
			send <- hostOutbound{Type: "session", Payload: hostSnapshot(result.Session, time.Now())}
		default:
			send <- hostOutbound{Type: "error", Payload: errorBody{Code: "bad_request", Message: "unsupported message type"}}
		}
	}

	// The ticker goroutine may be mid-snapshot; it must observe done and
	// exit before send closes, or it would write to a closed channel.
	close(done)
	<-tickerDone
	close(send)
	<-writerDone
}

// hostSnapshot is the host-facing projection: the raw session plus derived
// remaining time. Correct answers stay in because hosts run the reveal.
func hostSnapshot(session *domain.Session, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"session":       session,
		"timeRemaining": session.RemainingAt(now).Seconds(),
	}
}
