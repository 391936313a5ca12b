package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

var answersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quizblitz_answers_submitted_total",
	Help: "Answer submissions by outcome.",
}, []string{"outcome"})

// Handler carries the REST surface. Every mutation funnels into the quiz
// service; handlers only translate HTTP shapes and error codes.
type Handler struct {
	service *quiz.Service
	log     *zap.Logger
}

func NewHandler(service *quiz.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain sentinels onto HTTP statuses. Conflict-family errors
// are expected control flow (lost conditional writes, duplicate answers) and
// are not logged as failures.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrQuestionSetNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSessionExists):
		status, code = http.StatusConflict, "session_exists"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		status, code = http.StatusConflict, "already_answered"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrStaleQuestion):
		status, code = http.StatusGone, "stale_question"
	default:
		status, code = http.StatusInternalServerError, "internal"
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type createRequest struct {
	QuizCode      string            `json:"quizCode"`
	AccessCode    string            `json:"accessCode,omitempty"`
	Questions     []domain.Question `json:"questions,omitempty"`
	TimerDuration int               `json:"timerDuration,omitempty"`
}

// CreateSession handles POST /api/quizblitz/create. Questions come either
// inline or from a stored question set behind an access code.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "invalid JSON body"})
		return
	}
	if req.QuizCode == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "quizCode is required"})
		return
	}

	var session *domain.Session
	var err error
	if req.AccessCode != "" {
		session, err = h.service.CreateSessionFromAccessCode(r.Context(), req.QuizCode, req.AccessCode, req.TimerDuration)
	} else {
		session, err = h.service.CreateSession(r.Context(), req.QuizCode, req.Questions, req.TimerDuration)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"quizCode":       session.QuizCode,
		"status":         session.Status,
		"totalQuestions": len(session.Questions),
		"timerDuration":  session.TimerDuration,
	})
}

type startRequest struct {
	QuizCode string `json:"quizCode"`
}

// StartSession handles POST /api/quizblitz/start. Idempotency lives in the
// store's conditional write: a second start loses the waiting->active guard
// and surfaces as a conflict.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil || req.QuizCode == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "quizCode is required"})
		return
	}
	session, err := h.service.StartSession(r.Context(), req.QuizCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quizCode":             session.QuizCode,
		"status":               session.Status,
		"currentQuestionIndex": session.CurrentQuestionIndex,
		"questionStartedAt":    session.QuestionStartedAt.UnixMilli(),
	})
}

type joinRequest struct {
	QuizCode   string `json:"quizCode"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName"`
}

// Join handles POST /api/quizblitz/join. Web players get a generated id;
// Telegram players arrive through the bot with their chat id already set.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil || req.QuizCode == "" || req.PlayerName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "quizCode and playerName are required"})
		return
	}
	player := domain.Player{
		ID:     req.PlayerID,
		Name:   req.PlayerName,
		Source: domain.SourceWeb,
	}
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	joined, err := h.service.Join(r.Context(), req.QuizCode, player)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playerId":   joined.ID,
		"playerName": joined.Name,
		"quizCode":   quiz.NormalizeCode(req.QuizCode),
	})
}

type controlRequest struct {
	QuizCode             string `json:"quizCode"`
	Action               string `json:"action"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

// Control handles POST /api/quizblitz/control, the host's transition channel.
// next-question is conditional on the index the host last saw, so a host
// racing the timer authority gets a conflict instead of a double skip.
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeJSON(r, &req); err != nil || req.QuizCode == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "quizCode and action are required"})
		return
	}
	switch req.Action {
	case "next-question":
		result, err := h.service.AdvanceQuestion(r.Context(), req.QuizCode, req.CurrentQuestionIndex)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if result.Finished {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"quizCode": result.Session.QuizCode,
				"status":   result.Session.Status,
				"finished": true,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"quizCode":             result.Session.QuizCode,
			"status":               result.Session.Status,
			"currentQuestionIndex": result.Session.CurrentQuestionIndex,
			"questionStartedAt":    result.Session.QuestionStartedAt.UnixMilli(),
		})
	case "get-current-state":
		view, err := h.service.View(r.Context(), req.QuizCode)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "unknown action"})
	}
}

type submitAnswerRequest struct {
	QuizCode      string `json:"quizCode"`
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// SubmitAnswer handles POST /api/quizblitz/submit-answer. Correctness and
// score are withheld from the response mid-question; only receipt is
// acknowledged.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil || req.QuizCode == "" || req.PlayerID == "" || req.Answer == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "quizCode, playerId and answer are required"})
		return
	}
	record, err := h.service.SubmitAnswer(r.Context(), req.QuizCode, req.PlayerID, req.QuestionIndex, req.Answer, req.Timestamp)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyAnswered):
			answersSubmitted.WithLabelValues("duplicate").Inc()
		case errors.Is(err, domain.ErrStaleQuestion):
			answersSubmitted.WithLabelValues("stale").Inc()
		default:
			answersSubmitted.WithLabelValues("rejected").Inc()
		}
		h.writeError(w, err)
		return
	}
	answersSubmitted.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accepted":      true,
		"questionIndex": record.QuestionIndex,
		"submittedAt":   record.SubmittedAt.UnixMilli(),
	})
}

// SessionState handles GET /api/quizblitz/session/{quizCode}: the derived
// client view with remaining time recomputed at request time.
func (h *Handler) SessionState(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), chi.URLParam(r, "quizCode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
