// Package httpapi exposes the turn loop over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	nodex "github.com/tanpawarit/support-router/agent/nodes"
	statex "github.com/tanpawarit/support-router/agent/state"
)

const maxBodyBytes = 1 << 20

type Service interface {
	HandleMessage(ctx context.Context, sessionID, userID, text string) (contractx.Turn, error)
	History(ctx context.Context, sessionID string) ([]contractx.Turn, error)
}

type turnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type turnResponse struct {
	Turn  contractx.Turn `json:"turn"`
	Error string         `json:"error,omitempty"`
}

type Handler struct {
	svc    Service
	logger zerolog.Logger
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(svc Service, logger zerolog.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1/sessions/{sessionID}/turns", func(r chi.Router) {
		r.Post("/", h.postTurn)
		r.Get("/", h.listTurns)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) postTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req turnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "request body must be a JSON object with user_id and text")
		return
	}

	turn, err := h.svc.HandleMessage(r.Context(), sessionID, strings.TrimSpace(req.UserID), req.Text)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, turnResponse{Turn: turn})
	case errors.Is(err, nodex.ErrInvalidMessage), errors.Is(err, nodex.ErrInvalidSession):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contractx.ErrTimeout):
		JSON(w, http.StatusGatewayTimeout, turnResponse{Turn: turn, Error: err.Error()})
	case turn.Closed():
		// The turn failed but was still closed with an apology reply.
		JSON(w, http.StatusOK, turnResponse{Turn: turn, Error: err.Error()})
	default:
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("handle turn")
		Error(w, http.StatusInternalServerError, "turn could not be processed")
	}
}

func (h *Handler) listTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := h.svc.History(r.Context(), chi.URLParam(r, "sessionID"))
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]any{"turns": turns})
	case errors.Is(err, statex.ErrStateNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, nodex.ErrInvalidSession), errors.Is(err, statex.ErrInvalidSession):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("list turns")
		Error(w, http.StatusInternalServerError, "history could not be loaded")
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
