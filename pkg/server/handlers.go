package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/periplo-ai/periplo/pkg/agent"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// statusClientClosedRequest is the nginx convention for a caller that went
// away before the response was written.
const statusClientClosedRequest = 499

// Handler builds the route tree. Exposed so tests can drive the server
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/v1/chat", s.handleChat)
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	UserID          string `json:"user_id"`
	Text            string `json:"text"`
	IncludeThoughts bool   `json:"include_thoughts"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, travel.E(travel.ErrInvalidInput, "malformed request body"))
		return
	}

	reply, err := s.chat.Handle(r.Context(), agent.Request{
		UserID:          req.UserID,
		Text:            req.Text,
		IncludeThoughts: req.IncludeThoughts,
		Deadline:        s.headerDeadline(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// headerDeadline turns the Request-Timeout header into an absolute
// deadline, clamped to the configured ceiling. The value is seconds, or
// any Go duration string. Absent or unparseable means no header deadline.
func (s *Server) headerDeadline(r *http.Request) time.Time {
	raw := r.Header.Get("Request-Timeout")
	if raw == "" {
		return time.Time{}
	}

	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if parsed, err := time.ParseDuration(raw); err == nil {
		d = parsed
	} else {
		return time.Time{}
	}

	if d <= 0 {
		return time.Time{}
	}
	if d > s.cfg.MaxRequestTimeout {
		d = s.cfg.MaxRequestTimeout
	}
	return time.Now().Add(d)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	terr := travel.Classify(err)
	writeJSON(w, statusOf(terr.Kind), errorBody{
		Error: terr.Error(),
		Kind:  string(terr.Kind),
	})
}

func statusOf(kind travel.ErrorKind) int {
	switch kind {
	case travel.ErrInvalidInput:
		return http.StatusBadRequest
	case travel.ErrRateLimited:
		return http.StatusTooManyRequests
	case travel.ErrCanceled:
		return statusClientClosedRequest
	case travel.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
