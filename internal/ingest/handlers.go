package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"homebot/internal/assistant"
	logx "homebot/pkg/logx"
)

type authorizedRequest struct {
	UserID string `json:"user_id"`
}

type reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler returns the routed, authenticated handler. Exposed for tests.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/events/authorized", s.withAuth(cur.Token, s.handleAuthorized))
	mux.HandleFunc("POST /v1/events/unknown", s.withAuth(cur.Token, s.handleUnknown(cur.MaxImageBytes)))
	mux.HandleFunc("GET /v1/status", s.withAuth(cur.Token, s.handleStatus))
	return mux
}

func (s *Service) handleAuthorized(w http.ResponseWriter, r *http.Request) {
	var req authorizedRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, reply{Status: "rejected", Error: "invalid json body"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, reply{Status: "rejected", Error: "user_id is required"})
		return
	}

	err := s.events.OnAuthorizedUser(req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, reply{Status: "session_started"})
	case errors.Is(err, assistant.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, reply{Status: "rejected", Error: "unknown user"})
	case errors.Is(err, assistant.ErrSessionActive):
		writeJSON(w, http.StatusConflict, reply{Status: "ignored", Error: "session already active"})
	case errors.Is(err, assistant.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, reply{Status: "rejected", Error: "shutting down"})
	default:
		s.log.Warn("authorized event failed", logx.String("user", req.UserID), logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, reply{Status: "error", Error: err.Error()})
	}
}

func (s *Service) handleUnknown(maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, reply{Status: "rejected", Error: "image too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, reply{Status: "rejected", Error: "read body failed"})
			return
		}
		if len(body) == 0 {
			writeJSON(w, http.StatusBadRequest, reply{Status: "rejected", Error: "empty image"})
			return
		}
		if err := s.events.OnUnknownSubject(body); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, assistant.ErrStopped) {
				code = http.StatusServiceUnavailable
			}
			writeJSON(w, code, reply{Status: "error", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, reply{Status: "accepted"})
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, reply{Status: "rejected", Error: "unauthorized"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
