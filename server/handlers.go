package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/searchagent/auth"
	"github.com/hupe1980/searchagent/engine"
	"github.com/hupe1980/searchagent/sse"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	Email string `json:"email"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	tok, err := s.svc.Login(req.Email, req.Password)
	if err != nil {
		writeUnauthorized(w, auth.ErrInvalidCredentials.Error())
		return
	}

	writeJSON(w, http.StatusOK, tok)
}

// handleMe echoes the token subject, which keeps the casing used at login.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{Email: identity})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	message := pathMessage(r)
	checkpointID := r.URL.Query().Get("checkpoint_id")

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming is unsupported")
		return
	}

	id, events, err := s.svc.Chat(r.Context(), identity, checkpointID, message)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message must not be empty")
		default:
			s.logger.Error("chat.start.failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "chat is unavailable")
		}
		return
	}

	// Event stream headers are only set once the turn has started.
	stream, err := sse.NewWriter(w)
	if err != nil {
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := stream.WriteCheckpoint(id); err != nil {
		return
	}

	var keepAlive <-chan time.Time
	if s.opts.KeepAlive > 0 {
		ticker := time.NewTicker(s.opts.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := stream.WriteEvent(ev); err != nil {
				s.logger.Debug("chat.stream.write_failed", "conversation_id", id, "error", err)
				return
			}
		case <-keepAlive:
			if err := stream.KeepAlive(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// pathMessage returns the decoded {message} segment.
func pathMessage(r *http.Request) string {
	raw := chi.URLParam(r, "message")
	if r.URL.RawPath == "" {
		return raw
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
