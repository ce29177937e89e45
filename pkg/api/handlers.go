package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/odvcencio/numify/pkg/auth"
	"github.com/odvcencio/numify/pkg/logging"
	"github.com/odvcencio/numify/pkg/scraper"
	"github.com/odvcencio/numify/pkg/session"
)

// StartRequest is the request body for POST /start.
type StartRequest struct {
	LiveURL string `json:"live_url"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "numify backend is running"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	uid, err := s.verifier.VerifyHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, authErrorMessage(err))
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.LiveURL) == "" {
		writeError(w, http.StatusBadRequest, "missing live_url")
		return
	}

	exists, err := s.store.UserExists(r.Context(), uid)
	if err != nil {
		s.events.Error(logging.CategoryAPI, "approval_check_failed", uid, err.Error(), nil)
		writeError(w, http.StatusInternalServerError, "approval lookup failed")
		return
	}
	if !exists {
		writeError(w, http.StatusForbidden, "user record not found")
		return
	}
	approved, err := s.store.IsApproved(r.Context(), uid)
	if err != nil {
		s.events.Error(logging.CategoryAPI, "approval_check_failed", uid, err.Error(), nil)
		writeError(w, http.StatusInternalServerError, "approval lookup failed")
		return
	}
	if !approved {
		writeError(w, http.StatusForbidden, "user not approved")
		return
	}

	sess, err := s.registry.Create(uid, req.LiveURL)
	if err != nil {
		if errors.Is(err, session.ErrSessionRunning) {
			writeError(w, http.StatusConflict, "already running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	worker := scraper.New(scraper.Config{
		Session:      sess,
		Provider:     s.provider,
		Store:        s.store,
		Logger:       s.events,
		PollInterval: s.cfg.PollInterval,
	})
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer refreshSessionGauge(s.registry)
		worker.Run(s.baseCtx)
	}()

	s.events.Info(logging.CategorySession, "session_started", uid, "", map[string]any{
		"live_url": req.LiveURL,
	})
	refreshSessionGauge(s.registry)
	writeJSON(w, http.StatusOK, map[string]string{"message": "scraper started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	uid, err := s.verifier.VerifyHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, authErrorMessage(err))
		return
	}

	sess, ok := s.registry.Get(uid)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no active session"})
		return
	}

	// Cooperative stop: the worker observes the status at the top of its
	// next iteration. Stopping an already-stopped or failed session is
	// harmless and still succeeds.
	if sess.Status() == session.StatusRunning || sess.Status() == session.StatusIdle {
		sess.SetStatus(session.StatusStopped)
	}
	s.events.Info(logging.CategorySession, "stop_requested", uid, "", nil)
	refreshSessionGauge(s.registry)
	writeJSON(w, http.StatusOK, map[string]string{"message": "scraper stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := s.verifier.VerifyHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, authErrorMessage(err))
		return
	}

	sess, ok := s.registry.Get(uid)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no session"})
		return
	}

	resp := map[string]any{
		"status":   sess.Status(),
		"live_url": sess.LiveURL(),
		"records":  sess.Len(),
	}
	if lastErr := sess.LastError(); lastErr != "" {
		resp["error"] = lastErr
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream pushes the session's records as server-sent events. Stream
// clients often cannot set headers, so the credential arrives as a query
// parameter; only authentication is required, not approval.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token param")
		return
	}
	uid, err := s.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, authErrorMessage(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher.Flush()

	metricOpenStreams.Inc()
	defer metricOpenStreams.Dec()

	records := s.dispatcher.Follow(r.Context(), uid)
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// SSE comment line keeps proxies from reaping the connection.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case rec, open := <-records:
			if !open {
				return
			}
			payload, err := json.Marshal(map[string]string{
				"number":  rec.Number,
				"message": rec.Message,
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return "missing authorization"
	case errors.Is(err, auth.ErrExpiredToken):
		return "token expired"
	default:
		return "invalid token"
	}
}
