package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brennhill/browserctl-gateway/internal/session"
)

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create()
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			writeError(w, http.StatusServiceUnavailable, "TOO_MANY_SESSIONS", "session capacity reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: sess.ID, Token: sess.Token})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type startSessionRequest struct {
	StartURL string `json:"startUrl,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req startSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional (spec §6: "{startUrl?}")

	if _, err := s.manager.Start(r.Context(), sess.ID, req.StartURL); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			writeError(w, http.StatusConflict, "INVALID_STATE", "session is not in CREATED state")
			return
		}
		writeError(w, http.StatusInternalServerError, "START_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.manager.End(context.Background(), sess.ID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusInternalServerError, "END_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Steps().List())
}

type updateStepRequest struct {
	Caption *string `json:"caption,omitempty"`
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	stepID := r.PathValue("stepId")

	var req updateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	if req.Caption == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "caption is required")
		return
	}

	step, err := s.manager.UpdateStepCaption(sess.ID, stepID, *req.Caption)
	if err != nil {
		writeError(w, http.StatusNotFound, "STEP_NOT_FOUND", "unknown step id")
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	stepID := r.PathValue("stepId")
	if _, ok := sess.Steps().Delete(stepID); !ok {
		writeError(w, http.StatusNotFound, "STEP_NOT_FOUND", "unknown step id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
