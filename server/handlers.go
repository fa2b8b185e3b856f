package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/opd-ai/callquality/limits"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const negotiateDeadline = 10 * time.Second

// CreateCallRequest is the body of POST /calls. An empty body creates a
// simulated call when the server runs simulated engines.
type CreateCallRequest struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CreateCallResponse is returned by POST /calls.
type CreateCallResponse struct {
	CallID string                     `json:"callId"`
	Answer *webrtc.SessionDescription `json:"answer,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Debug("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	body := http.MaxBytesReader(w, r.Body, 2*limits.MaxOfferSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.SDP == "" {
		id, err := s.CreateSimulatedCall()
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, CreateCallResponse{CallID: id})
		return
	}

	if req.Type != "" && req.Type != webrtc.SDPTypeOffer.String() {
		writeError(w, http.StatusBadRequest, ErrOfferMissing)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), negotiateDeadline)
	defer cancel()

	id, answer, err := s.CreateCall(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleCreateCall",
			"error":    err.Error(),
		}).Warn("Failed to create call")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateCallResponse{CallID: id, Answer: answer})
}

func (s *Server) handleListCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshots())
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := limits.ValidateCallID(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := s.Snapshot(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDeleteCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := limits.ValidateCallID(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.EndCall(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.Report())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	calls := len(s.calls)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"calls":       calls,
		"subscribers": s.hub.SubscriberCount(),
		"simulation":  s.engines.IsUsingSimulation(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOfferMissing):
		return http.StatusBadRequest
	case errors.Is(err, limits.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
