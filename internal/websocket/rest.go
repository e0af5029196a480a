package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/staybridge/courier/internal/identity"
	"github.com/staybridge/courier/internal/store"
	"github.com/staybridge/courier/internal/wire"
)

// The REST fallback lets a client send and read messages when no live
// connection exists. It runs against the same store and dispatcher as the
// WebSocket path, so a message posted here still reaches a connected peer
// as a live push.
//
// The caller's identity arrives in the X-User-ID header; session
// validation happened upstream in the application's auth layer.

func (s *Server) registerREST(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", s.handleCreateMessage)
	mux.HandleFunc("PUT /api/messages/{id}/read", s.handleMarkRead)
	mux.HandleFunc("GET /api/messages", s.handleListMessages)
}

// callerID extracts and validates the authenticated caller.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if !identity.ValidUserID(userID) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid user identifier")
		return "", false
	}
	return userID, true
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.dispatcher.CreateMessage(r.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadUserID), errors.Is(err, ErrEmptyContent):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("rest create message failed", "user_id", userID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to store message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toWire(msg))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messageID := r.PathValue("id")
	msg, err := s.dispatcher.ReadMessage(r.Context(), userID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "message not found")
		case errors.Is(err, ErrNotReceiver):
			writeJSONError(w, http.StatusForbidden, err.Error())
		default:
			s.logger.Error("rest mark read failed", "user_id", userID, "message_id", messageID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to mark message read")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": msg.ID,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var msgs []*store.Message
	var err error
	if peer := r.URL.Query().Get("peer"); peer != "" {
		if !identity.ValidUserID(peer) {
			writeJSONError(w, http.StatusBadRequest, "invalid peer identifier")
			return
		}
		msgs, err = s.store.ListBetween(r.Context(), userID, peer, limit)
	} else {
		msgs, err = s.store.ListForUser(r.Context(), userID, limit)
	}
	if err != nil {
		s.logger.Error("rest list messages failed", "user_id", userID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]wire.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toWire(msg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
