// Package webchat exposes the dialogue engine over HTTP for the chat widget.
package webchat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/brightsmile/clinic-assistant/internal/dialogue"
	"github.com/brightsmile/clinic-assistant/internal/session"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

// TurnRequest is what the widget posts for each user message.
type TurnRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message"`
}

// TurnResponse carries the assistant's reply.
type TurnResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves webchat turns.
type Handler struct {
	engine *dialogue.Engine
	logger *logging.Logger
}

func NewHandler(engine *dialogue.Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// HandleTurn is POST /webchat/turn.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	channel := session.ChannelText
	if req.Channel != "" {
		channel = session.Channel(req.Channel)
	}
	key := session.Key{UserID: req.UserID, Channel: channel}

	reply, err := h.engine.HandleTurn(r.Context(), key, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, dialogue.ErrTurnInProgress):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "a turn is already in progress for this session"})
		default:
			h.logger.Error("webchat turn failed", "user_id", req.UserID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to process the message"})
		}
		return
	}
	writeJSON(w, http.StatusOK, TurnResponse{Reply: reply})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
