package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/pkg/logger"
)

const streamChunkWords = 4

// WebSocketHandler streams chat answers over a websocket so the UI can
// render them progressively. The engine still answers in one shot; the
// answer is replayed to the client in small word chunks.
type WebSocketHandler struct {
	engine *chatbot.Engine
}

func NewWebSocketHandler(engine *chatbot.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

type wsMessage struct {
	Type           string `json:"type"`
	Question       string `json:"question,omitempty"`
	K              int    `json:"k,omitempty"`
	IncludeSources bool   `json:"include_sources,omitempty"`
}

type wsResponse struct {
	Type        string           `json:"type"`
	Content     string           `json:"content,omitempty"`
	Sources     []chatbot.Source `json:"sources,omitempty"`
	ContextUsed int              `json:"context_used,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (h *WebSocketHandler) HandleConnection(conn *websocket.Conn) {
	defer conn.Close()

	logger.Info("WebSocket connection opened", zap.String("remote", conn.RemoteAddr().String()))

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		switch msg.Type {
		case "query":
			h.streamAnswer(conn, msg)
		case "ping":
			h.send(conn, wsResponse{Type: "pong"})
		default:
			h.send(conn, wsResponse{Type: "error", Error: "Unknown message type: " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) streamAnswer(conn *websocket.Conn, msg wsMessage) {
	question := strings.TrimSpace(msg.Question)
	if question == "" {
		h.send(conn, wsResponse{Type: "error", Error: "Question is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp := h.engine.Query(ctx, question, msg.K, msg.IncludeSources)

	words := strings.Fields(resp.Answer)
	for i := 0; i < len(words); i += streamChunkWords {
		end := i + streamChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		if !h.send(conn, wsResponse{Type: "chunk", Content: chunk}) {
			return
		}
	}

	h.send(conn, wsResponse{
		Type:        "complete",
		Sources:     resp.Sources,
		ContextUsed: resp.ContextUsed,
	})
}

func (h *WebSocketHandler) send(conn *websocket.Conn, resp wsResponse) bool {
	if err := conn.WriteJSON(resp); err != nil {
		logger.Warn("WebSocket write failed", zap.Error(err))
		return false
	}
	return true
}
