package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler WebSocket聊天处理器
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	driver   *assistant.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service, driver *assistant.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		driver:  driver,
		upgrader: websocket.Upgrader{
			// 跨域由 CORS 中间件负责
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn 串行化写操作，gorilla 连接不支持并发写
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	updates, unsubscribe, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer unsubscribe()

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	log.Infow("websocket connected", "session", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	_ = raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(readTimeout))
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		h.forwardMessages(ctx, conn, sessionID, updates)
	}()

	h.sendFrame(conn, sessionID, "state", h.driver.State(sessionID))

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnw("websocket read error", "session", sessionID, "error", err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			var text TextMessage
			if err := json.Unmarshal(msg.Data, &text); err != nil {
				h.sendError(conn, sessionID, "invalid message payload")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.processUserText(ctx, conn, sessionID, text.Text)
			}()
		default:
			h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
		}
	}
}

// processUserText 触发一次对话；回复经由订阅通道推送
func (h *WebSocketHandler) processUserText(ctx context.Context, conn *wsConn, sessionID, text string) {
	_, err := h.driver.Send(ctx, sessionID, text)
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return
	case err != nil:
		h.sendError(conn, sessionID, err.Error())
		return
	}
	h.sendFrame(conn, sessionID, "state", h.driver.State(sessionID))
}

func (h *WebSocketHandler) forwardMessages(ctx context.Context, conn *wsConn, sessionID string, updates <-chan chat.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			h.sendFrame(conn, sessionID, "message", msg)
			h.sendFrame(conn, sessionID, "state", h.driver.State(sessionID))
		}
	}
}

func (h *WebSocketHandler) sendFrame(conn *wsConn, sessionID, frameType string, data any) {
	msg := outgoingMessage{
		Type:      frameType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		log.Debugw("websocket write failed", "session", sessionID, "type", frameType, "error", err)
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, sessionID, message string) {
	h.sendFrame(conn, sessionID, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
