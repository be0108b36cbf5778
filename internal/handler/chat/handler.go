package chat

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/nilm-chat/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
	"github.com/zhouzirui/nilm-chat/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	driver  *assistant.Service
	ws      *WebSocketHandler
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, driver *assistant.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		driver:  driver,
		ws:      NewWebSocketHandler(chatSvc, driver),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handleSendMessage)
		r.Get("/state", h.handleState)
		r.Get("/events", h.handleEvents)
		r.Get("/ws", h.ws.handleWebSocket)
	})
}

// handleCreateSession 创建会话，会话日志以问候语开头
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

// handleListMessages 返回按时间排序的完整会话日志
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSendMessage 发送一条用户消息并等待助手回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.driver.Send(r.Context(), chi.URLParam(r, "sessionID"), payload.Message)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}

// handleState 返回 loading / error 状态
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.driver.State(sessionID))
}

// handleEvents 以SSE推送会话新增的消息
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Infow("sse stream opened", "session", sessionID)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	if err := utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Infow("sse stream closed", "session", sessionID)
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "message", msg); err != nil {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "state", h.driver.State(sessionID)); err != nil {
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{"time": t.UTC().Format(time.RFC3339)}); err != nil {
				return
			}
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrSessionIDInvalid), errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
