// Package upstream 实现 NILM 后端接口：聊天、历史记录与电气数据。
// 前端客户端通过 NILM_API_BASE_URL 访问这些接口。
package upstream

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	chatService "github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/resolver"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
	"github.com/zhouzirui/nilm-chat/backend/pkg/utils"
)

const (
	AppName    = "NILM Chat Agent"
	AppVersion = "1.0.0"

	apologyMessage = "I'm sorry, I encountered an error processing your request. Please try again later."

	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// Responder 生成助手回复
type Responder interface {
	GenerateResponse(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (string, error)
}

// ReadingSource 提供当前电气数据
type ReadingSource interface {
	Fetch(ctx context.Context) ([]metrics.Reading, error)
}

// MockResponder 使用关键词匹配回复，未配置大模型时使用
type MockResponder struct{}

func (MockResponder) GenerateResponse(_ context.Context, _ string, _ []chat.Message, userMessage string) (string, error) {
	return resolver.MockReply(userMessage), nil
}

// Handler NILM 后端处理器
type Handler struct {
	history   *chatService.Service
	responder Responder
	readings  ReadingSource
}

// New 创建后端处理器
func New(history *chatService.Service, responder Responder, readings ReadingSource) *Handler {
	return &Handler{history: history, responder: responder, readings: readings}
}

// RegisterRoutes 注册根路径下的后端路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/current-data", h.handleCurrentData)
}

// RegisterAPIRoutes 注册 /api 前缀下的后端路由
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/history/{sessionID}", h.handleHistory)
	r.Get("/metrics/summary", h.handleSummary)
	r.Get("/metrics/recent", h.handleRecent)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"name":    AppName,
		"version": AppVersion,
	})
}

// handleChat 记录用户消息，生成回复并写入历史
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondJSON(w, http.StatusBadRequest, map[string]string{"message": "message is required"})
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := r.Context()
	if _, err := h.history.EnsureSession(ctx, sessionID); err != nil {
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	if _, _, err := h.history.AppendUser(ctx, sessionID, payload.Message); err != nil {
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}

	transcript, err := h.history.LoadTranscript(ctx, sessionID)
	if err != nil {
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}

	reply, err := h.responder.GenerateResponse(ctx, sessionID, transcript, payload.Message)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Errorw("failed to generate chat reply", "session", sessionID, "error", err)
		reply = apologyMessage
	}

	if _, _, err := h.history.AppendAssistant(ctx, sessionID, reply); err != nil {
		log.Warnw("failed to store assistant reply", "session", sessionID, "error", err)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message":    reply,
		"session_id": sessionID,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.history.LoadTranscript(r.Context(), sessionID)
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "No chat history found for session "+sessionID)
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleCurrentData(w http.ResponseWriter, r *http.Request) {
	readings, err := h.readings.Fetch(r.Context())
	if err != nil {
		log.Errorw("failed to load current data", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load current data")
		return
	}
	if readings == nil {
		readings = []metrics.Reading{}
	}
	utils.RespondJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	readings, err := h.readings.Fetch(r.Context())
	if err != nil {
		log.Errorw("failed to load metrics summary", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load metrics summary")
		return
	}
	utils.RespondJSON(w, http.StatusOK, metrics.Summarize(readings, time.Now().UTC()))
}

// handleRecent 按时间倒序返回最近的读数，limit 取值 1-100
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			utils.RespondError(w, http.StatusUnprocessableEntity, "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	readings, err := h.readings.Fetch(r.Context())
	if err != nil {
		log.Errorw("failed to load recent metrics", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load recent metrics")
		return
	}

	recent := slices.Clone(readings)
	slices.SortStableFunc(recent, func(a, b metrics.Reading) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	if recent == nil {
		recent = []metrics.Reading{}
	}
	utils.RespondJSON(w, http.StatusOK, recent)
}
