// Package dashboard 提供仪表盘读数相关的 HTTP 接口。
package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	dashboardService "github.com/zhouzirui/nilm-chat/backend/internal/service/dashboard"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
	"github.com/zhouzirui/nilm-chat/backend/pkg/utils"
)

// ReadingView 附带 THD 等级的读数
type ReadingView struct {
	metrics.Reading
	THDLevel metrics.THDLevel `json:"thdLevel"`
}

// SnapshotView 仪表盘快照
type SnapshotView struct {
	Readings  []ReadingView `json:"readings"`
	Source    string        `json:"source"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// NewSnapshotView 为每条读数计算 THD 等级
func NewSnapshotView(snapshot dashboardService.Snapshot) SnapshotView {
	view := SnapshotView{
		Readings:  make([]ReadingView, 0, len(snapshot.Readings)),
		Source:    snapshot.Source,
		UpdatedAt: snapshot.UpdatedAt,
	}
	for _, r := range snapshot.Readings {
		view.Readings = append(view.Readings, ReadingView{Reading: r, THDLevel: metrics.ClassifyTHD(r.THD)})
	}
	return view
}

// Handler 仪表盘处理器
type Handler struct {
	poller *dashboardService.Poller
}

// New 创建仪表盘处理器
func New(poller *dashboardService.Poller) *Handler {
	return &Handler{poller: poller}
}

// RegisterRoutes 注册读数相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/readings", func(r chi.Router) {
		r.Get("/", h.handleReadings)
		r.Post("/refresh", h.handleRefresh)
		r.Get("/summary", h.handleSummary)
		r.Get("/stream", h.handleStream)
	})
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, NewSnapshotView(h.poller.Snapshot()))
}

// handleRefresh 手动刷新，频率受限
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.poller.Refresh(r.Context())
	switch {
	case errors.Is(err, dashboardService.ErrRefreshThrottled):
		utils.RespondError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		log.Errorw("dashboard refresh failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "failed to fetch electrical data")
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewSnapshotView(snapshot))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, metrics.Summarize(h.poller.Snapshot().Readings, time.Now().UTC()))
}

// handleStream 以SSE推送每次刷新后的快照
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.poller.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", NewSnapshotView(h.poller.Snapshot())); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", NewSnapshotView(snapshot)); err != nil {
				return
			}
		}
	}
}
