package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/nilm-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/handler/dashboard"
	"github.com/zhouzirui/nilm-chat/backend/internal/handler/upstream"
	middlewarePkg "github.com/zhouzirui/nilm-chat/backend/internal/middleware"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	dashboardService "github.com/zhouzirui/nilm-chat/backend/internal/service/dashboard"
)

// Dependencies groups the services the router exposes.
type Dependencies struct {
	Chat           *chatService.Service
	Driver         *assistant.Service
	Poller         *dashboardService.Poller
	Upstream       *upstream.Handler
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	chatHandler := chat.New(deps.Chat, deps.Driver)
	dashboardHandler := dashboard.New(deps.Poller)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		dashboardHandler.RegisterRoutes(api)

		if deps.Upstream != nil {
			deps.Upstream.RegisterAPIRoutes(api)
		}
	})

	// NILM backend surface outside /api
	if deps.Upstream != nil {
		deps.Upstream.RegisterRoutes(r)
	}

	return r
}
