package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/nilm-chat/backend/internal/config"
	"github.com/zhouzirui/nilm-chat/backend/internal/handler"
	"github.com/zhouzirui/nilm-chat/backend/internal/handler/upstream"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/ai"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/assistant"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/dashboard"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/resolver"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envErr != nil {
		log.Warnf("failed to load .env file, continuing with system environment variables only: %v", envErr)
	}

	// The resolver is chosen once; nothing switches it at runtime.
	chatResolver := buildResolver(cfg.Client)
	chatService := chat.NewService()
	driver := assistant.NewService(chatService, chatResolver)

	poller := dashboard.NewPoller(buildPrimarySource(cfg), buildFallbackSource(cfg), dashboard.Config{
		Interval:        cfg.Dashboard.PollInterval,
		RefreshInterval: cfg.Dashboard.RefreshInterval,
	})

	upstreamHandler := upstream.New(chat.NewService(), buildResponder(ctx, cfg.AI), dashboard.NewMockSource())

	router := handler.NewRouter(handler.Dependencies{
		Chat:           chatService,
		Driver:         driver,
		Poller:         poller,
		Upstream:       upstreamHandler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	if err := run(ctx, cfg.Server, router, poller); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func buildResolver(cfg config.ClientConfig) resolver.Resolver {
	if cfg.MockMode {
		log.Infow("chat resolver selected", "mode", "mock", "latency", cfg.MockLatency.String())
		return resolver.NewMockResolver(cfg.MockLatency)
	}

	log.Infow("chat resolver selected", "mode", "remote", "baseURL", cfg.BaseURL, "timeout", cfg.Timeout.String())
	return resolver.NewRemoteResolver(resolver.RemoteConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
}

func buildPrimarySource(cfg *config.Config) dashboard.Source {
	if cfg.Client.MockMode {
		return dashboard.NewMockSource()
	}
	return dashboard.NewRemoteSource(cfg.Client.BaseURL, cfg.Client.Timeout)
}

func buildFallbackSource(cfg *config.Config) dashboard.Source {
	if cfg.Client.MockMode || !cfg.Dashboard.Fallback {
		return nil
	}
	return dashboard.NewMockSource()
}

// buildResponder 选择 /api/chat 的回复来源：配置了 Ark 时使用大模型，否则使用关键词回复
func buildResponder(ctx context.Context, cfg config.AIConfig) upstream.Responder {
	if !cfg.Enabled() {
		log.Infow("Ark 凭证未配置，/api/chat 使用关键词回复")
		return upstream.MockResponder{}
	}

	aiService, err := ai.NewService(ctx, dashboard.NewMockSource(), cfg)
	if err != nil {
		log.Warnw("failed to initialize AI service, falling back to keyword replies - 请检查 Ark 模型相关环境变量", "error", err)
		return upstream.MockResponder{}
	}

	log.Infow("AI service initialized successfully", "model", cfg.Model)
	return aiService
}

// run serves HTTP and polls the dashboard until ctx is done or either fails.
func run(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, poller *dashboard.Poller) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		log.Infof("NILM chat backend listening on %s", serverCfg.Addr)
		return runServer(gctx, srv)
	})
	return g.Wait()
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
