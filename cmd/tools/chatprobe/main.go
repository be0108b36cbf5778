package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/nilm-chat/backend/internal/config"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/nilm-chat/backend/internal/service/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/dashboard"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/resolver"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, "console"); err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envErr != nil {
		log.Warnf("无法加载 .env，改用系统环境变量: %v", envErr)
	}

	defaultMode := "remote"
	if cfg.Client.MockMode {
		defaultMode = "mock"
	}

	mode := flag.String("mode", defaultMode, "回复模式: mock 或 remote")
	base := flag.String("base", cfg.Client.BaseURL, "NILM 后端地址")
	messages := flag.String("message", "What devices are running?", "发送的消息，多条用 | 分隔")
	timeout := flag.Duration("timeout", cfg.Client.Timeout, "单次请求超时时间")
	readings := flag.Bool("readings", false, "同时打印仪表盘读数")

	flag.Parse()

	if *mode != "mock" && *mode != "remote" {
		flag.Usage()
		log.Fatalf("请通过 -mode=mock 或 -mode=remote 指定模式")
	}

	probe := probeConfig{
		Mode:        *mode,
		BaseURL:     *base,
		Timeout:     *timeout,
		MockLatency: 0,
		Messages:    splitMessages(*messages),
		Readings:    *readings,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*time.Duration(len(probe.Messages)+2))
	defer cancel()

	if err := runProbe(ctx, os.Stdout, probe); err != nil {
		log.Fatalf("探测失败: %v", err)
	}
}

type probeConfig struct {
	Mode        string
	BaseURL     string
	Timeout     time.Duration
	MockLatency time.Duration
	Messages    []string
	Readings    bool
}

func splitMessages(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if msg := strings.TrimSpace(part); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// runProbe drives the conversation in-process and prints the transcript to w.
func runProbe(ctx context.Context, w io.Writer, probe probeConfig) error {
	var (
		r      resolver.Resolver
		source dashboard.Source
	)
	if probe.Mode == "mock" {
		r = resolver.NewMockResolver(probe.MockLatency)
		source = dashboard.NewMockSource()
	} else {
		r = resolver.NewRemoteResolver(resolver.RemoteConfig{BaseURL: probe.BaseURL, Timeout: probe.Timeout})
		source = dashboard.NewRemoteSource(probe.BaseURL, probe.Timeout)
	}

	store := chatservice.NewService()
	driver := assistant.NewService(store, r)

	session, err := store.CreateSession(ctx)
	if err != nil {
		return err
	}
	log.Infow("probe started", "mode", probe.Mode, "session", session.ID, "messages", len(probe.Messages))

	for _, msg := range probe.Messages {
		exchange, err := driver.Send(ctx, session.ID, msg)
		if err != nil {
			return fmt.Errorf("send %q: %w", msg, err)
		}
		if exchange.Failed {
			state := driver.State(session.ID)
			if state.Error != nil {
				log.Warnw("resolver failed", "error", *state.Error)
			}
		}
	}

	transcript, err := store.LoadTranscript(ctx, session.ID)
	if err != nil {
		return err
	}
	printTranscript(w, transcript)

	if !probe.Readings {
		return nil
	}

	data, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch readings: %w", err)
	}
	printReadings(w, data)
	return nil
}

func printTranscript(w io.Writer, transcript []chat.Message) {
	for _, msg := range transcript {
		fmt.Fprintf(w, "[%s] %s: %s\n\n", msg.Timestamp.Format(time.TimeOnly), msg.Role, msg.Content)
	}
}

func printReadings(w io.Writer, readings []metrics.Reading) {
	fmt.Fprintf(w, "%-20s %8s %8s %8s %8s  %s\n", "LOAD", "VOLTAGE", "CURRENT", "POWER", "THD", "LEVEL")
	for _, r := range readings {
		fmt.Fprintf(w, "%-20s %7.1fV %7.2fA %7.1fW %7.1f%%  %s\n",
			r.LoadType, r.Voltage, r.Current, r.Power, r.THD, metrics.ClassifyTHD(r.THD))
	}

	summary := metrics.Summarize(readings, time.Now().UTC())
	fmt.Fprintf(w, "\ndevices=%d total=%.1fW avgTHD=%.2f%%\n", summary.TotalDevices, summary.TotalPower, summary.AvgTHD)
}
