package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Client    ClientConfig
	Dashboard DashboardConfig
	AI        AIConfig
}

var validate = validator.New()

// Load 从环境变量加载配置，并做基本校验。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	dashboard, err := loadDashboardConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:    server,
		Log:       loadLogConfig(),
		Client:    client,
		Dashboard: dashboard,
		AI:        ai,
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "invalid configuration")
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string   `validate:"required"`
	AllowedOrigins []string `validate:"dive,required"`
}

// loadServerConfig 解析服务器监听地址与跨域白名单。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"})

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, oops.In("config").With("PORT", port).Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=console json"`
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

// ClientConfig 描述聊天客户端如何访问 NILM 上游。
type ClientConfig struct {
	BaseURL     string        `validate:"required,url"`
	MockMode    bool          // 聊天与仪表盘共用的唯一开关
	Timeout     time.Duration `validate:"gt=0"`
	MockLatency time.Duration `validate:"gte=0"`
}

func loadClientConfig() (ClientConfig, error) {
	mockMode, err := parseBoolEnv("NILM_MOCK_MODE", true)
	if err != nil {
		return ClientConfig{}, err
	}

	timeout, err := parseDurationEnv("NILM_CHAT_TIMEOUT", 10*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	latency, err := parseDurationEnv("NILM_MOCK_LATENCY", 800*time.Millisecond)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		BaseURL:     strings.TrimRight(getEnvOrDefault("NILM_API_BASE_URL", "http://localhost:8000"), "/"),
		MockMode:    mockMode,
		Timeout:     timeout,
		MockLatency: latency,
	}, nil
}

// DashboardConfig 描述仪表盘轮询行为。
type DashboardConfig struct {
	PollInterval    time.Duration `validate:"gt=0"`
	RefreshInterval time.Duration `validate:"gt=0"`
	Fallback        bool
}

func loadDashboardConfig() (DashboardConfig, error) {
	poll, err := parseDurationEnv("NILM_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return DashboardConfig{}, err
	}

	refresh, err := parseDurationEnv("NILM_REFRESH_INTERVAL", 2*time.Second)
	if err != nil {
		return DashboardConfig{}, err
	}

	fallback, err := parseBoolEnv("NILM_DASHBOARD_FALLBACK", true)
	if err != nil {
		return DashboardConfig{}, err
	}

	return DashboardConfig{PollInterval: poll, RefreshInterval: refresh, Fallback: fallback}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64 `validate:"omitempty,gte=0,lte=2"`
	TopP         *float64 `validate:"omitempty,gte=0,lte=1"`
	MaxTokens    *int     `validate:"omitempty,gt=0"`
	HistoryLimit int      `validate:"gte=0"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 5
	if override, err := parseOptionalIntEnv("NILM_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 0)
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseListEnv 按逗号切分，忽略空项。
func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, oops.In("config").With("key", key).Wrapf(err, "invalid %s value %q", key, raw)
	}
	return val, nil
}

// parseDurationEnv 接受 "10s" 这类写法，也接受纯数字（按毫秒计）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, oops.In("config").With("key", key).Wrapf(err, "invalid %s value %q", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, oops.In("config").With("key", key).Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, oops.In("config").With("key", key).Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}
