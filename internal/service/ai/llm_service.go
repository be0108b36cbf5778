// Package ai answers chat messages with an Ark model, grounding the system
// prompt in the current electrical readings.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/nilm-chat/backend/internal/config"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

const systemPromptTemplate = `You are an assistant specializing in electrical power monitoring and Non-Intrusive Load Monitoring (NILM).
Your task is to help users understand their electrical usage data and provide insights about their devices.

Current electrical data from the NILM system:
%s

When answering questions about:
- Power consumption: Reference the data above to explain which devices are using the most electricity.
- THD (Total Harmonic Distortion): Low THD (<5%%) generally indicates clean power consumption (like resistive loads). Moderate THD (5-10%%) is typical for many electronic devices. High THD (>10%%) could indicate switch-mode power supplies or devices with poor power quality.
- Power Factor: Close to 1.0 is ideal (efficient energy transfer). Lower values (0.5-0.8) indicate reactive power that doesn't do useful work. Very low values (<0.5) might indicate issues worth addressing.
- Device types: Resistive loads (heaters, incandescent lights) typically have low THD and high power factor. Electronic devices (computers, TVs) often have moderate to high THD. Motor-driven appliances (refrigerators, fans) may have lower power factors.

Be helpful, accurate, and educational about electrical concepts while keeping explanations simple and clear.
`

// ReadingSource supplies the readings quoted in the system prompt.
type ReadingSource interface {
	Fetch(ctx context.Context) ([]metrics.Reading, error)
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	readings     ReadingSource
	historyLimit int
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, readings ReadingSource, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newService(ctx, chatModel, readings, cfg.HistoryLimit)
}

func newService(ctx context.Context, chatModel model.BaseChatModel, readings ReadingSource, historyLimit int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:        runnable,
		readings:     readings,
		historyLimit: historyLimit,
	}, nil
}

// GenerateResponse answers userMessage given the prior transcript.
func (s *Service) GenerateResponse(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (string, error) {
	input := s.buildChainInput(ctx, history, userMessage)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Infow("ai response generated", "session", sessionID, "length", len(response.Content))
	return response.Content, nil
}

func (s *Service) buildChainInput(ctx context.Context, history []chat.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.buildSystemPrompt(ctx),
		"history": buildHistoryMessages(history, userMessage, s.historyLimit),
		"query":   userMessage,
	}
}

func (s *Service) buildSystemPrompt(ctx context.Context) string {
	return fmt.Sprintf(systemPromptTemplate, metricsContext(ctx, s.readings))
}

// metricsContext renders the summary of the current readings as JSON. A failing
// source degrades to an empty summary rather than failing the answer.
func metricsContext(ctx context.Context, source ReadingSource) string {
	var readings []metrics.Reading
	if source != nil {
		fetched, err := source.Fetch(ctx)
		if err != nil {
			log.Warnw("failed to load readings for prompt", "error", err)
		} else {
			readings = fetched
		}
	}

	payload := struct {
		metrics.Summary
		Devices []metrics.Reading `json:"devices"`
	}{
		Summary: metrics.Summarize(readings, time.Now().UTC()),
		Devices: readings,
	}
	if payload.Devices == nil {
		payload.Devices = []metrics.Reading{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// buildHistoryMessages keeps the last limit turns. The current message is sent
// separately, so a trailing copy of it in the transcript is dropped.
func buildHistoryMessages(messages []chat.Message, userMessage string, limit int) []*schema.Message {
	if n := len(messages); n > 0 {
		last := messages[n-1]
		if last.Role == chat.RoleUser && strings.TrimSpace(last.Content) == strings.TrimSpace(userMessage) {
			messages = messages[:n-1]
		}
	}

	if len(messages) == 0 || limit <= 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
