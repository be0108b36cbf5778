package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
)

type recordingModel struct {
	lastInput []*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.lastInput = input
	return schema.AssistantMessage("Your LED driver has high THD.", nil), nil
}

func (m *recordingModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.lastInput = input
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("streamed", nil)}), nil
}

type staticReadings struct {
	readings []metrics.Reading
	err      error
}

func (s staticReadings) Fetch(context.Context) ([]metrics.Reading, error) {
	return s.readings, s.err
}

func transcript(contents ...string) []chat.Message {
	messages := make([]chat.Message, 0, len(contents))
	for i, content := range contents {
		role := chat.RoleUser
		if i%2 == 0 {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Content: content, Role: role})
	}
	return messages
}

func TestBuildHistoryMessagesLimitsTurns(t *testing.T) {
	history := buildHistoryMessages(transcript("hi", "q1", "a1", "q2", "a2"), "q3", 3)

	require.Len(t, history, 3)
	assert.Equal(t, schema.Assistant, history[0].Role)
	assert.Equal(t, "a1", history[0].Content)
	assert.Equal(t, "a2", history[2].Content)
}

func TestBuildHistoryMessagesDropsTrailingCurrentMessage(t *testing.T) {
	history := buildHistoryMessages(transcript("hi", "what is THD?"), "what is THD?", 5)

	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestBuildHistoryMessagesZeroLimit(t *testing.T) {
	assert.Nil(t, buildHistoryMessages(transcript("hi", "q1"), "q2", 0))
}

func TestMetricsContextIncludesSummary(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	source := staticReadings{readings: []metrics.Reading{
		{ID: "1", LoadType: "Heater", Power: 1000, THD: 1.5, Timestamp: now},
	}}

	rendered := metricsContext(context.Background(), source)

	assert.Contains(t, rendered, `"total_devices":1`)
	assert.Contains(t, rendered, `"total_power":1000`)
	assert.Contains(t, rendered, `"loadType":"Heater"`)
}

func TestMetricsContextSurvivesSourceFailure(t *testing.T) {
	rendered := metricsContext(context.Background(), staticReadings{err: errors.New("down")})

	assert.Contains(t, rendered, `"total_devices":0`)
	assert.Contains(t, rendered, `"devices":[]`)
}

func TestGenerateResponseRunsChain(t *testing.T) {
	fake := &recordingModel{}
	svc, err := newService(context.Background(), fake, staticReadings{}, 5)
	require.NoError(t, err)

	reply, err := svc.GenerateResponse(context.Background(), "s1", transcript("hi", "q1", "a1"), "tell me about my LED")
	require.NoError(t, err)
	assert.Equal(t, "Your LED driver has high THD.", reply)

	require.Len(t, fake.lastInput, 5)
	assert.Equal(t, schema.System, fake.lastInput[0].Role)
	assert.Contains(t, fake.lastInput[0].Content, "Non-Intrusive Load Monitoring")
	assert.Contains(t, fake.lastInput[0].Content, "Low THD (<5%)")
	assert.Equal(t, schema.User, fake.lastInput[4].Role)
	assert.Equal(t, "tell me about my LED", fake.lastInput[4].Content)
}
