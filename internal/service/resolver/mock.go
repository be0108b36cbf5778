package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
)

// DefaultMockLatency simulates the round trip of the real endpoint.
const DefaultMockLatency = 800 * time.Millisecond

type keywordGroup struct {
	name     string
	keywords []string
	reply    string
}

// keywordGroups is matched in order; the first group with a hit wins.
var keywordGroups = []keywordGroup{
	{
		name:     "thd",
		keywords: []string{"thd", "harmonic distortion"},
		reply: "I've analyzed your electrical data and found varying THD values:\n\n" +
			"- LED Driver: 18.4% (High) - This non-linear load is causing power quality issues\n" +
			"- CFL Bulb: 12.7% (Moderate) - Common for compact fluorescent lights\n" +
			"- Incandescent Bulb: 2.1% (Low) - Linear resistive loads typically have low THD\n\n" +
			"High THD can lead to overheating in neutral conductors and reduced efficiency. Would you like recommendations for reducing THD?",
	},
	{
		name:     "devices",
		keywords: []string{"device", "running", "active"},
		reply: "Currently active devices:\n\n" +
			"1. **Incandescent Bulb**: 60W (50% of total consumption)\n" +
			"2. **LED Driver**: 12W (10% of total consumption)\n" +
			"3. **CFL Bulb**: 20W (17% of total consumption)\n\n" +
			"Total power consumption: 92W",
	},
	{
		name:     "power",
		keywords: []string{"power", "consumption", "usage"},
		reply: "Power consumption breakdown:\n\n" +
			"- Current total: 92W\n" +
			"- Daily average: 1.2kWh\n" +
			"- Weekly trend: 8% decrease\n\n" +
			"Your most energy-intensive device is the incandescent bulb (60W). Replacing it with an LED equivalent (9W) could reduce your consumption by approximately 51W.",
	},
	{
		name:     "cfl",
		keywords: []string{"cfl", "fluorescent"},
		reply: "I've detected a CFL bulb in your circuit:\n\n" +
			"- Power: 20W\n" +
			"- Current: 0.18A\n" +
			"- THD: 12.7%\n\n" +
			"Compact Fluorescent Lamps typically have a moderate THD due to their electronic ballasts. This is within normal range, though slightly higher than ideal. CFLs consume about 75% less energy than incandescent bulbs but contain small amounts of mercury, so proper disposal is important.",
	},
	{
		name:     "led",
		keywords: []string{"led"},
		reply: "LED driver analysis:\n\n" +
			"- Power: 12W\n" +
			"- Current: 0.12A\n" +
			"- THD: 18.4% (Higher than ideal)\n\n" +
			"The high THD indicates this is likely a lower-quality LED driver. Premium LED drivers typically maintain THD below 10%. High THD can cause power quality issues in your electrical system. Consider using LED drivers with power factor correction for better performance.",
	},
	{
		name:     "help",
		keywords: []string{"help", "capabilities", "what can you do"},
		reply: "I can help you understand your electrical usage by analyzing NILM (Non-Intrusive Load Monitoring) data. Here's what you can ask me about:\n\n" +
			"- **Device identification**: What devices are currently running?\n" +
			"- **Power consumption**: How much power am I using right now?\n" +
			"- **Specific devices**: Tell me about my LED lights or CFL bulbs\n" +
			"- **Power quality**: What's my THD (Total Harmonic Distortion)?\n" +
			"- **Recommendations**: How can I reduce my energy consumption?\n\n" +
			"Feel free to ask me anything about your electrical usage!",
	},
}

// FallbackReply answers utterances that match no keyword group.
const FallbackReply = "I'm your NILM Chat Agent, analyzing your electrical load data. I notice you have three active devices: an incandescent bulb (60W), a CFL bulb (20W), and an LED driver (12W). How can I help you understand your electrical usage better today?"

// MockResolver answers from canned replies keyed on keywords.
type MockResolver struct {
	latency time.Duration
}

// NewMockResolver returns a mock with the given simulated latency. Zero disables the delay.
func NewMockResolver(latency time.Duration) *MockResolver {
	if latency < 0 {
		latency = 0
	}
	return &MockResolver{latency: latency}
}

// Resolve waits for the simulated latency and returns the canned reply.
func (m *MockResolver) Resolve(ctx context.Context, utterance string) (string, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", networkError(ctx.Err().Error(), 0, ctx.Err())
		case <-timer.C:
		}
	}

	return MockReply(utterance), nil
}

// MockReply is the synchronous keyword match behind MockResolver.
func MockReply(utterance string) string {
	_, reply := matchGroup(utterance)
	return reply
}

func matchGroup(utterance string) (string, string) {
	normalized := strings.ToLower(utterance)
	for _, group := range keywordGroups {
		for _, keyword := range group.keywords {
			if strings.Contains(normalized, keyword) {
				return group.name, group.reply
			}
		}
	}
	return "fallback", FallbackReply
}

// MockReadings returns the fixed three-load snapshot stamped with now.
func MockReadings(now time.Time) []metrics.Reading {
	return []metrics.Reading{
		{ID: "1", LoadType: "Incandescent Bulb", Voltage: 120, Current: 0.5, Power: 60, THD: 2.1, Timestamp: now},
		{ID: "2", LoadType: "LED Driver", Voltage: 120, Current: 0.12, Power: 12, THD: 18.4, Timestamp: now},
		{ID: "3", LoadType: "CFL Bulb", Voltage: 120, Current: 0.18, Power: 20, THD: 12.7, Timestamp: now},
	}
}
