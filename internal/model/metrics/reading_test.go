package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTHDTiers(t *testing.T) {
	cases := []struct {
		thd  float64
		want THDLevel
	}{
		{0, THDLow},
		{2.1, THDLow},
		{4.99, THDLow},
		{5, THDModerate},
		{9.9, THDModerate},
		{10, THDHigh},
		{18.4, THDHigh},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyTHD(tc.thd), "thd=%v", tc.thd)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{
		{ID: "1", LoadType: "Incandescent Bulb", Power: 60, THD: 2.1, Timestamp: now},
		{ID: "2", LoadType: "LED Driver", Power: 12, THD: 18.4, Timestamp: now.Add(time.Second)},
		{ID: "3", LoadType: "CFL Bulb", Power: 20, THD: 12.7, Timestamp: now},
	}

	summary := Summarize(readings, now)

	assert.Equal(t, 3, summary.TotalDevices)
	assert.InDelta(t, 92.0, summary.TotalPower, 1e-9)
	assert.InDelta(t, 11.0667, summary.AvgTHD, 1e-3)
	assert.Equal(t, now.Add(time.Second), summary.Timestamp)
}

func TestSummarizeEmpty(t *testing.T) {
	now := time.Now()
	summary := Summarize(nil, now)

	assert.Zero(t, summary.TotalDevices)
	assert.Zero(t, summary.TotalPower)
	assert.Equal(t, now, summary.Timestamp)
}
