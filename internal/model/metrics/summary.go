package metrics

import "time"

// Summary aggregates one snapshot of readings.
type Summary struct {
	TotalDevices int       `json:"total_devices"`
	TotalPower   float64   `json:"total_power"`
	AvgTHD       float64   `json:"avg_thd"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summarize computes totals over readings. Devices are counted by distinct load type.
// An empty snapshot yields zero values stamped with now.
func Summarize(readings []Reading, now time.Time) Summary {
	if len(readings) == 0 {
		return Summary{Timestamp: now}
	}

	loads := make(map[string]struct{}, len(readings))
	var (
		totalPower float64
		totalTHD   float64
		latest     time.Time
	)
	for _, r := range readings {
		loads[r.LoadType] = struct{}{}
		totalPower += r.Power
		totalTHD += r.THD
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	if latest.IsZero() {
		latest = now
	}

	return Summary{
		TotalDevices: len(loads),
		TotalPower:   totalPower,
		AvgTHD:       totalTHD / float64(len(readings)),
		Timestamp:    latest,
	}
}
