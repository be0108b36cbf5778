package metrics

import "time"

// Reading is one detected load as reported by the NILM data source.
type Reading struct {
	ID        string    `json:"id"`
	LoadType  string    `json:"loadType"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	THD       float64   `json:"thd"`
	Timestamp time.Time `json:"timestamp"`
}

// THDLevel buckets a total harmonic distortion percentage.
type THDLevel string

const (
	THDLow      THDLevel = "low"
	THDModerate THDLevel = "moderate"
	THDHigh     THDLevel = "high"
)

// ClassifyTHD maps a THD percentage onto the three dashboard tiers.
func ClassifyTHD(thd float64) THDLevel {
	switch {
	case thd < 5:
		return THDLow
	case thd < 10:
		return THDModerate
	default:
		return THDHigh
	}
}
