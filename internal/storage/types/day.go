package types

import "time"

// ISOLayout renders instants the way the HTTP API reports them:
// UTC, millisecond precision, "Z" suffix.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// PowerName is the series name of derived power points.
const PowerName = "Power"

// FormatISO renders unix seconds as an ISO-8601 UTC timestamp.
func FormatISO(unixSec int64) string {
	return time.Unix(unixSec, 0).UTC().Format(ISOLayout)
}

// DayStart truncates a unix timestamp to 00:00:00 UTC of its calendar day.
func DayStart(unixSec int64) time.Time {
	t := time.Unix(unixSec, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey returns the ISO-8601 rendering of the day bucket containing unixSec.
func DayKey(unixSec int64) string {
	return DayStart(unixSec).Format(ISOLayout)
}

// PowerPoint is the product of same-day average current and average voltage.
type PowerPoint struct {
	Time  string `json:"time"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DaySummary holds statistics for one channel over one UTC day.
type DaySummary struct {
	Day     string  `json:"day"`
	Channel Channel `json:"channel"`
	Count   int64   `json:"count"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`

	// First and last reading times of the day
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`

	// Percentiles (nil if disabled)
	P50 *float64 `json:"p50,omitempty"`
	P95 *float64 `json:"p95,omitempty"`
	P99 *float64 `json:"p99,omitempty"`
}

// HasPercentiles returns true if percentile data is available.
func (s *DaySummary) HasPercentiles() bool {
	return s.P50 != nil
}

// SetPercentiles sets all percentile values.
func (s *DaySummary) SetPercentiles(p50, p95, p99 float64) {
	s.P50 = &p50
	s.P95 = &p95
	s.P99 = &p99
}
