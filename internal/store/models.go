package store

import "time"

// ProbeRecord is one recorded quality measurement for a mirror.
// LatencyMs is -1 when the ICMP probe timed out; SpeedBps is 0 when the
// download probe could not be completed.
type ProbeRecord struct {
	ID        int64
	URL       string
	Region    string
	LatencyMs float64
	SpeedBps  float64
	ProbedAt  time.Time
}
