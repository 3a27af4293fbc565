// Package progress defines the point-in-time reading emitted by a transfer and
// the helpers that turn it into display strings.
package progress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Snapshot is a single progress reading for one transfer.
// A BytesTotal of zero means the total size is unknown.
// Immutable
type Snapshot struct {
	BytesReady int64   `json:"bytes_ready"`
	BytesTotal int64   `json:"bytes_total"`
	SpeedRate  float64 `json:"speed_rate"`
	Elapsed    float64 `json:"elapsed"`
}

// Percent returns floor(ready/total*100), or 0 when the total is unknown.
func (s Snapshot) Percent() int {
	if s.BytesTotal <= 0 {
		return 0
	}
	return int(s.BytesReady * 100 / s.BytesTotal)
}

// Fraction returns the completed fraction in [0, 1] for progress bars.
func (s Snapshot) Fraction() float64 {
	return float64(s.Percent()) / 100
}

// Amount renders "ready / total", or just "ready" when the total is unknown.
func (s Snapshot) Amount() string {
	if s.BytesTotal > 0 {
		return fmt.Sprintf("%s / %s", Bytes(s.BytesReady), Bytes(s.BytesTotal))
	}
	return Bytes(s.BytesReady)
}

// Rate renders "speed | elapsed". Parts that are not yet known are left out.
func (s Snapshot) Rate() string {
	var parts []string
	if s.SpeedRate > 0 {
		parts = append(parts, Speed(s.SpeedRate))
	}
	if s.Elapsed > 0 {
		parts = append(parts, Elapsed(s.Elapsed))
	}
	return strings.Join(parts, " | ")
}

// Bytes formats a byte count using SI units.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Speed formats a transfer rate in bytes per second.
func Speed(rate float64) string {
	if rate <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(rate)) + "/s"
}

// Elapsed formats seconds as mm:ss, or hh:mm:ss past the first hour.
func Elapsed(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
