package rag

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/payscope/payscope/pkg/model"
)

// defaultWindow is the retrieval window used when a query omits time_range.
const defaultWindow = 30 * 24 * time.Hour

// ParseTimeRange parses the API's `time_range` string (e.g. "7d", "24h",
// "2w") into an absolute window ending at now. An empty string falls back
// to defaultWindow.
func ParseTimeRange(raw string, now time.Time) (model.TimeRange, error) {
	now = now.UTC()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.TimeRange{From: now.Add(-defaultWindow), To: now}, nil
	}

	unit := raw[len(raw)-1]
	numPart := raw[:len(raw)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return model.TimeRange{}, fmt.Errorf("rag: invalid time_range %q", raw)
	}

	var d time.Duration
	switch unit {
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'w':
		d = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return model.TimeRange{}, fmt.Errorf("rag: invalid time_range unit in %q", raw)
	}

	return model.TimeRange{From: now.Add(-d), To: now}, nil
}
