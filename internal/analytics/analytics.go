package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"compliance-copilot/internal/auditlog"
)

// DailyStats is the usage rollup for one day of assistant traffic.
type DailyStats struct {
	Date            string                  `json:"date"`
	TotalTurns      int                     `json:"total_turns"`
	UniqueSessions  int                     `json:"unique_sessions"`
	ToolCallsTotal  int                     `json:"tool_calls_total"`
	ToolCallsByName map[string]int          `json:"tool_calls_by_name"`
	RetriedTurns    int                     `json:"retried_turns"`
	SessionStats    map[string]SessionStats `json:"session_stats"`
}

// SessionStats is per-session activity for the day.
type SessionStats struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	ToolCalls int    `json:"tool_calls"`
}

// AnalyzeDailyLogs rolls up audit events for the given date.
func AnalyzeDailyLogs(events []auditlog.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:            startOfDay.Format("2006-01-02"),
		ToolCallsByName: make(map[string]int),
		SessionStats:    make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalTurns++
		if event.Attempts > 1 {
			stats.RetriedTurns++
		}

		s, ok := stats.SessionStats[event.SessionID]
		if !ok {
			s = SessionStats{SessionID: event.SessionID}
		}
		s.Turns++
		for _, name := range event.ToolCalls {
			stats.ToolCallsTotal++
			stats.ToolCallsByName[name]++
			s.ToolCalls++
		}
		stats.SessionStats[event.SessionID] = s
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// Summary renders a short human-readable report.
func (ds *DailyStats) Summary() string {
	out := fmt.Sprintf("Assistant usage for %s: %d turns across %d sessions, %d tool calls (%d turns needed retries).\n",
		ds.Date, ds.TotalTurns, ds.UniqueSessions, ds.ToolCallsTotal, ds.RetriedTurns)
	for name, count := range ds.ToolCallsByName {
		out += fmt.Sprintf("- %s: %d\n", name, count)
	}
	return out
}

// ToJSON serializes the stats for the API response.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
