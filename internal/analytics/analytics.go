package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/storage"
)

// DailyStats summarizes one day of the transcript log.
type DailyStats struct {
	Date            string                  `json:"date"`
	TotalMessages   int                     `json:"total_messages"`
	UserMessages    int                     `json:"user_messages"`
	BotMessages     int                     `json:"bot_messages"`
	GatewayFailures int                     `json:"gateway_failures"`
	UniqueSessions  int                     `json:"unique_sessions"`
	SessionStats    map[string]SessionStats `json:"session_stats"`
}

type SessionStats struct {
	SessionID       string `json:"session_id"`
	UserMessages    int    `json:"user_messages"`
	BotMessages     int    `json:"bot_messages"`
	GatewayFailures int    `json:"gateway_failures"`
}

// AnalyzeDailyLogs counts events whose timestamp falls on targetDate in
// targetDate's location. Events without a session (proxy records) are skipped.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		SessionStats: make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.SessionID == "" {
			continue
		}

		ss, ok := stats.SessionStats[event.SessionID]
		if !ok {
			ss = SessionStats{SessionID: event.SessionID}
		}
		stats.TotalMessages++
		if history.Sender(event.Sender) == history.SenderBot {
			stats.BotMessages++
			ss.BotMessages++
			if event.Text == session.FailureText {
				stats.GatewayFailures++
				ss.GatewayFailures++
			}
		} else {
			stats.UserMessages++
			ss.UserMessages++
		}
		stats.SessionStats[event.SessionID] = ss
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// GenerateReportSummary renders a plain-text report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat activity for %s:\n\n", ds.Date)
	fmt.Fprintf(&b, "- Messages: %d (user %d, bot %d)\n", ds.TotalMessages, ds.UserMessages, ds.BotMessages)
	fmt.Fprintf(&b, "- Sessions: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&b, "- Gateway failures: %d\n", ds.GatewayFailures)

	if len(ds.SessionStats) == 0 {
		return b.String()
	}

	ids := make([]string, 0, len(ds.SessionStats))
	for id := range ds.SessionStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("\nPer session:\n")
	for _, id := range ids {
		ss := ds.SessionStats[id]
		fmt.Fprintf(&b, "- %s: %d user, %d bot", id, ss.UserMessages, ss.BotMessages)
		if ss.GatewayFailures > 0 {
			fmt.Fprintf(&b, ", %d failed", ss.GatewayFailures)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
