package dispatch

import (
	"log/slog"
	"time"

	"bandwatch/internal/alerts"
	"bandwatch/internal/metrics"
	"bandwatch/internal/model"
)

type Summary struct {
	Success int `json:"success"`
	Total   int `json:"total"`
}

func Summarize(results []model.ChannelResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Success++
		}
	}
	return s
}

// Aggregator turns the channel results of one task into a summary log line.
// Nothing is written back to the alert event.
type Aggregator struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	recent  *alerts.Store
	now     func() time.Time
}

func NewAggregator(logger *slog.Logger, m *metrics.Metrics, recent *alerts.Store) *Aggregator {
	return &Aggregator{logger: logger, metrics: m, recent: recent, now: time.Now}
}

func (a *Aggregator) Record(ev model.AlertEvent, results []model.ChannelResult) Summary {
	s := Summarize(results)
	for _, r := range results {
		a.metrics.ChannelSend(r)
	}
	a.metrics.Delivered(s.Success, s.Total)
	if a.logger != nil {
		a.logger.Info("notifications delivered",
			"event_id", ev.ID,
			"rule_id", ev.RuleID,
			"success", s.Success,
			"total", s.Total,
		)
	}
	a.recent.Add(model.DeliverySummary{
		Timestamp: a.now().UTC(),
		EventID:   ev.ID,
		RuleID:    ev.RuleID,
		Kind:      ev.Kind,
		Success:   s.Success,
		Total:     s.Total,
		Results:   results,
	})
	return s
}
