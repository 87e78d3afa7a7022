package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"bandwatch/internal/config"
	"bandwatch/internal/logging"
	"bandwatch/internal/metrics"
	"bandwatch/internal/model"
)

type Store interface {
	ListEnabledRules(ctx context.Context) ([]model.AlertRule, error)
	CreateEvent(ctx context.Context, ev model.NewEvent) (int64, error)
	FindOpenEvent(ctx context.Context, ruleID int64, entityID string, since time.Time) (*model.AlertEvent, error)
}

type Enqueuer interface {
	Enqueue(task model.DispatchTask) bool
}

// Evaluator checks alert rules against telemetry snapshots. It keeps no
// state between calls: suppression is decided from the event store alone.
type Evaluator struct {
	store   Store
	queue   Enqueuer
	logger  *slog.Logger
	metrics *metrics.Metrics
	window  time.Duration
	now     func() time.Time
}

func NewEvaluator(store Store, queue Enqueuer, logger *slog.Logger, m *metrics.Metrics, window time.Duration) *Evaluator {
	if logger == nil {
		logger = logging.Discard()
	}
	if window <= 0 {
		window = config.DefaultSuppressionWindow
	}
	return &Evaluator{
		store:   store,
		queue:   queue,
		logger:  logger,
		metrics: m,
		window:  window,
		now:     time.Now,
	}
}

// trigger is one (rule, entity) pair whose condition holds.
type trigger struct {
	entityID string
	message  string
}

// Cycle loads the enabled rules and evaluates them against snap.
func (e *Evaluator) Cycle(ctx context.Context, snap model.Snapshot) int {
	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		e.logger.Error("list enabled rules failed, skipping cycle", "err", err)
		return 0
	}
	return e.Evaluate(ctx, snap, rules)
}

// Evaluate runs every rule in its own fault boundary and returns the number
// of alert events created.
func (e *Evaluator) Evaluate(ctx context.Context, snap model.Snapshot, rules []model.AlertRule) int {
	now := e.now().UTC()
	created := 0
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		n, err := e.evaluateRule(ctx, now, snap, rule)
		created += n
		if err != nil {
			e.metrics.EvaluationFailed(rule.Kind)
			e.logger.Error("rule evaluation failed",
				"rule_id", rule.ID,
				"rule", rule.Name,
				"kind", rule.Kind,
				"err", err,
			)
		}
	}
	return created
}

func (e *Evaluator) evaluateRule(ctx context.Context, now time.Time, snap model.Snapshot, rule model.AlertRule) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	severity, err := model.ParseSeverity(string(rule.Severity))
	if err != nil {
		return 0, err
	}
	rule.Severity = severity
	var triggers []trigger
	switch rule.Kind {
	case model.KindTrafficThreshold:
		triggers, err = trafficTriggers(rule, snap)
	case model.KindDeviceOffline:
		triggers, err = offlineTriggers(rule, snap, now)
	default:
		err = fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, t := range triggers {
		ok, err := e.fire(ctx, now, rule, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// fire records an event for t unless one is already open inside the
// suppression window, then hands it to the dispatcher.
func (e *Evaluator) fire(ctx context.Context, now time.Time, rule model.AlertRule, t trigger) (bool, error) {
	open, err := e.store.FindOpenEvent(ctx, rule.ID, t.entityID, now.Add(-e.window))
	if err != nil {
		return false, fmt.Errorf("find open event: %w", err)
	}
	if open != nil {
		return false, nil
	}
	id, err := e.store.CreateEvent(ctx, model.NewEvent{
		RuleID:      rule.ID,
		Kind:        rule.Kind,
		Message:     t.message,
		Severity:    rule.Severity,
		EntityID:    t.entityID,
		TriggeredAt: now,
	})
	if err != nil {
		return false, err
	}
	e.metrics.EventCreated(rule.Kind)
	e.logger.Warn("alert triggered",
		"rule_id", rule.ID,
		"event_id", id,
		"kind", rule.Kind,
		"entity_id", t.entityID,
		"severity", rule.Severity,
	)
	// a full queue is the dispatcher's to report
	e.queue.Enqueue(model.DispatchTask{EventID: id, Channels: rule.Channels()})
	return true, nil
}

func trafficTriggers(rule model.AlertRule, snap model.Snapshot) ([]trigger, error) {
	threshold := rule.ThresholdBytesPerSec
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold_bytes_per_sec must be > 0, got %d", threshold)
	}
	if rule.AllEntities() {
		rate := snap.Total.Sum()
		if rate < threshold {
			return nil, nil
		}
		return []trigger{{
			message: fmt.Sprintf("network traffic above threshold: %s >= %s", formatRate(rate), formatRate(threshold)),
		}}, nil
	}
	ent, ok := snap.Entity(rule.EntityID)
	if !ok {
		// not in this snapshot: quiet, and offline rules cover silence
		return nil, nil
	}
	rate := ent.Sum()
	if rate < threshold {
		return nil, nil
	}
	return []trigger{{
		entityID: ent.ID,
		message: fmt.Sprintf("device %s traffic above threshold: %s >= %s",
			ent.DisplayName(), formatRate(rate), formatRate(threshold)),
	}}, nil
}

func offlineTriggers(rule model.AlertRule, snap model.Snapshot, now time.Time) ([]trigger, error) {
	minutes := rule.OfflineThresholdMinutes
	if minutes <= 0 {
		return nil, fmt.Errorf("offline_threshold_minutes must be > 0, got %d", minutes)
	}
	limit := time.Duration(minutes) * time.Minute
	var out []trigger
	for _, ent := range snap.Entities {
		if !rule.AllEntities() && ent.ID != rule.EntityID {
			continue
		}
		if ent.LastSeen.IsZero() {
			continue
		}
		if now.Sub(ent.LastSeen) < limit {
			continue
		}
		out = append(out, trigger{
			entityID: ent.ID,
			message: fmt.Sprintf("device %s offline for more than %d minutes (last seen: %s)",
				ent.DisplayName(), minutes, ent.LastSeen.UTC().Format("2006-01-02 15:04:05 MST")),
		})
	}
	return out, nil
}

func formatRate(bytesPerSec int64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}
