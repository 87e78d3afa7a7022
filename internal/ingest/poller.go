package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bandwatch/internal/config"
	"bandwatch/internal/logging"
	"bandwatch/internal/model"
)

const monitorPath = "/api/monitor"

// Poller fetches the monitor endpoint on a fixed interval.
type Poller struct {
	client   *http.Client
	url      string
	apiKey   string
	interval time.Duration
	tracker  *Tracker
	handle   Handler
	logger   *slog.Logger
	now      func() time.Time
}

func NewPoller(cfg config.CollectorConfig, tracker *Tracker, handle Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.Discard()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultCollectInterval
	}
	return &Poller{
		client:   &http.Client{Timeout: timeout},
		url:      strings.TrimRight(cfg.BaseURL, "/") + monitorPath,
		apiKey:   cfg.APIKey,
		interval: interval,
		tracker:  tracker,
		handle:   handle,
		logger:   logger,
		now:      time.Now,
	}
}

// Poll performs one fetch and returns the resulting snapshot without
// calling the handler.
func (p *Poller) Poll(ctx context.Context) (model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return model.Snapshot{}, err
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return model.Snapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, fmt.Errorf("monitor returned status %d", resp.StatusCode)
	}
	reading, err := DecodeResponse(body)
	if err != nil {
		return model.Snapshot{}, err
	}
	return p.tracker.Observe(p.now(), reading), nil
}

// Run polls until ctx is done. Failed polls back off exponentially up to
// 30s; the first success resets the delay.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("monitor poller started", "url", p.url, "interval", p.interval.String())
	defer p.logger.Info("monitor poller stopped")
	var backoff time.Duration
	for {
		snap, err := p.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := p.interval
		if err != nil {
			backoff = nextBackoff(backoff, p.interval)
			wait = backoff
			p.logger.Warn("monitor poll failed", "err", err, "retry_in", wait.String())
		} else {
			backoff = 0
			if p.handle != nil {
				p.handle(ctx, snap)
			}
		}
		if !BackoffSleep(ctx, wait) {
			return
		}
	}
}
