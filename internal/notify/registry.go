package notify

import (
	"log/slog"
	"sync"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

// Registry resolves channel kinds to channel instances. Reload swaps the
// whole set so a send in flight keeps the channel it started with.
type Registry struct {
	mu       sync.RWMutex
	channels map[model.ChannelKind]Channel
	logger   *slog.Logger
}

func NewRegistry(cfg config.NotificationsConfig, logger *slog.Logger) *Registry {
	r := &Registry{logger: logger}
	r.Reload(cfg)
	return r
}

// NewRegistryWith builds a registry from ready-made channels.
func NewRegistryWith(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[model.ChannelKind]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Kind()] = ch
	}
	return r
}

func Build(cfg config.NotificationsConfig) []Channel {
	return []Channel{
		NewPageChannel(),
		NewEmailChannel(cfg.Email),
		NewWebhookChannel(cfg.Webhook),
		NewTelegramChannel(cfg.Telegram),
		NewWeComChannel(cfg.WeCom),
		NewDingTalkChannel(cfg.DingTalk),
	}
}

func (r *Registry) Reload(cfg config.NotificationsConfig) {
	channels := make(map[model.ChannelKind]Channel, len(model.AllChannels))
	for _, ch := range Build(cfg) {
		channels[ch.Kind()] = ch
		if r.logger == nil {
			continue
		}
		if err := ch.Validate(); err != nil {
			r.logger.Debug("notification channel unavailable", "channel", ch.Kind(), "reason", err.Error())
		} else {
			r.logger.Info("notification channel ready", "channel", ch.Kind())
		}
	}
	r.mu.Lock()
	r.channels = channels
	r.mu.Unlock()
}

func (r *Registry) Get(kind model.ChannelKind) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[kind]
	return ch, ok
}

// Kinds lists the registered kinds in canonical order.
func (r *Registry) Kinds() []model.ChannelKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ChannelKind, 0, len(r.channels))
	for _, k := range model.AllChannels {
		if _, ok := r.channels[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Enabled lists the kinds whose configuration is complete.
func (r *Registry) Enabled() []model.ChannelKind {
	var out []model.ChannelKind
	for _, k := range r.Kinds() {
		if ch, ok := r.Get(k); ok && ch.Validate() == nil {
			out = append(out, k)
		}
	}
	return out
}
