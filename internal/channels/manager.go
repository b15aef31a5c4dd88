package channels

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/config"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// Manager owns all enabled channels and routes outbound messages from the
// hub to whichever channel registered that name.
type Manager struct {
	hub      *bus.Hub
	channels map[bus.Channel]schema.Channel
}

// NewManager creates a Manager and initialises every channel cfg has
// credentials for. The CLI channel is always registered.
func NewManager(cfg *config.Config, hub *bus.Hub) *Manager {
	m := &Manager{hub: hub, channels: make(map[bus.Channel]schema.Channel)}

	m.add(NewCLIChannel(hub))

	if cfg.TelegramBotToken != "" {
		m.add(NewTelegramChannel(cfg.TelegramBotToken, allowFromStrings(cfg.AllowFrom), hub))
	}
	if cfg.SlackBotToken != "" && cfg.SlackAppToken != "" {
		m.add(NewSlackChannel(cfg.SlackBotToken, cfg.SlackAppToken, hub))
	}
	if cfg.WSListenAddr != "" {
		m.add(NewWSChannel(cfg.WSListenAddr, hub))
	}

	return m
}

func (m *Manager) add(ch schema.Channel) {
	hubCh := bus.Channel(ch.Name())
	m.channels[hubCh] = ch
	m.hub.RegisterChannel(hubCh)
	slog.Info("channel enabled", "name", ch.Name())
}

// EnabledChannels returns the names of all enabled channels.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, string(n))
	}
	return names
}

// StartAll starts every channel and its outbound dispatcher loop, blocking
// until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		go m.dispatchOutbound(ctx, name, ch)
		go func(n bus.Channel, c schema.Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound drains one channel's outbound queue and hands each
// message to that channel's Send method.
func (m *Manager) dispatchOutbound(ctx context.Context, name bus.Channel, ch schema.Channel) {
	queue := m.hub.RegisterChannel(name)
	for {
		select {
		case msg := <-queue:
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", name, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func allowFromStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
