package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/stellarlinkco/cordkit/internal/bus"
	"github.com/stellarlinkco/cordkit/internal/command"
	"github.com/stellarlinkco/cordkit/internal/config"
)

var logger = log.WithPrefix("channel-mgr")

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

// NewChannelManager builds the channels enabled in cfg. api is required
// when the platform channel is enabled.
func NewChannelManager(cfg *config.Config, b *bus.MessageBus, api PlatformAPI) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Channels.Platform.Enabled {
		ch, err := NewPlatformChannel(cfg, api, b)
		if err != nil {
			return nil, fmt.Errorf("init platform channel: %w", err)
		}
		m.Register(ch)
	}

	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.Register(ch)
	}

	return m, nil
}

// Register adds ch and routes its outbound messages to it.
func (m *ChannelManager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			logger.Error("send failed", "channel", ch.Name(), "err", err)
		}
	})
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			logger.Info("starting", "channel", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// StopAll stops every channel, even after a failure, and returns the
// joined stop errors.
func (m *ChannelManager) StopAll() error {
	var errs []error
	for name, ch := range m.channels {
		logger.Info("stopping", "channel", name)
		if err := ch.Stop(); err != nil {
			logger.Error("stop failed", "channel", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MirrorCommands hands the compiled tree to every channel that publishes
// its own command menu. Failures are joined; one channel does not stop
// the others.
func (m *ChannelManager) MirrorCommands(ctx context.Context, options []command.Option) error {
	var errs []error
	for _, name := range m.EnabledChannels() {
		mirror, ok := m.channels[name].(CommandMirror)
		if !ok {
			continue
		}
		if err := mirror.MirrorCommands(ctx, options); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
