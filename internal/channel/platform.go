package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stellarlinkco/cordkit/internal/bus"
	"github.com/stellarlinkco/cordkit/internal/config"
	"github.com/stellarlinkco/cordkit/internal/gateway"
	"github.com/stellarlinkco/cordkit/internal/rest"
)

const (
	platformChannelName = gateway.DefaultChannel
	platformMaxLen      = 2000
	platformSendTimeout = 30 * time.Second
	minBackoff          = time.Second
	maxBackoff          = time.Minute
)

var platformLog = log.WithPrefix("platform")

// PlatformAPI is the REST surface the platform channel uses.
type PlatformAPI interface {
	GetGatewayBot(ctx context.Context) (*rest.GatewayBot, error)
	CreateMessage(ctx context.Context, channelID, content string) (*rest.Message, error)
}

// SessionRunner is one gateway session.
type SessionRunner interface {
	Run(ctx context.Context) error
}

// SessionFactory creates gateway sessions (allows mocking).
type SessionFactory func(opts gateway.Options) (SessionRunner, error)

var defaultSessionFactory SessionFactory = func(opts gateway.Options) (SessionRunner, error) {
	s, err := gateway.NewSession(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PlatformChannel keeps a gateway session alive and answers through the
// REST API.
type PlatformChannel struct {
	BaseChannel
	api     PlatformAPI
	token   string
	gwCfg   config.GatewayConfig
	version int
	factory SessionFactory
	sleep   func(ctx context.Context, d time.Duration) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPlatformChannel(cfg *config.Config, api PlatformAPI, b *bus.MessageBus) (*PlatformChannel, error) {
	return NewPlatformChannelWithFactory(cfg, api, b, defaultSessionFactory)
}

// NewPlatformChannelWithFactory creates a PlatformChannel with a custom session factory (for testing)
func NewPlatformChannelWithFactory(cfg *config.Config, api PlatformAPI, b *bus.MessageBus, factory SessionFactory) (*PlatformChannel, error) {
	if cfg.Application.Token == "" {
		return nil, fmt.Errorf("platform token is required")
	}
	if api == nil {
		return nil, fmt.Errorf("platform api client is required")
	}
	return &PlatformChannel{
		BaseChannel: NewBaseChannel(platformChannelName, b, cfg.Channels.Platform.AllowFrom),
		api:         api,
		token:       cfg.Application.Token,
		gwCfg:       cfg.Gateway,
		version:     cfg.API.Version,
		factory:     factory,
		sleep:       sleepContext,
	}, nil
}

func (p *PlatformChannel) gatewayURL(ctx context.Context) (string, error) {
	if p.gwCfg.URL != "" {
		return p.gwCfg.URL, nil
	}
	gw, err := p.api.GetGatewayBot(ctx)
	if err != nil {
		return "", err
	}
	if gw.URL == "" {
		return "", fmt.Errorf("gateway url missing from response")
	}
	return gw.URL, nil
}

func (p *PlatformChannel) Start(ctx context.Context) error {
	url, err := p.gatewayURL(ctx)
	if err != nil {
		return fmt.Errorf("resolve gateway url: %w", err)
	}

	// The session publishes onto a private bus so inbound events pass the
	// allow list before reaching the shared one.
	events := bus.NewMessageBus(config.DefaultBufSize)
	sess, err := p.factory(gateway.Options{
		URL:     url,
		Version: p.version,
		Token:   p.token,
		Intents: p.gwCfg.Intents,
		Bus:     events,
		Channel: p.Name(),
	})
	if err != nil {
		return fmt.Errorf("create gateway session: %w", err)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.runSession(ctx, sess)
	}()
	go func() {
		defer p.wg.Done()
		p.relay(ctx, events)
	}()

	platformLog.Info("gateway session started", "url", url)
	return nil
}

func (p *PlatformChannel) runSession(ctx context.Context, sess SessionRunner) {
	backoff := minBackoff
	for {
		err := sess.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := backoff
		switch {
		case errors.Is(err, gateway.ErrReconnect):
			wait = 0
			backoff = minBackoff
		case errors.Is(err, gateway.ErrZombie):
			platformLog.Warn("zombie connection, reconnecting")
			backoff = minBackoff
			wait = minBackoff
		default:
			platformLog.Error("gateway session ended", "err", err, "retry_in", backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return
			}
		}
	}
}

func (p *PlatformChannel) relay(ctx context.Context, events *bus.MessageBus) {
	for {
		select {
		case msg := <-events.Inbound:
			if msg.SenderID != "" {
				if isBot, _ := msg.Metadata["bot"].(bool); isBot {
					continue
				}
				if !p.IsAllowed(msg.SenderID) {
					platformLog.Debug("rejected message", "sender", msg.SenderID)
					continue
				}
			}
			select {
			case p.bus.Inbound <- msg:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *PlatformChannel) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	platformLog.Info("stopped")
	return nil
}

func (p *PlatformChannel) Send(msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("platform message has no channel id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), platformSendTimeout)
	defer cancel()

	for _, chunk := range splitMessage(msg.Content, platformMaxLen) {
		if _, err := p.api.CreateMessage(ctx, msg.ChatID, chunk); err != nil {
			return fmt.Errorf("send platform message: %w", err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
