package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/stellarlinkco/cordkit/internal/bus"
	"github.com/stellarlinkco/cordkit/internal/cache"
	"github.com/stellarlinkco/cordkit/internal/channel"
	"github.com/stellarlinkco/cordkit/internal/command"
	"github.com/stellarlinkco/cordkit/internal/config"
	"github.com/stellarlinkco/cordkit/internal/cron"
	"github.com/stellarlinkco/cordkit/internal/declare"
	"github.com/stellarlinkco/cordkit/internal/rest"
)

var logger = log.WithPrefix("bot")

const (
	syncJobName    = "__internal_commands_sync"
	syncJobMessage = "__internal:commands:sync"

	purgeJobName    = "__internal_cache_purge"
	purgeJobMessage = "__internal:cache:purge"

	errorReply = "Sorry, I encountered an error processing your message."
)

// Handler answers one inbound message. An empty reply sends nothing.
type Handler func(ctx context.Context, msg bus.InboundMessage) (string, error)

// Options for creating a Bot
type Options struct {
	Handler    Handler
	SignalChan chan os.Signal // for testing signal handling
	HTTPClient rest.HTTPClient
}

type Bot struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	api        *rest.Client
	store      cache.Store
	compiler   *command.Compiler
	channels   *channel.ChannelManager
	cron       *cron.Service
	handler    Handler
	signalChan chan os.Signal
}

// New creates a Bot with default options
func New(cfg *config.Config) (*Bot, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Bot with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Bot, error) {
	b := &Bot{
		cfg:        cfg,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		compiler:   command.New(cfg.Commands.Limits),
		handler:    opts.Handler,
		signalChan: opts.SignalChan,
	}
	if b.handler == nil {
		b.handler = ignoreHandler
	}

	var restOpts []rest.Option
	if opts.HTTPClient != nil {
		restOpts = append(restOpts, rest.WithHTTPClient(opts.HTTPClient))
	}

	if cfg.Cache.Enabled {
		settings, err := cache.ParseSettings(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("parse cache settings: %w", err)
		}
		store, err := cache.Open(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		b.store = store
		restOpts = append(restOpts, rest.WithCache(store, settings))
	}

	api, err := rest.New(cfg.API, cfg.Application.Token, restOpts...)
	if err != nil {
		b.closeStore()
		return nil, fmt.Errorf("create rest client: %w", err)
	}
	b.api = api

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	b.cron = cron.NewService(cronStorePath)
	b.cron.OnJob = b.runJob

	chMgr, err := channel.NewChannelManager(cfg, b.bus, b.api)
	if err != nil {
		b.closeStore()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	b.channels = chMgr

	return b, nil
}

func ignoreHandler(ctx context.Context, msg bus.InboundMessage) (string, error) {
	return "", nil
}

// API exposes the REST client for callers that need endpoints the bot does
// not wrap.
func (b *Bot) API() *rest.Client { return b.api }

// Bus is the message bus channels publish to.
func (b *Bot) Bus() *bus.MessageBus { return b.bus }

// CompileCommands loads the declarations and compiles them with the
// configured limits.
func (b *Bot) CompileCommands() ([]command.Option, error) {
	tree, err := declare.Load(b.cfg.Commands.Path)
	if err != nil {
		return nil, fmt.Errorf("load declarations: %w", err)
	}
	options, err := b.compiler.Compile(tree)
	if err != nil {
		return nil, fmt.Errorf("compile commands: %w", err)
	}
	return options, nil
}

// SyncCommands compiles the declarations and replaces the registered
// commands with them: in the configured guild, or globally when no guild is
// set. Channels that mirror commands are updated afterwards.
func (b *Bot) SyncCommands(ctx context.Context) ([]rest.ApplicationCommand, error) {
	options, err := b.CompileCommands()
	if err != nil {
		return nil, err
	}
	cmds := rest.ApplicationCommandsFrom(options)

	appID := b.cfg.Application.ID
	var out []rest.ApplicationCommand
	if guild := b.cfg.Application.GuildID; guild != "" {
		out, err = b.api.BulkOverwriteGuildCommands(ctx, appID, guild, cmds)
	} else {
		out, err = b.api.BulkOverwriteGlobalCommands(ctx, appID, cmds)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("commands synced", "count", len(out), "guild", b.cfg.Application.GuildID)

	if err := b.channels.MirrorCommands(ctx, options); err != nil {
		logger.Warn("mirror commands", "err", err)
	}
	return out, nil
}

func (b *Bot) runJob(ctx context.Context, job cron.CronJob) (string, error) {
	switch job.Payload.Message {
	case syncJobMessage:
		cmds, err := b.SyncCommands(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("synced %d commands", len(cmds)), nil
	case purgeJobMessage:
		if b.store == nil {
			return "cache disabled", nil
		}
		n, err := b.store.Purge()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("purged %d entries", n), nil
	}

	if !job.Payload.Deliver || job.Payload.Channel == "" {
		return job.Payload.Message, nil
	}
	select {
	case b.bus.Outbound <- bus.OutboundMessage{
		Channel: job.Payload.Channel,
		ChatID:  job.Payload.To,
		Content: job.Payload.Message,
	}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "delivered", nil
}

func (b *Bot) ensureInternalJobs() error {
	if expr := b.cfg.Commands.SyncSchedule; expr != "" {
		if _, err := b.cron.EnsureJob(syncJobName, cron.Schedule{Kind: cron.KindCron, Expr: expr}, cron.Payload{Message: syncJobMessage}); err != nil {
			return err
		}
	}
	if b.store != nil && b.cfg.Cache.PurgeSchedule != "" {
		if _, err := b.cron.EnsureJob(purgeJobName, cron.Schedule{Kind: cron.KindCron, Expr: b.cfg.Cache.PurgeSchedule}, cron.Payload{Message: purgeJobMessage}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go b.bus.DispatchOutbound(ctx)

	if err := b.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	logger.Info("channels started", "channels", b.channels.EnabledChannels())

	if b.cfg.Commands.SyncOnStart {
		if _, err := b.SyncCommands(ctx); err != nil {
			logger.Warn("sync on start failed", "err", err)
		}
	}

	if err := b.cron.Start(ctx); err != nil {
		logger.Warn("cron start failed", "err", err)
	}
	if err := b.ensureInternalJobs(); err != nil {
		logger.Warn("ensure internal jobs failed", "err", err)
	}

	go b.processLoop(ctx)

	logger.Info("running", "application", b.cfg.Application.ID)

	// Use injected signal channel for testing, or create default
	sigCh := b.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return b.Shutdown()
}

func (b *Bot) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-b.bus.Inbound:
			b.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg bus.InboundMessage) {
	if msg.Content == "" {
		logger.Debug("event", "channel", msg.Channel, "type", msg.Event)
		return
	}
	logger.Info("inbound", "channel", msg.Channel, "sender", msg.SenderID, "content", truncate(msg.Content, 80))

	result, err := b.handler(ctx, msg)
	if err != nil {
		logger.Error("handler failed", "channel", msg.Channel, "err", err)
		result = errorReply
	}
	if result == "" {
		return
	}

	select {
	case b.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: result,
	}:
	case <-ctx.Done():
	}
}

// Shutdown stops cron and the channels and closes the cache. Channel stop
// failures are returned after the cache is closed.
func (b *Bot) Shutdown() error {
	b.cron.Stop()
	err := b.channels.StopAll()
	if err != nil {
		logger.Warn("stop channels", "err", err)
	}
	b.closeStore()
	logger.Info("shutdown complete")
	return err
}

func (b *Bot) closeStore() {
	if b.store == nil {
		return
	}
	if err := b.store.Close(); err != nil {
		logger.Warn("close cache", "err", err)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
