package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stellarlinkco/cordkit/internal/command"
)

// Route templates, also used as cache settings keys.
const (
	RouteCurrentApplication = "/applications/@me"
	RouteGatewayBot         = "/gateway/bot"
	RouteGlobalCommands     = "/applications/{application.id}/commands"
	RouteGuildCommands      = "/applications/{application.id}/guilds/{guild.id}/commands"
	RouteChannelMessages    = "/channels/{channel.id}/messages"
)

// CommandTypeChatInput is the application command type for slash commands.
const CommandTypeChatInput = 1

type Application struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

type ApplicationCommand struct {
	ID            string           `json:"id,omitempty"`
	ApplicationID string           `json:"application_id,omitempty"`
	GuildID       string           `json:"guild_id,omitempty"`
	Type          int              `json:"type"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Options       []command.Option `json:"options,omitempty"`
	Version       string           `json:"version,omitempty"`
}

type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type createMessage struct {
	Content string `json:"content"`
}

// ApplicationCommandsFrom turns compiled top-level options into chat-input
// commands. A top-level subcommand contributes its parameters as options; a
// top-level group contributes its children.
func ApplicationCommandsFrom(options []command.Option) []ApplicationCommand {
	cmds := make([]ApplicationCommand, 0, len(options))
	for _, opt := range options {
		cmds = append(cmds, ApplicationCommand{
			Type:        CommandTypeChatInput,
			Name:        opt.Name,
			Description: opt.Description,
			Options:     opt.Options,
		})
	}
	return cmds
}

func (c *Client) GetCurrentApplication(ctx context.Context) (*Application, error) {
	var app Application
	if err := c.request(ctx, http.MethodGet, RouteCurrentApplication, RouteCurrentApplication, nil, &app); err != nil {
		return nil, fmt.Errorf("get current application: %w", err)
	}
	return &app, nil
}

func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var gw GatewayBot
	if err := c.request(ctx, http.MethodGet, RouteGatewayBot, RouteGatewayBot, nil, &gw); err != nil {
		return nil, fmt.Errorf("get gateway: %w", err)
	}
	return &gw, nil
}

func (c *Client) GetGlobalCommands(ctx context.Context, applicationID string) ([]ApplicationCommand, error) {
	path := fmt.Sprintf("/applications/%s/commands", url.PathEscape(applicationID))
	var cmds []ApplicationCommand
	if err := c.request(ctx, http.MethodGet, RouteGlobalCommands, path, nil, &cmds); err != nil {
		return nil, fmt.Errorf("get global commands: %w", err)
	}
	return cmds, nil
}

// BulkOverwriteGlobalCommands replaces every global command of the
// application with cmds.
func (c *Client) BulkOverwriteGlobalCommands(ctx context.Context, applicationID string, cmds []ApplicationCommand) ([]ApplicationCommand, error) {
	path := fmt.Sprintf("/applications/%s/commands", url.PathEscape(applicationID))
	return c.overwrite(ctx, RouteGlobalCommands, path, cmds)
}

// BulkOverwriteGuildCommands replaces the application's commands in one guild.
func (c *Client) BulkOverwriteGuildCommands(ctx context.Context, applicationID, guildID string, cmds []ApplicationCommand) ([]ApplicationCommand, error) {
	path := fmt.Sprintf("/applications/%s/guilds/%s/commands", url.PathEscape(applicationID), url.PathEscape(guildID))
	return c.overwrite(ctx, RouteGuildCommands, path, cmds)
}

func (c *Client) overwrite(ctx context.Context, route, path string, cmds []ApplicationCommand) ([]ApplicationCommand, error) {
	if cmds == nil {
		cmds = []ApplicationCommand{}
	}
	var out []ApplicationCommand
	if err := c.request(ctx, http.MethodPut, route, path, cmds, &out); err != nil {
		return nil, fmt.Errorf("bulk overwrite commands: %w", err)
	}
	if c.store != nil {
		if err := c.store.Delete(http.MethodGet + " " + path); err != nil {
			logger.Warn("invalidate cached commands", "path", path, "err", err)
		}
	}
	return out, nil
}

func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (*Message, error) {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	var msg Message
	if err := c.request(ctx, http.MethodPost, RouteChannelMessages, path, createMessage{Content: content}, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &msg, nil
}
