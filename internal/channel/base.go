package channel

import (
	"context"
	"strings"

	"github.com/stellarlinkco/cordkit/internal/bus"
	"github.com/stellarlinkco/cordkit/internal/command"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// CommandMirror is implemented by channels that can publish the compiled
// command tree in their own format.
type CommandMirror interface {
	MirrorCommands(ctx context.Context, options []command.Option) error
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether senderID may talk to the bot. An empty allow
// list admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}

// splitMessage cuts content into chunks of at most maxLen bytes, preferring
// to break at the last newline of each chunk.
func splitMessage(content string, maxLen int) []string {
	var chunks []string
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]
		chunks = append(chunks, chunk)
	}
	return chunks
}
