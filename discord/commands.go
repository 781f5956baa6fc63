package discord

import (
	"context"
	"fmt"
	"net/http"

	"runway-bot/bot"
)

const (
	commandTypeChatInput = 1
	optionTypeInteger    = 4
)

// ApplicationCommand is a slash command definition.
type ApplicationCommand struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        int             `json:"type"`
	Options     []CommandOption `json:"options,omitempty"`
}

// CommandOption is a slash command parameter.
type CommandOption struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        int    `json:"type"`
	Required    bool   `json:"required"`
	MinValue    *int   `json:"min_value,omitempty"`
}

// Commands returns the slash commands the bot serves.
func Commands() []ApplicationCommand {
	minSeason := 1
	season := CommandOption{
		Name:        "season",
		Description: fmt.Sprintf("Season number (default %d)", bot.DefaultSeason),
		Type:        optionTypeInteger,
		MinValue:    &minSeason,
	}

	return []ApplicationCommand{
		{
			Name:        bot.CommandRunwayImages,
			Description: "Post new runway images from the wiki",
			Type:        commandTypeChatInput,
			Options:     []CommandOption{season},
		},
		{
			Name:        bot.CommandRunwayStats,
			Description: "Show how many runway images have been posted",
			Type:        commandTypeChatInput,
			Options:     []CommandOption{season},
		},
	}
}

// RegisterCommands overwrites the application's slash commands. An empty
// guildID registers them globally.
func (c *Client) RegisterCommands(ctx context.Context, appID, guildID string) error {
	path := fmt.Sprintf("/applications/%s/commands", appID)
	if guildID != "" {
		path = fmt.Sprintf("/applications/%s/guilds/%s/commands", appID, guildID)
	}

	if err := c.do(ctx, http.MethodPut, path, Commands(), nil); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}
