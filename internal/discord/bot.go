package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/moorebrett0/vernacular/internal/speech"
)

// MessageLimit is the longest message Discord accepts.
const MessageLimit = 2000

// Bot wraps the Discord session and manages slash commands and messages.
type Bot struct {
	session   *discordgo.Session
	channelID string
	router    *Router
}

// NewBot creates and configures a Discord bot (does not connect yet).
// An empty channelID makes the bot answer wherever it is @mentioned.
func NewBot(token, channelID string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("invalid bot token: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuilds

	return &Bot{
		session:   session,
		channelID: channelID,
	}, nil
}

// SetRouter wires the router to handle messages and interactions.
func (b *Bot) SetRouter(r *Router) {
	b.router = r
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onReady)
}

// Start opens the Discord connection and registers slash commands.
// Blocks until context is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	slog.Info("discord: connected", "user", b.session.State.User.Username)

	// Register slash commands
	b.registerCommands()

	// Wait for shutdown
	<-ctx.Done()
	slog.Info("discord: shutting down")
	return b.session.Close()
}

// SendMessage sends text to a channel, split into as many messages as
// Discord's length limit requires.
func (b *Bot) SendMessage(channelID, text string) {
	for _, chunk := range SplitMessage(text, MessageLimit) {
		if _, err := b.session.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Error("discord: send message failed", "err", err)
			return
		}
	}
}

// SendAudio uploads synthesized speech as a WAV attachment.
func (b *Bot) SendAudio(channelID string, audio []byte) error {
	_, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Files: []*discordgo.File{{
			Name:        "reply.wav",
			ContentType: "audio/wav",
			Reader:      bytes.NewReader(audio),
		}},
	})
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	return nil
}

// Typing shows the typing indicator while a turn runs.
func (b *Bot) Typing(channelID string) {
	if err := b.session.ChannelTyping(channelID); err != nil {
		slog.Debug("discord: typing indicator failed", "err", err)
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord: ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

// BotUserID returns the bot's own user ID.
func (b *Bot) BotUserID() string {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID
	}
	return ""
}

// IsMentioned checks if the bot was @mentioned in the message.
func (b *Bot) IsMentioned(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == b.BotUserID() {
			return true
		}
	}
	return false
}

// StripMention removes the bot's @mention from message text.
func (b *Bot) StripMention(text string) string {
	return stripMention(text, b.BotUserID())
}

func stripMention(text, botID string) string {
	if botID == "" {
		return strings.TrimSpace(text)
	}
	// Discord mentions look like <@123456> or <@!123456>
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	return strings.TrimSpace(text)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore ourselves and other bots
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	// Direct messages always count; in guilds stick to the configured
	// channel, or to @mentions when none is configured
	switch {
	case m.GuildID == "":
	case b.channelID != "":
		if m.ChannelID != b.channelID {
			return
		}
	case !b.IsMentioned(m):
		return
	}

	if b.router != nil {
		// Turns take a while; keep the gateway loop free
		go b.router.HandleMessage(m)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	if b.router != nil {
		b.router.HandleInteraction(i)
	}
}

func (b *Bot) registerCommands() {
	appID := b.session.State.User.ID
	for _, cmd := range commands() {
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			slog.Error("discord: failed to register command", "cmd", cmd.Name, "err", err)
		} else {
			slog.Info("discord: registered command", "cmd", cmd.Name)
		}
	}
}

func commands() []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(speech.Languages))
	for _, l := range speech.Languages {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  l.Name,
			Value: l.Code,
		})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "clear",
			Description: "Forget this conversation and any attached files",
		},
		{
			Name:        "tts",
			Description: "Read replies aloud",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Attach spoken audio to replies",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "language",
					Description: "Language to speak in",
					Required:    false,
					Choices:     choices,
				},
			},
		},
		{
			Name:        "history",
			Description: "Show the recent conversation",
		},
		{
			Name:        "help",
			Description: "Show what I can do",
		},
	}
}
