package librarian

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// messageSession is the part of the Discord session the message handler
// uses to reply.
type messageSession interface {
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Bot is the librarian Q&A bot. It answers guild messages whose final
// mention on a line addresses the bot, using a knowledge base refreshed
// from a Spire journal.
type Bot struct {
	config    *Config
	logger    *slog.Logger
	session   *discordgo.Session
	spire     *SpireClient
	knowledge *KnowledgeBase

	runMu sync.Mutex
}

// New creates a librarian Bot from the given config.
func New(config *Config) (*Bot, error) {
	if config == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, err
	}

	logger := slog.New(newLogHandler(config.LogLevel)).With(
		loggerNameKey, "librarian",
	)
	bot := &Bot{
		config: config,
		logger: logger,
	}

	bot.spire = newSpireClient(config.Spire, config.HTTPClient, logger)

	clientCfg := openai.DefaultConfig(config.OpenAI.Token)
	if config.HTTPClient != nil {
		clientCfg.HTTPClient = config.HTTPClient
	}
	bot.knowledge = newKnowledgeBase(
		bot.spire,
		openai.NewClientWithConfig(clientCfg),
		config.OpenAI,
		logger,
	)
	return bot, nil
}

// Run connects to the Discord gateway and blocks until the context is
// canceled or an interrupt signal arrives. The knowledge base is
// refreshed on startup and then on every RefreshInterval tick.
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.knowledge.Refresh(ctx); err != nil {
		b.logger.Error(
			"unable to load knowledge from journal",
			tint.Err(err),
		)
	}

	session, err := discordgo.New("Bot " + b.config.Discord.Token)
	if err != nil {
		return fmt.Errorf("unable to create discord session: %w", err)
	}
	session.Identify.Intents = b.config.Discord.GatewayIntents
	if b.config.HTTPClient != nil {
		session.Client = b.config.HTTPClient
	}
	b.session = session

	removeHandler := session.AddHandler(b.handlerMessageCreate(ctx))
	defer removeHandler()

	if err := session.Open(); err != nil {
		return fmt.Errorf("unable to open discord connection: %w", err)
	}
	b.logger.Info("discord gateway connection open")

	refreshTicker := time.NewTicker(b.config.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("shutting down")
			if closeErr := session.Close(); closeErr != nil {
				b.logger.Error(
					"error closing discord session",
					tint.Err(closeErr),
				)
			}
			return nil
		case <-refreshTicker.C:
			refreshCtx, refreshCancel := context.WithTimeout(
				ctx,
				b.config.RefreshInterval,
			)
			if err := b.knowledge.Refresh(refreshCtx); err != nil {
				b.logger.Error(
					"unable to refresh knowledge from journal",
					tint.Err(err),
				)
			}
			refreshCancel()
		}
	}
}

func (b *Bot) handlerMessageCreate(
	ctx context.Context,
) func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		go b.handleMessage(ctx, s, m.Message)
	}
}

// handleMessage answers a message when its final mention on a line
// addresses the bot. Messages from the bot itself, direct messages and
// messages from foreign guilds (when a guild filter is configured) are
// ignored.
func (b *Bot) handleMessage(
	ctx context.Context,
	session messageSession,
	message *discordgo.Message,
) {
	logger := b.logger.With(
		"channel_id", message.ChannelID,
		"message_id", message.ID,
	)

	if message.Author != nil &&
		message.Author.ID == b.config.Discord.ApplicationID &&
		message.Author.Username == b.config.Discord.Username {
		// Ignore messages from yourself to not fall in loop
		return
	}

	if message.GuildID == "" {
		logger.Warn(
			"direct message to bot ignored",
			"author", authorUsername(message),
		)
		return
	}
	if b.config.Discord.GuildID != "" &&
		message.GuildID != b.config.Discord.GuildID {
		logger.Warn("message from unknown guild", "guild_id", message.GuildID)
		return
	}

	if !b.mentionsBot(message) {
		return
	}

	words, mentioned := parseWords(message.Content)
	if !mentioned || len(words) == 0 {
		return
	}
	question := strings.TrimSpace(strings.Join(words[0], " "))
	if question == "" {
		return
	}

	answer, err := b.knowledge.Answer(ctx, question)
	if err != nil {
		logger.Error("unable to answer question", tint.Err(err))
		answer = DefaultResponse
	}

	if _, err := session.ChannelMessageSend(message.ChannelID, answer); err != nil {
		logger.Error("unable to send answer", tint.Err(err))
	}
}

// mentionsBot reports whether the message mentions the bot user,
// matching both the application ID and the configured username.
func (b *Bot) mentionsBot(message *discordgo.Message) bool {
	for _, mention := range message.Mentions {
		if mention == nil {
			continue
		}
		if mention.ID == b.config.Discord.ApplicationID &&
			mention.Username == b.config.Discord.Username {
			return true
		}
	}
	return false
}

func authorUsername(message *discordgo.Message) string {
	if message.Author == nil {
		return ""
	}
	return message.Author.Username
}
