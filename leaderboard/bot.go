package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/bugout-dev/discord-bots/leaderboard.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
)

var defaultLogWriter io.Writer = os.Stdout

// Bot is the leaderboard discord bot: a thin orchestration layer over
// the Discord gateway, the Brood resource store and the engine API.
// All durable state lives in Brood; the bot keeps an in-memory mirror
// refreshed at startup.
type Bot struct {
	config *Config

	logger     *slog.Logger
	logHandler slog.Handler

	discord *Discord
	brood   *BroodClient
	engine  *EngineClient
	store   *ConfigStore
	api     *API

	runMu     sync.Mutex
	startedAt time.Time
}

// New creates and initializes a new Bot instance from the given
// configuration. Initialization errors are collected and returned as a
// single error.
func New(config *Config) (*Bot, error) {
	var errs []error

	if err := structValidator.Struct(config); err != nil {
		errs = append(errs, err)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{config: config}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	b.brood = NewBroodClient(config.Brood, config.HTTPClient, b.logger)
	b.engine = NewEngineClient(config.Engine, config.HTTPClient, b.logger)
	b.store = newConfigStore(b.brood, b.engine, b.logger)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	if disc != nil {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.bot = b
		b.discord = disc
	}

	if config.API != nil && config.API.Enabled {
		api, apiErr := newAPI(b, config.API)
		if apiErr != nil {
			errs = append(errs, apiErr)
		}
		b.api = api
	}

	return b, errors.Join(errs...)
}

// RunAPI serves only the HTTP API, without opening a gateway
// connection. The Discord session is still created so the guild
// overview endpoint can use the REST API. Blocks until the context is
// cancelled or a termination signal is received.
func (b *Bot) RunAPI(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.api == nil {
		return fmt.Errorf("api is not enabled")
	}

	b.startedAt = time.Now()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, startupCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	b.store.BulkLoad(startupCtx)
	startupCancel()

	session, err := b.discord.newSession()
	if err != nil {
		return fmt.Errorf("unable to initialize discord session: %w", err)
	}
	b.discord.session = session

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- b.api.Serve(ctx)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	b.logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer shutdownCancel()
	return b.api.httpServer.Shutdown(shutdownCtx)
}

// Run starts the bot and blocks until the given context is cancelled
// or a termination signal is received. Configuration is loaded from
// Brood before the gateway connection opens, bounded by the startup
// timeout.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := b.logger
	runtimeWG := &sync.WaitGroup{}

	startupCtx, startupCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	b.store.BulkLoad(startupCtx)
	startupCancel()

	session, err := b.discord.newSession()
	if err != nil {
		return fmt.Errorf("unable to initialize discord session: %w", err)
	}
	b.discord.session = session

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.discord.handlerGuildCreate(b.store)),
		session.AddHandler(b.handlerInteractionCreate(ctx, runtimeWG)),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("unable to open discord connection: %w", err)
	}
	logger.Info("discord gateway connection open")

	if b.api != nil {
		runtimeWG.Add(1)
		go func() {
			defer runtimeWG.Done()
			if httpErr := b.api.Serve(ctx); httpErr != nil &&
				!errors.Is(httpErr, http.ErrServerClosed) {
				logger.Error("error serving api HTTP", tint.Err(httpErr))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer shutdownCancel()

	for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	if closeErr := session.Close(); closeErr != nil {
		logger.Error("error closing discord session", tint.Err(closeErr))
	}
	if b.api != nil && b.api.httpServer != nil {
		_ = b.api.httpServer.Shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		runtimeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, exiting")
	}
	return nil
}

// handlerInteractionCreate dispatches slash commands, autocompletion
// requests, component clicks and modal submissions. Each interaction is
// handled on its own goroutine tracked by the runtime WaitGroup, so
// in-flight work is drained on shutdown. A panic while handling one
// interaction is recovered and logged rather than taking down the
// gateway connection.
func (b *Bot) handlerInteractionCreate(
	ctx context.Context,
	wg *sync.WaitGroup,
) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		wg.Add(1)
		reqCtx := WithLogger(
			ctx, b.logger.With(
				"interaction_id", i.ID,
				"guild_id", i.GuildID,
				"channel_id", i.ChannelID,
			),
		)
		go func() {
			defer wg.Done()
			defer func() {
				if rc := recover(); rc != nil {
					reqLogger, ok := ContextLogger(reqCtx)
					if reqLogger == nil || !ok {
						reqLogger = slog.Default()
					}
					reqLogger.Error(
						"panic handling interaction",
						tint.Err(fmt.Errorf("%v", rc)),
					)
				}
			}()
			b.routeInteraction(reqCtx, i)
		}()
	}
}

func (b *Bot) routeInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.routeCommand(ctx, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.routeAutocomplete(i)
	case discordgo.InteractionMessageComponent:
		b.routeComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		b.routeModalSubmit(ctx, i)
	default:
		b.logger.Warn(
			"unexpected interaction type",
			"interaction_type", i.Type,
		)
	}
}

func (b *Bot) routeCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	origin := resolveCommandOrigin(b.store.Commands(i.GuildID), data.Name)

	user := getDiscordUser(i)
	b.logger.Info(
		"slash command",
		"command", origin,
		"invoked_as", data.Name,
		"user", user,
		"guild_id", i.GuildID,
		"channel_id", i.ChannelID,
	)

	switch origin {
	case SlashCommandPing:
		b.handlePing(i)
	case SlashCommandLeaderboard:
		b.handleLeaderboard(ctx, i)
	case SlashCommandLeaderboards:
		b.handleLeaderboards(i)
	case SlashCommandRank:
		b.handleRank(ctx, i)
	case SlashCommandPosition:
		b.handlePosition(ctx, i)
	case SlashCommandProfile:
		b.handleProfile(i)
	case SlashCommandConfigure:
		b.handleConfigure(i)
	default:
		b.logger.Warn("unknown command", "command", data.Name)
	}
}

func (b *Bot) routeAutocomplete(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	origin := resolveCommandOrigin(b.store.Commands(i.GuildID), data.Name)

	switch origin {
	case SlashCommandLeaderboard:
		b.autocompleteLeaderboard(i)
	case SlashCommandRank, SlashCommandPosition:
		b.autocompleteIdentity(i)
	default:
		b.logger.Warn("unexpected autocomplete", "command", data.Name)
	}
}

func (b *Bot) routeComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	switch {
	case customID == customIDPagePrevious || customID == customIDPageNext:
		b.handlePageNavigation(i, customID)
	case customID == customIDConfigureLinkButton:
		b.handleConfigureLinkButton(i)
	case customID == customIDConfigureUnlinkButton:
		b.handleConfigureUnlinkButton(i)
	case customID == customIDConfigureRolesButton:
		b.handleConfigureRolesButton(i)
	case customID == customIDConfigureRolesSelect:
		b.handleConfigureRolesSelect(ctx, i)
	case customID == customIDProfileLinkButton:
		b.handleProfileLinkButton(i)
	case customID == customIDProfileUnlinkButton:
		b.handleProfileUnlinkButton(i)
	case strings.HasPrefix(customID, customIDRankSelectPrefix):
		b.handleLeaderboardSelect(ctx, i, SlashCommandRank)
	case strings.HasPrefix(customID, customIDPositionSelectPrefix):
		b.handleLeaderboardSelect(ctx, i, SlashCommandPosition)
	default:
		b.logger.Warn("unknown component", "custom_id", customID)
	}
}

func (b *Bot) routeModalSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.ModalSubmitData().CustomID
	switch customID {
	case customIDConfigureLinkModal:
		b.handleConfigureLinkSubmit(ctx, i)
	case customIDConfigureUnlinkModal:
		b.handleConfigureUnlinkSubmit(ctx, i)
	case customIDProfileLinkModal:
		b.handleProfileLinkSubmit(ctx, i)
	case customIDProfileUnlinkModal:
		b.handleProfileUnlinkSubmit(ctx, i)
	default:
		b.logger.Warn("unknown modal", "custom_id", customID)
	}
}

// respondEmbed sends an immediate interaction response containing a
// single embed.
func (b *Bot) respondEmbed(
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
	ephemeral bool,
) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
				Flags:  flags,
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending interaction response", tint.Err(err))
	}
}

// respondMessage is respondEmbed for a plain description-only embed.
func (b *Bot) respondMessage(
	i *discordgo.InteractionCreate,
	description string,
	ephemeral bool,
) {
	b.respondEmbed(
		i,
		&discordgo.MessageEmbed{Description: description},
		ephemeral,
	)
}

// followupEmbed sends a followup message for an already acknowledged
// interaction.
func (b *Bot) followupEmbed(
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
	ephemeral bool,
) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_, err := b.discord.session.FollowupMessageCreate(
		i.Interaction, true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	)
	if err != nil {
		b.logger.Error("error sending followup message", tint.Err(err))
	}
}

func (b *Bot) followupMessage(
	i *discordgo.InteractionCreate,
	description string,
	ephemeral bool,
) {
	b.followupEmbed(
		i,
		&discordgo.MessageEmbed{Description: description},
		ephemeral,
	)
}

// respondAutocomplete sends autocompletion choices for an interaction.
func (b *Bot) respondAutocomplete(
	i *discordgo.InteractionCreate,
	choices []*discordgo.ApplicationCommandOptionChoice,
) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: choices},
		},
	)
	if err != nil {
		b.logger.Error("error sending autocomplete response", tint.Err(err))
	}
}

// commandOption returns the value of a string option by name.
func commandOption(i *discordgo.InteractionCreate, name string) string {
	for _, option := range i.ApplicationCommandData().Options {
		if option.Name == name {
			return option.StringValue()
		}
	}
	return ""
}

// modalInputValue extracts the value of a text input from a modal
// submission by custom ID.
func modalInputValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, inputOK := component.(*discordgo.TextInput)
			if inputOK && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
