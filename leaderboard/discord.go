package leaderboard

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Built-in slash command names. Guilds may rename any of these through
// their stored configuration; dispatch resolves renamed commands back
// to the built-in name.
const (
	SlashCommandPing         = "ping"
	SlashCommandLeaderboard  = "leaderboard"
	SlashCommandLeaderboards = "leaderboards"
	SlashCommandRank         = "rank"
	SlashCommandPosition     = "position"
	SlashCommandProfile      = "profile"
	SlashCommandConfigure    = "configure"

	// Option names for commands accepting input
	leaderboardIDOption = "id"
	identityOption      = "identity"

	// Discord caps autocomplete choice names at 100 characters
	autocompleteChoiceNameMaxLength = 99
)

// Discord manages the gateway session for the leaderboard bot: command
// registration, lifecycle handlers and the interaction entrypoints.
type Discord struct {
	session DiscordSessionHandler
	config  *DiscordConfig
	logger  *slog.Logger

	metricConnects    atomic.Int64
	metricDisconnects atomic.Int64
	connected         atomic.Bool

	// Active paginated responses, keyed by message ID
	paginators sync.Map

	discordgoRemoveHandlerFuncs []func()
	bot                         *Bot
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord token not set")
	}
	if config.ApplicationID == "" {
		return nil, fmt.Errorf("discord application ID not set")
	}
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes the discordgo session with the configured
// token, intents and log level.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}

	return session, nil
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, _ *discordgo.Ready) {
		d.logger.Info(
			"Ready",
			"session_id", s.State.SessionID,
			"user_id", s.State.User.ID,
			"username", s.State.User.Username,
			"guilds", len(s.State.Guilds),
		)
		if d.config.ActivityStatus != "" {
			if err := d.session.UpdateGameStatus(0, d.config.ActivityStatus); err != nil {
				d.logger.Warn("unable to set activity status", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)

		var sessionID string
		var userID string
		var username string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
			if s.State.User != nil {
				userID = s.State.User.ID
				username = s.State.User.Username
			}
		}
		d.logger.Info(
			"Connected",
			"session_id", sessionID,
			slog.Group("user", "id", userID, "username", username),
		)
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

// handlerGuildCreate registers commands in guilds the bot joins after
// startup.
func (d *Discord) handlerGuildCreate(store *ConfigStore) func(
	s *discordgo.Session,
	g *discordgo.GuildCreate,
) {
	return func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		d.logger.Info("joined guild", "guild_id", g.ID, "guild_name", g.Name)
		if _, err := d.registerCommands(g.ID, store.Commands(g.ID)); err != nil {
			d.logger.Error(
				"unable to register commands for guild",
				"guild_id", g.ID,
				tint.Err(err),
			)
		}
	}
}

// appCommands builds the full built-in command set with the given
// per-guild renames applied. Renames targeting unknown commands are
// ignored.
func (d *Discord) appCommands(renames []ConfigCommand) []*discordgo.ApplicationCommand {
	renamed := func(origin string) string {
		for _, command := range renames {
			if command.Origin == origin && command.Renamed != "" {
				return command.Renamed
			}
		}
		return origin
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        renamed(SlashCommandPing),
			Type:        discordgo.ChatApplicationCommand,
			Description: fmt.Sprintf("Ping pong with %s", DefaultBotName),
		},
		{
			Name:        renamed(SlashCommandLeaderboard),
			Type:        discordgo.ChatApplicationCommand,
			Description: "Leaderboard for on-chain activities",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         leaderboardIDOption,
					Description:  "Leaderboard ID or short name",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        renamed(SlashCommandLeaderboards),
			Type:        discordgo.ChatApplicationCommand,
			Description: "List of leaderboards linked to Discord server",
		},
		{
			Name:        renamed(SlashCommandRank),
			Type:        discordgo.ChatApplicationCommand,
			Description: "Check current rank on a leaderboard",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         identityOption,
					Description:  "Identity to look up (address, NFT, class, etc)",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        renamed(SlashCommandPosition),
			Type:        discordgo.ChatApplicationCommand,
			Description: "Show user results",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         identityOption,
					Description:  "Identity to look up (address, NFT, class, etc)",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        renamed(SlashCommandProfile),
			Type:        discordgo.ChatApplicationCommand,
			Description: "Create and manage bot profile addresses and IDs",
		},
		{
			Name:        renamed(SlashCommandConfigure),
			Type:        discordgo.ChatApplicationCommand,
			Description: fmt.Sprintf("Admin: Configure %s bot", DefaultBotName),
		},
	}
}

// registerCommands sends the guild's command set to the discord bulk
// overwrite endpoint.
func (d *Discord) registerCommands(
	guildID string,
	renames []ConfigCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		guildID,
		d.appCommands(renames),
		options...,
	)
	if err != nil {
		d.logger.Error(
			"error overwriting discord commands",
			"guild_id", guildID,
			tint.Err(err),
		)
		return created, err
	}
	for _, c := range created {
		d.logger.Debug(
			"Created command",
			"guild_id", guildID,
			"command", c.Name,
		)
	}
	return created, nil
}

// resolveCommandOrigin maps a possibly renamed slash command back to
// its built-in name.
func resolveCommandOrigin(renames []ConfigCommand, name string) string {
	for _, command := range renames {
		if command.Renamed == name {
			return command.Origin
		}
	}
	return name
}

// DiscordSessionHandler defines the subset of discordgo.Session used by
// the bot, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ApplicationCommandBulkOverwrite overwrites application commands
	// for one guild in bulk
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// InteractionResponse gets the response to an interaction
	InteractionResponse(
		interaction *discordgo.Interaction,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// InteractionResponseEdit modifies the given interaction response
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// FollowupMessageCreate sends a followup message for an interaction
	FollowupMessageCreate(
		interaction *discordgo.Interaction,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSend sends a plain message to the given channel
	ChannelMessageSend(
		channelID string,
		message string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendEmbed sends an embed to the given channel
	ChannelMessageSendEmbed(
		channelID string,
		embed *discordgo.MessageEmbed,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// UserChannelCreate opens (or returns) a DM channel with a user
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// Guild fetches a guild by ID
	Guild(
		guildID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Guild, error)

	// GuildChannels fetches channels for the given guild
	GuildChannels(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)

	// UserGuilds fetches the guilds the bot user is a member of
	UserGuilds(
		limit int,
		beforeID string,
		afterID string,
		withCounts bool,
		options ...discordgo.RequestOption,
	) ([]*discordgo.UserGuild, error)

	// UpdateGameStatus sets the bot's activity status
	UpdateGameStatus(idle int, name string) error

	// HeartbeatLatency returns the round-trip gateway latency
	HeartbeatLatency() time.Duration

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) InteractionResponse(
	interaction *discordgo.Interaction,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.InteractionResponse(interaction, options...)
	if err != nil {
		d.logger.Error("error getting interaction response", tint.Err(err))
	}
	return msg, err
}

func (d DiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d DiscordSession) FollowupMessageCreate(
	interaction *discordgo.Interaction,
	wait bool,
	data *discordgo.WebhookParams,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.FollowupMessageCreate(interaction, wait, data, options...)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, options...)
}

func (d DiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendEmbed(channelID, embed, options...)
}

func (d DiscordSession) UserChannelCreate(
	recipientID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.UserChannelCreate(recipientID, options...)
}

func (d DiscordSession) Guild(
	guildID string,
	options ...discordgo.RequestOption,
) (*discordgo.Guild, error) {
	return d.session.Guild(guildID, options...)
}

func (d DiscordSession) GuildChannels(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID, options...)
}

func (d DiscordSession) UserGuilds(
	limit int,
	beforeID string,
	afterID string,
	withCounts bool,
	options ...discordgo.RequestOption,
) ([]*discordgo.UserGuild, error) {
	return d.session.UserGuilds(limit, beforeID, afterID, withCounts, options...)
}

func (d DiscordSession) UpdateGameStatus(idle int, name string) error {
	return d.session.UpdateGameStatus(idle, name)
}

func (d DiscordSession) HeartbeatLatency() time.Duration {
	return d.session.HeartbeatLatency()
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

// getDiscordUser returns the [discordgo.User] associated with the
// interaction. Users don't always appear in the same place in the
// interaction object, so this checks known areas.
func getDiscordUser(i *discordgo.InteractionCreate) *discordgo.User {
	u := i.User
	if u == nil && i.Member != nil {
		u = i.Member.User
	}
	return u
}

// memberRoleIDs returns the role IDs of the interaction's member, if
// the interaction happened in a guild.
func memberRoleIDs(i *discordgo.InteractionCreate) []string {
	if i.Member == nil {
		return nil
	}
	return i.Member.Roles
}
