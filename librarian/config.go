// Package librarian implements a mention-driven Q&A Discord bot. The
// bot's knowledge text and prompt live in a Bugout Spire journal and
// are periodically refreshed; questions are answered with embedding
// retrieval over the knowledge text plus a chat completion.
package librarian

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
)

var structValidator = validator.New()

const (
	DefaultSpireURL = "https://spire.bugout.dev"

	// DefaultRefreshInterval is how often the knowledge text and prompt
	// are re-fetched from the Spire journal.
	DefaultRefreshInterval = time.Minute

	DefaultEmbeddingModel  = openai.AdaEmbeddingV2
	DefaultCompletionModel = openai.GPT3Dot5Turbo

	DefaultResponse = "Very interesting, but not understandable.. :scream:"

	DefaultGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
)

// Config is the top-level librarian bot configuration.
type Config struct {
	LogLevel *slog.LevelVar `json:"-" yaml:"log_level" mapstructure:"log_level"`

	Discord DiscordConfig `json:"discord" yaml:"discord" mapstructure:"discord" validate:"required"`
	Spire   SpireConfig   `json:"spire" yaml:"spire" mapstructure:"spire" validate:"required"`
	OpenAI  OpenAIConfig  `json:"openai" yaml:"openai" mapstructure:"openai" validate:"required"`

	// RefreshInterval is the period between knowledge refreshes from
	// the Spire journal.
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval" mapstructure:"refresh_interval" validate:"required"`

	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// HTTPClient is used for Spire and OpenAI requests.
	HTTPClient *http.Client `json:"-" yaml:"-" mapstructure:"-"`
}

// DiscordConfig holds the bot's Discord credentials and identity.
type DiscordConfig struct {
	Token string `json:"-" yaml:"token" mapstructure:"token" validate:"required"`

	ApplicationID string `json:"application_id" yaml:"application_id" mapstructure:"application_id" validate:"required"`

	// Username is the bot's Discord username, matched against message
	// mentions together with ApplicationID.
	Username string `json:"username" yaml:"username" mapstructure:"username" validate:"required"`

	// GuildID optionally restricts the bot to a single guild. Messages
	// from other guilds are logged and ignored.
	GuildID string `json:"guild_id" yaml:"guild_id" mapstructure:"guild_id"`

	GatewayIntents discordgo.Intent `json:"gateway_intents" yaml:"gateway_intents" mapstructure:"gateway_intents"`
}

// SpireConfig holds the Bugout Spire journal connection settings.
type SpireConfig struct {
	URL string `json:"url" yaml:"url" mapstructure:"url" validate:"required,http_url"`

	AccessToken string `json:"-" yaml:"access_token" mapstructure:"access_token" validate:"required"`

	// JournalID is the journal holding the bot's knowledge text and
	// prompt entries.
	JournalID string `json:"journal_id" yaml:"journal_id" mapstructure:"journal_id" validate:"required"`
}

// OpenAIConfig holds the OpenAI credentials and model selection.
type OpenAIConfig struct {
	Token string `json:"-" yaml:"token" mapstructure:"token" validate:"required"`

	EmbeddingModel  openai.EmbeddingModel `json:"embedding_model" yaml:"embedding_model" mapstructure:"embedding_model"`
	CompletionModel string                `json:"completion_model" yaml:"completion_model" mapstructure:"completion_model"`
}

// DefaultConfig returns a Config with default values set. Credentials
// and identifiers still have to be provided by the caller.
func DefaultConfig() *Config {
	logLevel := &slog.LevelVar{}
	logLevel.Set(slog.LevelInfo)
	return &Config{
		LogLevel: logLevel,
		Discord: DiscordConfig{
			GatewayIntents: DefaultGatewayIntent,
		},
		Spire: SpireConfig{
			URL: DefaultSpireURL,
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel:  DefaultEmbeddingModel,
			CompletionModel: DefaultCompletionModel,
		},
		RefreshInterval: DefaultRefreshInterval,
		ShutdownTimeout: 30 * time.Second,
	}
}
