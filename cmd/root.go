package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/bugout-dev/discord-bots/leaderboard"
	"github.com/bugout-dev/discord-bots/librarian"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg          = leaderboard.DefaultConfig()
	librarianCfg = librarian.DefaultConfig()
	configFile   string
)

var rootCmd = &cobra.Command{
	Use: "discord-bots [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		decodeHook := viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		)
		if err := viper.UnmarshalKey("leaderboard", cfg, decodeHook); err != nil {
			log.Fatalln(err)
		}
		if err := viper.UnmarshalKey("librarian", librarianCfg, decodeHook); err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("leaderboard.log_level", leaderboard.DefaultLogLevel.String())
	viper.SetDefault("leaderboard.startup_timeout", leaderboard.DefaultStartupTimeout)
	viper.SetDefault("leaderboard.shutdown_timeout", leaderboard.DefaultShutdownTimeout)
	viper.SetDefault("leaderboard.moonstream_url", leaderboard.DefaultMoonstreamURL)

	// Leaderboard: Discord config
	viper.SetDefault("leaderboard.discord.token", "")
	viper.SetDefault("leaderboard.discord.application_id", "")
	viper.SetDefault(
		"leaderboard.discord.activity_status",
		leaderboard.DefaultActivityStatus,
	)
	viper.SetDefault("leaderboard.discord.support_link", leaderboard.DefaultSupportLink)
	viper.SetDefault(
		"leaderboard.discord.thumbnail_url",
		leaderboard.DefaultThumbnailURL,
	)
	viper.SetDefault(
		"leaderboard.discord.log_level",
		leaderboard.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"leaderboard.discord.discordgo_log_level",
		leaderboard.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"leaderboard.discord.gateway_intents",
		leaderboard.DefaultDiscordGatewayIntent,
	)

	// Leaderboard: Brood and engine clients
	viper.SetDefault("leaderboard.brood.url", leaderboard.DefaultBroodURL)
	viper.SetDefault("leaderboard.brood.access_token", "")
	viper.SetDefault("leaderboard.brood.application_id", "")
	viper.SetDefault(
		"leaderboard.brood.max_requests_per_second",
		leaderboard.DefaultRequestsPerSecond,
	)
	viper.SetDefault("leaderboard.engine.url", leaderboard.DefaultEngineURL)
	viper.SetDefault(
		"leaderboard.engine.max_requests_per_second",
		leaderboard.DefaultRequestsPerSecond,
	)

	// Leaderboard: API config
	viper.SetDefault("leaderboard.api.enabled", false)
	viper.SetDefault("leaderboard.api.listen", leaderboard.DefaultAPIListen)
	viper.SetDefault("leaderboard.api.listen_network", "tcp")
	viper.SetDefault(
		"leaderboard.api.log_level",
		leaderboard.DefaultAPILogLevel.String(),
	)
	viper.SetDefault("leaderboard.api.read_timeout", leaderboard.DefaultReadTimeout)
	viper.SetDefault(
		"leaderboard.api.read_header_timeout",
		leaderboard.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("leaderboard.api.write_timeout", leaderboard.DefaultWriteTimeout)
	viper.SetDefault("leaderboard.api.idle_timeout", leaderboard.DefaultIdleTimeout)

	// Leaderboard: API CORS config
	viper.SetDefault(
		"leaderboard.api.cors.allow_headers",
		leaderboard.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"leaderboard.api.cors.allow_methods",
		leaderboard.DefaultCORSAllowMethods,
	)
	viper.SetDefault("leaderboard.api.cors.expose_headers", []string{})
	viper.SetDefault("leaderboard.api.cors.allow_origins", []string{})
	viper.SetDefault("leaderboard.api.cors.max_age", leaderboard.DefaultCORSMaxAge)
	viper.SetDefault("leaderboard.api.cors.allow_credentials", true)

	// Librarian config
	viper.SetDefault("librarian.log_level", leaderboard.DefaultLogLevel.String())
	viper.SetDefault(
		"librarian.refresh_interval",
		librarian.DefaultRefreshInterval,
	)
	viper.SetDefault(
		"librarian.shutdown_timeout",
		leaderboard.DefaultShutdownTimeout,
	)
	viper.SetDefault("librarian.discord.token", "")
	viper.SetDefault("librarian.discord.application_id", "")
	viper.SetDefault("librarian.discord.username", "")
	viper.SetDefault("librarian.discord.guild_id", "")
	viper.SetDefault(
		"librarian.discord.gateway_intents",
		librarian.DefaultGatewayIntent,
	)
	viper.SetDefault("librarian.spire.url", librarian.DefaultSpireURL)
	viper.SetDefault("librarian.spire.access_token", "")
	viper.SetDefault("librarian.spire.journal_id", "")
	viper.SetDefault("librarian.openai.token", "")
	viper.SetDefault(
		"librarian.openai.embedding_model",
		string(librarian.DefaultEmbeddingModel),
	)
	viper.SetDefault(
		"librarian.openai.completion_model",
		librarian.DefaultCompletionModel,
	)

	envPrefix := os.Getenv(leaderboard.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = leaderboard.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"leaderboard.api.cors.allow_headers",
		viper.GetStringSlice("leaderboard.api.cors.allow_headers"),
	)
	viper.Set(
		"leaderboard.api.cors.allow_origins",
		viper.GetStringSlice("leaderboard.api.cors.allow_origins"),
	)
	viper.Set(
		"leaderboard.api.cors.allow_methods",
		viper.GetStringSlice("leaderboard.api.cors.allow_methods"),
	)
	viper.Set(
		"leaderboard.api.cors.expose_headers",
		viper.GetStringSlice("leaderboard.api.cors.expose_headers"),
	)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
