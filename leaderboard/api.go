package leaderboard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const xRequestIDHeader = "X-Request-ID"

// API serves the bot's HTTP endpoints: health check, version info and
// an overview of guilds with their channel/leaderboard bindings.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	bot        *Bot
}

// newAPI creates the HTTP API for the given bot.
//
// The returned API is not listening yet; call [API.Serve] to start it.
func newAPI(b *Bot, config *APIConfig) (*API, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		bot:    b,
	}
	api.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	api.httpServer = httpServer

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		cors.New(config.CORS.GINConfig()),
	)

	r.GET("/ping", api.pingHandler)
	r.GET("/version", api.versionHandler)
	r.GET("/guilds", api.guildsHandler)

	return api, nil
}

// Serve starts the HTTP server and blocks until the server stops.
func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", a.config.Listen, err)
	}
	a.listener = ln
	a.logger.InfoContext(ctx, "api listening", "address", ln.Addr().String())
	return a.httpServer.Serve(a.listener)
}

type pingResponse struct {
	Status string `json:"status"`
}

type versionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type channelLeaderboardResponse struct {
	LeaderboardID string `json:"leaderboard_id"`
	ShortName     string `json:"short_name"`
}

type guildChannelResponse struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	Leaderboards []channelLeaderboardResponse `json:"leaderboards"`
}

type guildResponse struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Channels []guildChannelResponse `json:"channels"`
}

type guildsResponse struct {
	Guilds []guildResponse `json:"guilds"`
}

func (a *API) pingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, pingResponse{Status: "ok"})
}

func (a *API) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, versionResponse{Version: Version, Commit: CommitSHA})
}

// guildsHandler lists the guilds the bot is a member of, with each guild's
// channels and the leaderboards linked to them. Leaderboards not bound to
// any channel are reported under a channel with an empty ID.
func (a *API) guildsHandler(c *gin.Context) {
	logger := ginContextLogger(c)

	session := a.bot.discord.session
	if session == nil {
		c.JSON(
			http.StatusServiceUnavailable,
			gin.H{"error": "discord session not available"},
		)
		return
	}

	userGuilds, err := session.UserGuilds(200, "", "", false)
	if err != nil {
		logger.Error("unable to fetch bot guilds", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "unable to fetch guilds"},
		)
		return
	}

	rv := guildsResponse{Guilds: make([]guildResponse, 0, len(userGuilds))}
	for _, userGuild := range userGuilds {
		guild := guildResponse{
			ID:       userGuild.ID,
			Name:     userGuild.Name,
			Channels: []guildChannelResponse{},
		}

		bindings := channelBindings(a.bot.store.Leaderboards(userGuild.ID))
		if unbound, ok := bindings[""]; ok {
			guild.Channels = append(
				guild.Channels,
				guildChannelResponse{ID: "", Name: "", Leaderboards: unbound},
			)
		}

		channels, err := session.GuildChannels(userGuild.ID)
		if err != nil {
			logger.Warn(
				"unable to fetch guild channels",
				"guild_id", userGuild.ID,
				tint.Err(err),
			)
		}
		for _, channel := range channels {
			linked, ok := bindings[channel.ID]
			if !ok {
				continue
			}
			guild.Channels = append(
				guild.Channels,
				guildChannelResponse{
					ID:           channel.ID,
					Name:         channel.Name,
					Leaderboards: linked,
				},
			)
		}

		rv.Guilds = append(rv.Guilds, guild)
	}

	c.JSON(http.StatusOK, rv)
}

// channelBindings groups the guild's leaderboards by the channel IDs they
// are bound to. Leaderboards without channels end up under the "" key.
func channelBindings(
	leaderboards []ConfigLeaderboard,
) map[string][]channelLeaderboardResponse {
	bindings := map[string][]channelLeaderboardResponse{}
	for _, lb := range leaderboards {
		entry := channelLeaderboardResponse{
			LeaderboardID: lb.LeaderboardID.String(),
			ShortName:     lb.ShortName,
		}
		if len(lb.ChannelIDs) == 0 {
			bindings[""] = append(bindings[""], entry)
			continue
		}
		for _, channelID := range lb.ChannelIDs {
			bindings[channelID] = append(bindings[channelID], entry)
		}
	}
	return bindings
}

// requestIDMiddleware assigns a unique request ID to each incoming request
// and echoes it back in the X-Request-ID response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included
// and stores it in the context for subsequent calls.
func ginContextLogger(c *gin.Context) *slog.Logger {
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}
	requestLogger := slog.Default().With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request with its duration and response
// status once the handler chain has finished.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

func generateRandomHexString(length int) (string, error) {
	if length%2 != 0 {
		length++
	}
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
