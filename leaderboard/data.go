package leaderboard

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Canned user-facing messages, chosen by the most specific applicable
// condition. Collaborator failures and genuinely missing data are
// deliberately indistinguishable to the end user.
const (
	MessageLeaderboardNotFound = "Leaderboard not found"
	MessagePositionNotFound    = "Leaderboard position not found"
	MessageRankNotFound        = "Rank not found"
	MessageChannelNotFound     = "Discord channel not found"
	MessageGuildNotFound       = "Discord guild not found"
	MessageAccessDenied        = "Access denied"
	MessageInternalServerError = "Internal server error"
)

// queryRegexp matches characters that are never valid in free-text
// input forwarded to the engine API.
var queryRegexp = regexp.MustCompile("[\\[\\]@#$%^&?;`/]")

// LeaderboardInfo is the descriptive metadata the engine API returns for
// a leaderboard. It's an immutable snapshot - the bot caches it transiently
// on linked leaderboards but never owns or mutates it.
type LeaderboardInfo struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	UsersCount    int        `json:"users_count"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// Score is one ranked leaderboard entry. PointsData is an open-ended
// bag of annotations (completion flags, caps, progress counters, and an
// optional nested score_details map describing display formatting) -
// every key is optional and absence must degrade gracefully.
type Score struct {
	Address    string         `json:"address"`
	Rank       int            `json:"rank"`
	Score      int64          `json:"score"`
	PointsData map[string]any `json:"points_data"`
}

// ConfigCommand renames a built-in slash command for one guild
// (origin = built-in name, renamed = what the guild sees).
type ConfigCommand struct {
	Origin  string `json:"origin"`
	Renamed string `json:"renamed"`
}

// ConfigLeaderboard links one leaderboard to a guild. ChannelIDs lists the
// channels where the leaderboard is active; an empty list means the
// leaderboard is not bound to any channel for routing purposes.
type ConfigLeaderboard struct {
	LeaderboardID uuid.UUID `json:"leaderboard_id"`
	ShortName     string    `json:"short_name"`
	ChannelIDs    []string  `json:"channel_ids"`

	// Transient snapshot from the engine API, refreshed at startup
	// and on link.
	LeaderboardInfo *LeaderboardInfo `json:"leaderboard_info,omitempty"`
}

// ConfigRole is a guild role permitted to run administrative commands.
type ConfigRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GuildConfig is the per-guild configuration persisted as a single Brood
// resource. Type carries the resource type tag so round trips through
// Brood are lossless.
type GuildConfig struct {
	Type            string              `json:"type"`
	DiscordServerID string              `json:"discord_server_id"`
	AuthRoles       []ConfigRole        `json:"discord_auth_roles"`
	Leaderboards    []ConfigLeaderboard `json:"leaderboards"`
	Commands        []ConfigCommand     `json:"commands,omitempty"`
	ThumbnailURL    string              `json:"thumbnail_url,omitempty"`
}

// GuildConfigResource pairs a GuildConfig with the ID of its backing Brood
// resource. ResourceID is nil until the config is first persisted, after
// which it never changes.
type GuildConfigResource struct {
	ResourceID *uuid.UUID
	Config     GuildConfig
}

// UserIdentity is a user-registered identifier (an address, NFT, class,
// etc.) the engine API accepts as a position lookup key. Each identity is
// persisted as its own Brood resource.
type UserIdentity struct {
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	Identifier string     `json:"identifier"`
	Name       string     `json:"name"`
}

// validateQueryInput rejects free-text input containing restricted
// characters before it's interpolated into an engine API query.
func validateQueryInput(input string) bool {
	return !queryRegexp.MatchString(input)
}
