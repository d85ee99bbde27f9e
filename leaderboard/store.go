package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// infoFetchConcurrency caps in-flight engine info requests during bulk
// refreshes; the engine client's rate limiter paces them further.
const infoFetchConcurrency = 8

var (
	// ErrLeaderboardAlreadyLinked indicates the guild already has a
	// leaderboard with the same ID linked.
	ErrLeaderboardAlreadyLinked = errors.New("leaderboard already linked")

	// ErrLeaderboardNotFound indicates the engine API has no
	// leaderboard with the given ID.
	ErrLeaderboardNotFound = errors.New("leaderboard not found")

	// ErrLeaderboardNotLinked indicates the guild has no linked
	// leaderboard with the given ID.
	ErrLeaderboardNotLinked = errors.New("leaderboard not linked")

	// ErrIdentityExists indicates the user already registered the same
	// identifier.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrIdentityNotFound indicates the user has no identity with the
	// given identifier.
	ErrIdentityNotFound = errors.New("identity not found")
)

// userIdentityResource is the Brood payload shape for a single user
// identity record.
type userIdentityResource struct {
	Type          string `json:"type"`
	DiscordUserID string `json:"discord_user_id"`
	Identifier    string `json:"identifier"`
	Name          string `json:"name"`
}

// ConfigStore is the in-memory mirror of guild configurations and user
// identities persisted in Brood. Brood remains the system of record:
// every mutation is written remotely first, and the in-memory state is
// only updated after the remote write is confirmed, so a failed write
// leaves the mirror unchanged.
type ConfigStore struct {
	mu             sync.RWMutex
	guildConfigs   map[string]*GuildConfigResource
	userIdentities map[string][]UserIdentity

	brood  *BroodClient
	engine *EngineClient
	logger *slog.Logger
}

func newConfigStore(
	brood *BroodClient,
	engine *EngineClient,
	logger *slog.Logger,
) *ConfigStore {
	return &ConfigStore{
		guildConfigs:   map[string]*GuildConfigResource{},
		userIdentities: map[string][]UserIdentity{},
		brood:          brood,
		engine:         engine,
		logger:         logger.With(loggerNameKey, "config_store"),
	}
}

// BulkLoad populates the mirror from Brood and backfills leaderboard
// metadata from the engine API. Malformed resources are skipped with a
// warning and a fetch failure on any collaborator leaves the affected
// portion of the mirror empty rather than aborting startup.
func (s *ConfigStore) BulkLoad(ctx context.Context) {
	configs, err := s.brood.ListResources(ctx, ResourceTypeGuildConfig, nil)
	if err != nil {
		s.logger.Warn(
			"unable to fetch guild configurations",
			tint.Err(err),
		)
	} else {
		for _, resource := range configs.Resources {
			s.setGuildConfigFromResource(resource)
		}
		s.logger.Info(
			"fetched guild configurations",
			"count", len(configs.Resources),
		)
	}

	identities, err := s.brood.ListResources(ctx, ResourceTypeUserIdentity, nil)
	if err != nil {
		s.logger.Warn("unable to fetch user identities", tint.Err(err))
	} else {
		for _, resource := range identities.Resources {
			s.setUserIdentityFromResource(resource)
		}
		s.logger.Info(
			"fetched user identities",
			"count", len(identities.Resources),
		)
	}

	s.loadLeaderboardInfo(ctx)
}

func (s *ConfigStore) setGuildConfigFromResource(resource BroodResource) {
	var config GuildConfig
	if err := json.Unmarshal(resource.ResourceData, &config); err != nil {
		s.logger.Warn(
			"malformed guild config resource",
			"resource_id", resource.ID,
			tint.Err(err),
		)
		return
	}
	if config.DiscordServerID == "" {
		s.logger.Warn(
			"guild config resource missing server ID",
			"resource_id", resource.ID,
		)
		return
	}
	resourceID := resource.ID
	s.mu.Lock()
	s.guildConfigs[config.DiscordServerID] = &GuildConfigResource{
		ResourceID: &resourceID,
		Config:     config,
	}
	s.mu.Unlock()
}

func (s *ConfigStore) setUserIdentityFromResource(resource BroodResource) {
	var payload userIdentityResource
	if err := json.Unmarshal(resource.ResourceData, &payload); err != nil {
		s.logger.Warn(
			"malformed user identity resource",
			"resource_id", resource.ID,
			tint.Err(err),
		)
		return
	}
	if payload.DiscordUserID == "" || payload.Identifier == "" {
		s.logger.Warn(
			"user identity resource missing required fields",
			"resource_id", resource.ID,
		)
		return
	}
	resourceID := resource.ID
	s.mu.Lock()
	s.userIdentities[payload.DiscordUserID] = append(
		s.userIdentities[payload.DiscordUserID],
		UserIdentity{
			ResourceID: &resourceID,
			Identifier: payload.Identifier,
			Name:       payload.Name,
		},
	)
	s.mu.Unlock()
}

// loadLeaderboardInfo refreshes the transient engine metadata on every
// linked leaderboard. The engine client's rate limiter paces the
// requests.
func (s *ConfigStore) loadLeaderboardInfo(ctx context.Context) {
	type target struct {
		guildID       string
		leaderboardID uuid.UUID
	}
	var targets []target

	s.mu.RLock()
	for guildID, guildConfig := range s.guildConfigs {
		for _, leaderboard := range guildConfig.Config.Leaderboards {
			targets = append(
				targets,
				target{guildID: guildID, leaderboardID: leaderboard.LeaderboardID},
			)
		}
	}
	s.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(infoFetchConcurrency)
	for _, tgt := range targets {
		tgt := tgt
		g.Go(
			func() error {
				info, err := s.engine.LeaderboardInfo(ctx, tgt.leaderboardID)
				if err != nil {
					s.logger.Warn(
						"unable to fetch leaderboard info",
						"leaderboard_id", tgt.leaderboardID,
						tint.Err(err),
					)
					return nil
				}
				s.mu.Lock()
				if guildConfig, ok := s.guildConfigs[tgt.guildID]; ok {
					for i := range guildConfig.Config.Leaderboards {
						if guildConfig.Config.Leaderboards[i].LeaderboardID == tgt.leaderboardID {
							guildConfig.Config.Leaderboards[i].LeaderboardInfo = info
						}
					}
				}
				s.mu.Unlock()
				return nil
			},
		)
	}
	_ = g.Wait()
}

// GuildConfig returns a snapshot of the given guild's configuration, or
// false if the guild has none.
func (s *ConfigStore) GuildConfig(guildID string) (GuildConfigResource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guildConfig, ok := s.guildConfigs[guildID]
	if !ok {
		return GuildConfigResource{}, false
	}
	return copyGuildConfigResource(guildConfig), true
}

// GuildIDs returns the IDs of all guilds with a stored configuration.
func (s *ConfigStore) GuildIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.guildConfigs))
	for guildID := range s.guildConfigs {
		ids = append(ids, guildID)
	}
	return ids
}

// Leaderboards returns a snapshot of the guild's linked leaderboards.
func (s *ConfigStore) Leaderboards(guildID string) []ConfigLeaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guildConfig, ok := s.guildConfigs[guildID]
	if !ok {
		return nil
	}
	return copyLeaderboards(guildConfig.Config.Leaderboards)
}

// AuthRoles returns a snapshot of the guild's authorized roles.
func (s *ConfigStore) AuthRoles(guildID string) []ConfigRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guildConfig, ok := s.guildConfigs[guildID]
	if !ok {
		return nil
	}
	roles := make([]ConfigRole, len(guildConfig.Config.AuthRoles))
	copy(roles, guildConfig.Config.AuthRoles)
	return roles
}

// Commands returns the guild's slash command renames, if any.
func (s *ConfigStore) Commands(guildID string) []ConfigCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guildConfig, ok := s.guildConfigs[guildID]
	if !ok {
		return nil
	}
	commands := make([]ConfigCommand, len(guildConfig.Config.Commands))
	copy(commands, guildConfig.Config.Commands)
	return commands
}

// ThumbnailURL returns the guild's embed thumbnail override, or the
// given fallback.
func (s *ConfigStore) ThumbnailURL(guildID string, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if guildConfig, ok := s.guildConfigs[guildID]; ok {
		if guildConfig.Config.ThumbnailURL != "" {
			return guildConfig.Config.ThumbnailURL
		}
	}
	return fallback
}

// UserIdentities returns a snapshot of the user's registered identities.
func (s *ConfigStore) UserIdentities(userID string) []UserIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identities := make([]UserIdentity, len(s.userIdentities[userID]))
	copy(identities, s.userIdentities[userID])
	return identities
}

// LinkLeaderboard links a leaderboard to a guild. The leaderboard must
// not already be linked, and its metadata must be fetchable from the
// engine API, otherwise the link is aborted. On the first link for a
// guild a new Brood resource is created; subsequent links update the
// existing one.
func (s *ConfigStore) LinkLeaderboard(
	ctx context.Context,
	guildID string,
	leaderboard ConfigLeaderboard,
) (*ConfigLeaderboard, error) {
	s.mu.RLock()
	existing, hasConfig := s.guildConfigs[guildID]
	var updated []ConfigLeaderboard
	if hasConfig {
		for _, linked := range existing.Config.Leaderboards {
			if linked.LeaderboardID == leaderboard.LeaderboardID {
				s.mu.RUnlock()
				return nil, fmt.Errorf(
					"%w: %s",
					ErrLeaderboardAlreadyLinked,
					leaderboard.LeaderboardID,
				)
			}
		}
		updated = copyLeaderboards(existing.Config.Leaderboards)
	}
	s.mu.RUnlock()

	info, err := s.engine.LeaderboardInfo(ctx, leaderboard.LeaderboardID)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: %s: %v",
			ErrLeaderboardNotFound,
			leaderboard.LeaderboardID,
			err,
		)
	}
	leaderboard.LeaderboardInfo = info
	updated = append(updated, leaderboard)

	if err = s.persistLeaderboards(ctx, guildID, updated); err != nil {
		return nil, err
	}
	return &leaderboard, nil
}

// UnlinkLeaderboard removes a linked leaderboard from a guild. It is an
// error to unlink a leaderboard that isn't linked.
func (s *ConfigStore) UnlinkLeaderboard(
	ctx context.Context,
	guildID string,
	leaderboardID uuid.UUID,
) error {
	s.mu.RLock()
	existing, hasConfig := s.guildConfigs[guildID]
	if !hasConfig {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrLeaderboardNotLinked, leaderboardID)
	}

	found := false
	updated := make([]ConfigLeaderboard, 0, len(existing.Config.Leaderboards))
	for _, linked := range existing.Config.Leaderboards {
		if linked.LeaderboardID == leaderboardID {
			found = true
			continue
		}
		updated = append(updated, linked)
	}
	s.mu.RUnlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrLeaderboardNotLinked, leaderboardID)
	}
	return s.persistLeaderboards(ctx, guildID, updated)
}

// UpdateAuthorizedRoles merges the given roles into the guild's
// authorized role list, deduplicating by role ID, and returns the
// merged list.
func (s *ConfigStore) UpdateAuthorizedRoles(
	ctx context.Context,
	guildID string,
	roles []ConfigRole,
) ([]ConfigRole, error) {
	s.mu.RLock()
	existing, hasConfig := s.guildConfigs[guildID]

	var merged []ConfigRole
	seen := map[string]bool{}
	if hasConfig {
		for _, role := range existing.Config.AuthRoles {
			merged = append(merged, role)
			seen[role.ID] = true
		}
	}
	s.mu.RUnlock()

	for _, role := range roles {
		if !seen[role.ID] {
			merged = append(merged, role)
			seen[role.ID] = true
		}
	}

	err := s.persistGuildConfig(
		ctx,
		guildID,
		map[string]any{"discord_auth_roles": merged},
		func(config *GuildConfig) {
			config.AuthRoles = merged
		},
	)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateCommands replaces the guild's slash command renames.
func (s *ConfigStore) UpdateCommands(
	ctx context.Context,
	guildID string,
	commands []ConfigCommand,
) error {
	return s.persistGuildConfig(
		ctx,
		guildID,
		map[string]any{"commands": commands},
		func(config *GuildConfig) {
			config.Commands = commands
		},
	)
}

// UpdateThumbnailURL replaces the guild's embed thumbnail override.
func (s *ConfigStore) UpdateThumbnailURL(
	ctx context.Context,
	guildID string,
	thumbnailURL string,
) error {
	return s.persistGuildConfig(
		ctx,
		guildID,
		map[string]any{"thumbnail_url": thumbnailURL},
		func(config *GuildConfig) {
			config.ThumbnailURL = thumbnailURL
		},
	)
}

// AddUserIdentity registers a new identity for a user. Identifiers are
// matched case-insensitively and duplicates are rejected.
func (s *ConfigStore) AddUserIdentity(
	ctx context.Context,
	userID string,
	identifier string,
	name string,
) (*UserIdentity, error) {
	s.mu.RLock()
	for _, identity := range s.userIdentities[userID] {
		if strings.EqualFold(identity.Identifier, identifier) {
			s.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrIdentityExists, identifier)
		}
	}
	s.mu.RUnlock()

	resource, err := s.brood.CreateResource(
		ctx, userIdentityResource{
			Type:          ResourceTypeUserIdentity,
			DiscordUserID: userID,
			Identifier:    identifier,
			Name:          name,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create identity resource: %w", err)
	}

	resourceID := resource.ID
	identity := UserIdentity{
		ResourceID: &resourceID,
		Identifier: identifier,
		Name:       name,
	}
	s.mu.Lock()
	s.userIdentities[userID] = append(s.userIdentities[userID], identity)
	s.mu.Unlock()
	return &identity, nil
}

// RemoveUserIdentity deletes one of the user's identities, matched
// case-insensitively by identifier.
func (s *ConfigStore) RemoveUserIdentity(
	ctx context.Context,
	userID string,
	identifier string,
) (*UserIdentity, error) {
	s.mu.RLock()
	var target *UserIdentity
	for i := range s.userIdentities[userID] {
		if strings.EqualFold(s.userIdentities[userID][i].Identifier, identifier) {
			identity := s.userIdentities[userID][i]
			target = &identity
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identifier)
	}
	if target.ResourceID != nil {
		if _, err := s.brood.DeleteResource(ctx, *target.ResourceID); err != nil {
			return nil, fmt.Errorf("unable to delete identity resource: %w", err)
		}
	}

	s.mu.Lock()
	remaining := make([]UserIdentity, 0, len(s.userIdentities[userID]))
	for _, identity := range s.userIdentities[userID] {
		if strings.EqualFold(identity.Identifier, identifier) {
			continue
		}
		remaining = append(remaining, identity)
	}
	if len(remaining) == 0 {
		delete(s.userIdentities, userID)
	} else {
		s.userIdentities[userID] = remaining
	}
	s.mu.Unlock()
	return target, nil
}

// persistLeaderboards writes the full leaderboard list for a guild and
// commits it to the mirror on success.
func (s *ConfigStore) persistLeaderboards(
	ctx context.Context,
	guildID string,
	leaderboards []ConfigLeaderboard,
) error {
	return s.persistGuildConfig(
		ctx,
		guildID,
		map[string]any{"leaderboards": leaderboards},
		func(config *GuildConfig) {
			config.Leaderboards = leaderboards
		},
	)
}

// persistGuildConfig writes a guild config change to Brood and, only
// after the remote write succeeds, applies it to the in-memory mirror.
// Guilds without an existing resource get a full resource created from
// the updated state.
func (s *ConfigStore) persistGuildConfig(
	ctx context.Context,
	guildID string,
	update map[string]any,
	apply func(config *GuildConfig),
) error {
	s.mu.RLock()
	existing, hasConfig := s.guildConfigs[guildID]
	var resourceID *uuid.UUID
	var config GuildConfig
	if hasConfig {
		snapshot := copyGuildConfigResource(existing)
		resourceID = snapshot.ResourceID
		config = snapshot.Config
	} else {
		config = GuildConfig{
			Type:            ResourceTypeGuildConfig,
			DiscordServerID: guildID,
			AuthRoles:       []ConfigRole{},
			Leaderboards:    []ConfigLeaderboard{},
		}
	}
	s.mu.RUnlock()

	apply(&config)

	if resourceID != nil {
		if _, err := s.brood.UpdateResource(ctx, *resourceID, update, nil); err != nil {
			return fmt.Errorf("unable to update guild config resource: %w", err)
		}
	} else {
		resource, err := s.brood.CreateResource(ctx, config)
		if err != nil {
			return fmt.Errorf("unable to create guild config resource: %w", err)
		}
		createdID := resource.ID
		resourceID = &createdID
	}

	s.mu.Lock()
	s.guildConfigs[guildID] = &GuildConfigResource{
		ResourceID: resourceID,
		Config:     config,
	}
	s.mu.Unlock()
	return nil
}

func copyGuildConfigResource(resource *GuildConfigResource) GuildConfigResource {
	snapshot := GuildConfigResource{
		ResourceID: resource.ResourceID,
		Config:     resource.Config,
	}
	snapshot.Config.AuthRoles = make([]ConfigRole, len(resource.Config.AuthRoles))
	copy(snapshot.Config.AuthRoles, resource.Config.AuthRoles)
	snapshot.Config.Leaderboards = copyLeaderboards(resource.Config.Leaderboards)
	snapshot.Config.Commands = make([]ConfigCommand, len(resource.Config.Commands))
	copy(snapshot.Config.Commands, resource.Config.Commands)
	return snapshot
}

func copyLeaderboards(leaderboards []ConfigLeaderboard) []ConfigLeaderboard {
	copied := make([]ConfigLeaderboard, len(leaderboards))
	copy(copied, leaderboards)
	for i := range copied {
		copied[i].ChannelIDs = append([]string(nil), copied[i].ChannelIDs...)
	}
	return copied
}
