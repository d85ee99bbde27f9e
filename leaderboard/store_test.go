package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(
		slog.NewTextHandler(
			io.Discard,
			&slog.HandlerOptions{Level: slog.LevelError},
		),
	)
}

func newTestStore(
	t *testing.T,
	brood http.Handler,
	engine http.Handler,
) *ConfigStore {
	t.Helper()

	broodServer := httptest.NewServer(brood)
	t.Cleanup(broodServer.Close)

	engineServer := httptest.NewServer(engine)
	t.Cleanup(engineServer.Close)

	logger := testLogger(t)
	broodClient := NewBroodClient(
		BroodConfig{
			URL:                  broodServer.URL,
			AccessToken:          "brood-token",
			ApplicationID:        "app-id",
			MaxRequestsPerSecond: 1000,
		},
		nil,
		logger,
	)
	engineClient := NewEngineClient(
		EngineConfig{
			URL:                  engineServer.URL,
			MaxRequestsPerSecond: 1000,
		},
		nil,
		logger,
	)
	return newConfigStore(broodClient, engineClient, logger)
}

// engineInfoHandler serves leaderboard info for the given IDs and 404s
// everything else.
func engineInfoHandler(infos map[uuid.UUID]LeaderboardInfo) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.URL.Query().Get("leaderboard_id"))
			if err != nil {
				http.Error(w, "bad leaderboard_id", http.StatusBadRequest)
				return
			}
			info, ok := infos[id]
			if !ok {
				http.Error(w, "leaderboard not found", http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(info)
		},
	)
}

// broodRecorder is an in-memory Brood double covering the resource CRUD
// the store uses.
type broodRecorder struct {
	t          *testing.T
	failWrites bool

	createdPayloads []json.RawMessage
	updates         []broodUpdate
}

func (b *broodRecorder) handler() http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && b.failWrites {
				http.Error(w, "brood unavailable", http.StatusInternalServerError)
				return
			}
			switch {
			case r.Method == http.MethodGet:
				_ = json.NewEncoder(w).Encode(BroodResources{})
			case r.Method == http.MethodPost:
				var body struct {
					ApplicationID string          `json:"application_id"`
					ResourceData  json.RawMessage `json:"resource_data"`
				}
				require.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(b.t, "app-id", body.ApplicationID)
				b.createdPayloads = append(b.createdPayloads, body.ResourceData)
				_ = json.NewEncoder(w).Encode(
					BroodResource{ID: uuid.New(), ResourceData: body.ResourceData},
				)
			case r.Method == http.MethodPut:
				var update broodUpdate
				require.NoError(b.t, json.NewDecoder(r.Body).Decode(&update))
				b.updates = append(b.updates, update)
				_ = json.NewEncoder(w).Encode(BroodResource{ID: uuid.New()})
			case r.Method == http.MethodDelete:
				parts := strings.Split(r.URL.Path, "/")
				_ = json.NewEncoder(w).Encode(
					map[string]string{"id": parts[len(parts)-1]},
				)
			default:
				http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			}
		},
	)
}

func TestLinkLeaderboard(t *testing.T) {
	leaderboardID := uuid.New()
	brood := &broodRecorder{t: t}
	store := newTestStore(
		t,
		brood.handler(),
		engineInfoHandler(
			map[uuid.UUID]LeaderboardInfo{
				leaderboardID: {ID: leaderboardID, Title: "Test Board"},
			},
		),
	)

	linked, err := store.LinkLeaderboard(
		context.Background(), "guild-1", ConfigLeaderboard{
			LeaderboardID: leaderboardID,
			ShortName:     "test",
			ChannelIDs:    []string{"channel-1"},
		},
	)
	require.NoError(t, err)
	require.NotNil(t, linked.LeaderboardInfo)
	assert.Equal(t, "Test Board", linked.LeaderboardInfo.Title)

	leaderboards := store.Leaderboards("guild-1")
	require.Len(t, leaderboards, 1)
	assert.Equal(t, "test", leaderboards[0].ShortName)

	// the new leaderboard is routable by its channel
	result := routeChannel(leaderboards, "channel-1")
	assert.Equal(t, leaderboardID, result.LeaderboardID)

	require.Len(t, brood.createdPayloads, 1)
	var persisted GuildConfig
	require.NoError(t, json.Unmarshal(brood.createdPayloads[0], &persisted))
	assert.Equal(t, ResourceTypeGuildConfig, persisted.Type)
	assert.Equal(t, "guild-1", persisted.DiscordServerID)
	require.Len(t, persisted.Leaderboards, 1)
}

func TestLinkLeaderboardRejectsDuplicate(t *testing.T) {
	leaderboardID := uuid.New()
	brood := &broodRecorder{t: t}
	store := newTestStore(
		t,
		brood.handler(),
		engineInfoHandler(
			map[uuid.UUID]LeaderboardInfo{
				leaderboardID: {ID: leaderboardID, Title: "Test Board"},
			},
		),
	)

	ctx := context.Background()
	link := ConfigLeaderboard{LeaderboardID: leaderboardID, ShortName: "test"}
	_, err := store.LinkLeaderboard(ctx, "guild-1", link)
	require.NoError(t, err)

	_, err = store.LinkLeaderboard(ctx, "guild-1", link)
	require.ErrorIs(t, err, ErrLeaderboardAlreadyLinked)
	assert.Len(t, store.Leaderboards("guild-1"), 1)
}

func TestLinkLeaderboardUnknownLeaderboard(t *testing.T) {
	brood := &broodRecorder{t: t}
	store := newTestStore(t, brood.handler(), engineInfoHandler(nil))

	_, err := store.LinkLeaderboard(
		context.Background(), "guild-1", ConfigLeaderboard{
			LeaderboardID: uuid.New(),
			ShortName:     "test",
		},
	)
	require.ErrorIs(t, err, ErrLeaderboardNotFound)
	assert.Empty(t, store.Leaderboards("guild-1"))
	assert.Empty(t, brood.createdPayloads)
}

func TestLinkLeaderboardWriteFailureLeavesMirrorUnchanged(t *testing.T) {
	leaderboardID := uuid.New()
	brood := &broodRecorder{t: t, failWrites: true}
	store := newTestStore(
		t,
		brood.handler(),
		engineInfoHandler(
			map[uuid.UUID]LeaderboardInfo{
				leaderboardID: {ID: leaderboardID},
			},
		),
	)

	_, err := store.LinkLeaderboard(
		context.Background(), "guild-1", ConfigLeaderboard{
			LeaderboardID: leaderboardID,
			ShortName:     "test",
		},
	)
	require.Error(t, err)
	assert.Empty(t, store.Leaderboards("guild-1"))

	guildConfig, ok := store.GuildConfig("guild-1")
	assert.False(t, ok, "guild config should not exist: %+v", guildConfig)
}

func TestUnlinkLeaderboard(t *testing.T) {
	leaderboardID := uuid.New()
	brood := &broodRecorder{t: t}
	store := newTestStore(
		t,
		brood.handler(),
		engineInfoHandler(
			map[uuid.UUID]LeaderboardInfo{
				leaderboardID: {ID: leaderboardID},
			},
		),
	)

	ctx := context.Background()
	_, err := store.LinkLeaderboard(
		ctx,
		"guild-1",
		ConfigLeaderboard{LeaderboardID: leaderboardID, ShortName: "test"},
	)
	require.NoError(t, err)

	t.Run(
		"unknown leaderboard", func(t *testing.T) {
			err := store.UnlinkLeaderboard(ctx, "guild-1", uuid.New())
			require.ErrorIs(t, err, ErrLeaderboardNotLinked)
			assert.Len(t, store.Leaderboards("guild-1"), 1)
		},
	)

	t.Run(
		"unknown guild", func(t *testing.T) {
			err := store.UnlinkLeaderboard(ctx, "guild-2", leaderboardID)
			require.ErrorIs(t, err, ErrLeaderboardNotLinked)
		},
	)

	t.Run(
		"linked leaderboard", func(t *testing.T) {
			err := store.UnlinkLeaderboard(ctx, "guild-1", leaderboardID)
			require.NoError(t, err)
			assert.Empty(t, store.Leaderboards("guild-1"))

			require.NotEmpty(t, brood.updates)
			last := brood.updates[len(brood.updates)-1]
			assert.Contains(t, last.Update, "leaderboards")
		},
	)
}

func TestUpdateAuthorizedRolesMergesByID(t *testing.T) {
	brood := &broodRecorder{t: t}
	store := newTestStore(t, brood.handler(), engineInfoHandler(nil))

	ctx := context.Background()
	merged, err := store.UpdateAuthorizedRoles(
		ctx, "guild-1", []ConfigRole{
			{ID: "100", Name: "admins"},
			{ID: "200", Name: "mods"},
		},
	)
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	merged, err = store.UpdateAuthorizedRoles(
		ctx, "guild-1", []ConfigRole{
			{ID: "200", Name: "mods-renamed"},
			{ID: "300", Name: "helpers"},
		},
	)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	// existing entry wins on conflicting IDs
	assert.Equal(t, "mods", merged[1].Name)
	assert.Equal(t, "300", merged[2].ID)

	assert.Equal(t, merged, store.AuthRoles("guild-1"))
}

func TestAddAndRemoveUserIdentity(t *testing.T) {
	brood := &broodRecorder{t: t}
	store := newTestStore(t, brood.handler(), engineInfoHandler(nil))

	ctx := context.Background()
	identity, err := store.AddUserIdentity(ctx, "user-1", "0xABC", "main")
	require.NoError(t, err)
	require.NotNil(t, identity.ResourceID)

	_, err = store.AddUserIdentity(ctx, "user-1", "0xabc", "duplicate")
	require.ErrorIs(t, err, ErrIdentityExists)

	identities := store.UserIdentities("user-1")
	require.Len(t, identities, 1)
	assert.Equal(t, "main", identities[0].Name)

	_, err = store.RemoveUserIdentity(ctx, "user-1", "missing")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	removed, err := store.RemoveUserIdentity(ctx, "user-1", "0XABC")
	require.NoError(t, err)
	assert.Equal(t, "main", removed.Name)
	assert.Empty(t, store.UserIdentities("user-1"))
}

func TestBulkLoadSkipsMalformedResources(t *testing.T) {
	guildResourceID := uuid.New()
	leaderboardID := uuid.New()

	validConfig, err := json.Marshal(
		GuildConfig{
			Type:            ResourceTypeGuildConfig,
			DiscordServerID: "guild-1",
			Leaderboards: []ConfigLeaderboard{
				{LeaderboardID: leaderboardID, ShortName: "test"},
			},
		},
	)
	require.NoError(t, err)

	brood := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("type") {
			case ResourceTypeGuildConfig:
				_ = json.NewEncoder(w).Encode(
					BroodResources{
						Resources: []BroodResource{
							{ID: guildResourceID, ResourceData: validConfig},
							{
								ID:           uuid.New(),
								ResourceData: json.RawMessage(`"not an object"`),
							},
							{
								ID:           uuid.New(),
								ResourceData: json.RawMessage(`{"leaderboards": []}`),
							},
						},
					},
				)
			case ResourceTypeUserIdentity:
				_ = json.NewEncoder(w).Encode(
					BroodResources{
						Resources: []BroodResource{
							{
								ID: uuid.New(),
								ResourceData: json.RawMessage(
									`{"discord_user_id":"user-1","identifier":"0xABC","name":"main"}`,
								),
							},
							{
								ID:           uuid.New(),
								ResourceData: json.RawMessage(`{"identifier":"0xdef"}`),
							},
						},
					},
				)
			default:
				http.Error(w, "unexpected type", http.StatusBadRequest)
			}
		},
	)
	store := newTestStore(
		t,
		brood,
		engineInfoHandler(
			map[uuid.UUID]LeaderboardInfo{
				leaderboardID: {ID: leaderboardID, Title: "Loaded"},
			},
		),
	)

	store.BulkLoad(context.Background())

	require.Equal(t, []string{"guild-1"}, store.GuildIDs())
	leaderboards := store.Leaderboards("guild-1")
	require.Len(t, leaderboards, 1)
	require.NotNil(t, leaderboards[0].LeaderboardInfo)
	assert.Equal(t, "Loaded", leaderboards[0].LeaderboardInfo.Title)

	identities := store.UserIdentities("user-1")
	require.Len(t, identities, 1)
	assert.Equal(t, "0xABC", identities[0].Identifier)
}

func TestBulkLoadSurvivesBroodOutage(t *testing.T) {
	brood := http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "brood unavailable", http.StatusServiceUnavailable)
		},
	)
	store := newTestStore(t, brood, engineInfoHandler(nil))

	store.BulkLoad(context.Background())
	assert.Empty(t, store.GuildIDs())
}

func TestThumbnailURLFallback(t *testing.T) {
	brood := &broodRecorder{t: t}
	store := newTestStore(t, brood.handler(), engineInfoHandler(nil))

	fallback := "https://example.com/default.png"
	assert.Equal(t, fallback, store.ThumbnailURL("guild-1", fallback))

	ctx := context.Background()
	override := "https://example.com/guild.png"
	require.NoError(t, store.UpdateThumbnailURL(ctx, "guild-1", override))
	assert.Equal(t, override, store.ThumbnailURL("guild-1", fallback))
	assert.Equal(t, fallback, store.ThumbnailURL("guild-2", fallback))
}

func TestEngineClientPositionRequiresSingleMatch(t *testing.T) {
	leaderboardID := uuid.New()
	engine := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/leaderboard/position", r.URL.Path)
				address := r.URL.Query().Get("address")
				switch address {
				case "0xone":
					_ = json.NewEncoder(w).Encode(
						[]Score{{Address: address, Rank: 4, Score: 9}},
					)
				case "0xmany":
					_ = json.NewEncoder(w).Encode(
						[]Score{{Address: address}, {Address: "0xother"}},
					)
				default:
					_ = json.NewEncoder(w).Encode([]Score{})
				}
			},
		),
	)
	t.Cleanup(engine.Close)

	client := NewEngineClient(
		EngineConfig{URL: engine.URL, MaxRequestsPerSecond: 1000},
		nil,
		testLogger(t),
	)

	ctx := context.Background()
	score, err := client.Position(ctx, leaderboardID, "0xone")
	require.NoError(t, err)
	assert.Equal(t, 4, score.Rank)

	_, err = client.Position(ctx, leaderboardID, "0xmany")
	require.Error(t, err)

	_, err = client.Position(ctx, leaderboardID, "0xnone")
	require.Error(t, err)
}

func TestBroodClientSendsBearerToken(t *testing.T) {
	var sawAuth string
	brood := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				sawAuth = r.Header.Get("Authorization")
				_ = json.NewEncoder(w).Encode(BroodResources{})
			},
		),
	)
	t.Cleanup(brood.Close)

	client := NewBroodClient(
		BroodConfig{
			URL:                  brood.URL,
			AccessToken:          "secret-token",
			ApplicationID:        "app-id",
			MaxRequestsPerSecond: 1000,
		},
		nil,
		testLogger(t),
	)
	_, err := client.ListResources(
		context.Background(),
		ResourceTypeGuildConfig,
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Bearer %s", "secret-token"), sawAuth)
}
