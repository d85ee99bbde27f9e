package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultScoresLimit = 10

// EngineClient talks to the Moonstream engine API. The endpoints used
// here are read-only and unauthenticated under the current credential
// model. Failures are returned as errors; callers map them to the
// "leaderboard not found" / "position not found" messages without
// distinguishing them from genuinely empty results.
type EngineClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewEngineClient(cfg EngineConfig, httpClient *http.Client, logger *slog.Logger) *EngineClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EngineClient{
		baseURL:    cfg.URL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), 1),
		logger:     logger.With(loggerNameKey, "engine"),
	}
}

// LeaderboardInfo fetches descriptive metadata for one leaderboard.
func (e *EngineClient) LeaderboardInfo(
	ctx context.Context,
	leaderboardID uuid.UUID,
) (*LeaderboardInfo, error) {
	query := url.Values{}
	query.Set("leaderboard_id", leaderboardID.String())

	var info LeaderboardInfo
	err := e.get(
		ctx,
		fmt.Sprintf("%s/leaderboard/info?%s", e.baseURL, query.Encode()),
		&info,
	)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("received leaderboard info", "leaderboard_id", info.ID)
	return &info, nil
}

// Scores fetches one page of ranked entries for a leaderboard.
func (e *EngineClient) Scores(
	ctx context.Context,
	leaderboardID uuid.UUID,
) ([]Score, error) {
	query := url.Values{}
	query.Set("leaderboard_id", leaderboardID.String())
	query.Set("limit", fmt.Sprintf("%d", defaultScoresLimit))
	query.Set("offset", "0")

	var scores []Score
	err := e.get(
		ctx,
		fmt.Sprintf("%s/leaderboard/?%s", e.baseURL, query.Encode()),
		&scores,
	)
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// Position looks up a single identity's entry on a leaderboard. The
// engine returns a window of entries; only an exact single match counts.
func (e *EngineClient) Position(
	ctx context.Context,
	leaderboardID uuid.UUID,
	address string,
) (*Score, error) {
	query := url.Values{}
	query.Set("leaderboard_id", leaderboardID.String())
	query.Set("address", address)
	query.Set("normalize_addresses", "False")
	query.Set("window_size", "0")
	query.Set("limit", fmt.Sprintf("%d", defaultScoresLimit))
	query.Set("offset", "0")

	var scores []Score
	err := e.get(
		ctx,
		fmt.Sprintf("%s/leaderboard/position?%s", e.baseURL, query.Encode()),
		&scores,
	)
	if err != nil {
		return nil, err
	}
	if len(scores) != 1 {
		return nil, fmt.Errorf(
			"expected exactly one position, got %d",
			len(scores),
		)
	}
	return &scores[0], nil
}

func (e *EngineClient) get(ctx context.Context, requestURL string, target any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
