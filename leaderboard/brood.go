package leaderboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Brood resource type tags for records owned by this bot.
const (
	ResourceTypeGuildConfig  = "discord-bot-leaderboard-config"
	ResourceTypeUserIdentity = "discord-bot-leaderboard-user-identity"
)

// BroodResource is one opaque, typed JSON record in the Brood resource
// store. ResourceData is left raw so each caller can decode its own
// payload shape and skip records it doesn't understand.
type BroodResource struct {
	ID           uuid.UUID       `json:"id"`
	ResourceData json.RawMessage `json:"resource_data"`
}

// BroodResources is the list envelope Brood returns for resource queries.
type BroodResources struct {
	Resources []BroodResource `json:"resources"`
}

// broodUpdate is the patch envelope Brood expects for resource updates.
type broodUpdate struct {
	Update   map[string]any `json:"update"`
	DropKeys []string       `json:"drop_keys"`
}

// BroodClient talks to the Brood resource store. All calls carry the
// bot's bearer token and are scoped to its application ID. Any
// non-success response is an error - callers convert errors to "no
// result" at the boundary and never retry.
type BroodClient struct {
	baseURL       string
	token         string
	applicationID string
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *slog.Logger
}

func NewBroodClient(cfg BroodConfig, httpClient *http.Client, logger *slog.Logger) *BroodClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BroodClient{
		baseURL:       cfg.URL,
		token:         cfg.AccessToken,
		applicationID: cfg.ApplicationID,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), 1),
		logger:        logger.With(loggerNameKey, "brood"),
	}
}

// ListResources fetches all resources of the given type for the bot's
// application, with optional extra query parameters.
func (b *BroodClient) ListResources(
	ctx context.Context,
	resourceType string,
	params url.Values,
) (*BroodResources, error) {
	query := url.Values{}
	query.Set("application_id", b.applicationID)
	query.Set("type", resourceType)
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	var resources BroodResources
	err := b.do(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/resources/?%s", b.baseURL, query.Encode()),
		nil,
		&resources,
	)
	if err != nil {
		return nil, err
	}
	return &resources, nil
}

// CreateResource creates a new resource with the given data payload.
func (b *BroodClient) CreateResource(
	ctx context.Context,
	resourceData any,
) (*BroodResource, error) {
	body := map[string]any{
		"application_id": b.applicationID,
		"resource_data":  resourceData,
	}
	var resource BroodResource
	err := b.do(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/resources", b.baseURL),
		body,
		&resource,
	)
	if err != nil {
		return nil, err
	}
	b.logger.Info("created resource", "resource_id", resource.ID)
	return &resource, nil
}

// UpdateResource applies a partial update to an existing resource using
// Brood's update/drop_keys patch envelope.
func (b *BroodClient) UpdateResource(
	ctx context.Context,
	resourceID uuid.UUID,
	update map[string]any,
	dropKeys []string,
) (*BroodResource, error) {
	if dropKeys == nil {
		dropKeys = []string{}
	}
	var resource BroodResource
	err := b.do(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/resources/%s", b.baseURL, resourceID),
		broodUpdate{Update: update, DropKeys: dropKeys},
		&resource,
	)
	if err != nil {
		return nil, err
	}
	b.logger.Info("updated resource", "resource_id", resource.ID)
	return &resource, nil
}

// DeleteResource deletes a resource by ID and returns the deleted ID.
func (b *BroodClient) DeleteResource(
	ctx context.Context,
	resourceID uuid.UUID,
) (uuid.UUID, error) {
	var deleted struct {
		ID uuid.UUID `json:"id"`
	}
	err := b.do(
		ctx,
		http.MethodDelete,
		fmt.Sprintf("%s/resources/%s", b.baseURL, resourceID),
		nil,
		&deleted,
	)
	if err != nil {
		return uuid.Nil, err
	}
	b.logger.Info("deleted resource", "resource_id", deleted.ID)
	return deleted.ID, nil
}

func (b *BroodClient) do(
	ctx context.Context,
	method string,
	requestURL string,
	body any,
	target any,
) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.token))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("brood returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
