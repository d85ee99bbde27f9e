package librarian

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// JournalSearchResult is one entry returned by a Spire journal search.
type JournalSearchResult struct {
	EntryURL string   `json:"entry_url"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
}

// JournalSearchResults is the envelope Spire returns for journal
// searches.
type JournalSearchResults struct {
	TotalResults int                   `json:"total_results"`
	Results      []JournalSearchResult `json:"results"`
}

// SpireClient talks to the Bugout Spire journals API. All calls carry
// the bot's bearer token. Any non-success response is an error.
type SpireClient struct {
	baseURL    string
	token      string
	journalID  string
	httpClient *http.Client
	logger     *slog.Logger
}

func newSpireClient(cfg SpireConfig, httpClient *http.Client, logger *slog.Logger) *SpireClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SpireClient{
		baseURL:    cfg.URL,
		token:      cfg.AccessToken,
		journalID:  cfg.JournalID,
		httpClient: httpClient,
		logger:     logger.With(loggerNameKey, "spire"),
	}
}

// Search runs a journal search query and returns matching entries with
// their content included.
func (s *SpireClient) Search(ctx context.Context, query string) (*JournalSearchResults, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("content", "true")

	endpoint := fmt.Sprintf(
		"%s/journals/%s/search?%s",
		s.baseURL,
		s.journalID,
		params.Encode(),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spire search request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf(
			"spire search returned %d: %s",
			resp.StatusCode,
			string(body),
		)
	}

	var results JournalSearchResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("unable to decode spire search response: %w", err)
	}
	return &results, nil
}
