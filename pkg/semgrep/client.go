package semgrep

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/dependency-impact-checker/pkg/depquery"
)

// Candidate response keys, probed in order. The API has shifted field names
// across versions, so both the deployment listing and the repository search
// are read schema-tolerantly.
var (
	deploymentListKeys = []string{"deployments", "results"}
	deploymentIDKeys   = []string{"id", "deploymentId", "slug"}
	repoListKeys       = []string{"repositorySummaries", "repositories", "results"}
)

// Options tunes the client. Zero fields fall back to defaults.
type Options struct {
	PageSize      int
	MaxRetries    int
	RetryBackoff  time.Duration
	ListTimeout   time.Duration
	SearchTimeout time.Duration
}

// Client talks to the Semgrep web API. The deployment listing uses a shorter
// timeout than the repository search; both are fixed for the lifetime of the
// client.
type Client struct {
	baseURL      string
	token        string
	pageSize     int
	maxRetries   int
	retryBackoff time.Duration

	listClient   *http.Client
	searchClient *http.Client
}

func NewClient(baseURL, token string, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = 30 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		token:        token,
		pageSize:     opts.PageSize,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		listClient:   &http.Client{Timeout: opts.ListTimeout},
		searchClient: &http.Client{Timeout: opts.SearchTimeout},
	}
}

// ResolveDeploymentID fetches the deployment listing and returns the first
// entry's identifier. Single attempt, no retry: the ID scopes every later
// call, so a failure here should stop the run immediately.
func (c *Client) ResolveDeploymentID() (string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/deployments", nil)
	if err != nil {
		return "", fmt.Errorf("build deployments request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.listClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("list deployments: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read deployments response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list deployments returned %d: %s", resp.StatusCode, string(body))
	}

	return firstDeploymentID(body)
}

func firstDeploymentID(body []byte) (string, error) {
	var entries []json.RawMessage

	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err == nil {
		for _, key := range deploymentListKeys {
			raw, ok := root[key]
			if !ok || string(bytes.TrimSpace(raw)) == "null" {
				continue
			}
			if err := json.Unmarshal(raw, &entries); err != nil {
				return "", fmt.Errorf("decode %q collection: %w", key, err)
			}
			break
		}
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("decode deployments response: %w", err)
	}

	if len(entries) == 0 {
		return "", errors.New("no deployments returned; cannot determine deployment id")
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(entries[0], &first); err != nil {
		return "", fmt.Errorf("decode first deployment: %w", err)
	}
	for _, key := range deploymentIDKeys {
		raw, ok := first[key]
		if !ok {
			continue
		}
		if id := rawToString(raw); id != "" {
			return id, nil
		}
	}
	return "", errors.New("no recognized identifier field in first deployment")
}

// rawToString renders a JSON scalar (string or number) as a string,
// returning "" for anything else.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

type searchRequest struct {
	PageSize int               `json:"page_size"`
	Filter   *dependencyFilter `json:"dependencyFilter,omitempty"`
	Cursor   string            `json:"cursor,omitempty"`
}

type dependencyFilter struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type searchPage struct {
	hasRepos bool
	cursor   string
	hasMore  bool
}

// AnyRepoUses reports whether any repository in the deployment uses the
// dependency described by q. It never returns an error: retry exhaustion and
// client errors both degrade to false, so one bad row cannot abort a batch.
func (c *Client) AnyRepoUses(deploymentID string, q depquery.Query) bool {
	url := fmt.Sprintf("%s/deployments/%s/dependencies/repositories", c.baseURL, deploymentID)

	body := searchRequest{PageSize: c.pageSize}
	if !q.IsZero() {
		body.Filter = &dependencyFilter{Name: q.Name, Version: q.Version}
	}

	for {
		page, ok := c.fetchPage(url, &body, q)
		if !ok {
			return false
		}
		if page.hasRepos {
			// Any hit fully answers the query; skip the remaining pages.
			return true
		}
		// A cursor keeps the loop going even when hasMore is false.
		if page.cursor == "" && !page.hasMore {
			return false
		}
		// Only a fresh cursor replaces the one already in the body; a
		// hasMore-only page repeats the previous cursor.
		if page.cursor != "" {
			body.Cursor = page.cursor
		}
	}
}

// fetchPage issues a single search page with the per-attempt retry policy:
// transport errors and 5xx responses are retried with linear backoff, 4xx
// responses are definitive. Returns ok=false when the page could not be
// fetched; the caller treats that as no match.
func (c *Client) fetchPage(url string, reqBody *searchRequest, q depquery.Query) (searchPage, bool) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		logger.Warnf("marshal search request for %s: %v", q, err)
		return searchPage{}, false
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, reqErr := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if reqErr != nil {
			logger.Warnf("build search request for %s: %v", q, reqErr)
			return searchPage{}, false
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		var attemptErr error
		resp, doErr := c.searchClient.Do(req)
		if doErr != nil {
			attemptErr = doErr
		} else {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				attemptErr = readErr
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				logger.Warnf("client error %d for %s: %s", resp.StatusCode, q, string(respBody))
				return searchPage{}, false
			case resp.StatusCode >= 500:
				attemptErr = fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
			default:
				page, parseErr := parseSearchPage(respBody)
				if parseErr != nil {
					attemptErr = parseErr
				} else {
					return page, true
				}
			}
		}

		logger.Warnf("request error (attempt %d) for %s: %v", attempt, q, attemptErr)
		if attempt == c.maxRetries {
			logger.Errorf("giving up on %s: %v", q, attemptErr)
			return searchPage{}, false
		}
		time.Sleep(c.retryBackoff * time.Duration(attempt))
	}
	return searchPage{}, false
}

func parseSearchPage(body []byte) (searchPage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return searchPage{}, fmt.Errorf("decode search response: %w", err)
	}

	var page searchPage
	for _, key := range repoListKeys {
		raw, ok := root[key]
		if !ok {
			continue
		}
		var repos []json.RawMessage
		if err := json.Unmarshal(raw, &repos); err == nil && len(repos) > 0 {
			page.hasRepos = true
			break
		}
		// present but empty: keep probing the remaining keys
	}
	if raw, ok := root["cursor"]; ok {
		page.cursor = rawToString(raw)
	}
	if raw, ok := root["hasMore"]; ok {
		_ = json.Unmarshal(raw, &page.hasMore)
	}
	return page, nil
}
