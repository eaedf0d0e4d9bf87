package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://registry.npmjs.org"

// PackageInfo is the metadata the npm registry exposes for a package.
type PackageInfo struct {
	Name          string
	SourceRepo    string // e.g. "github.com/owner/repo"
	LatestVersion string
}

// Client looks up package metadata on the npm registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a registry client. An empty baseURL selects the public
// npm registry.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup fetches the package document and returns its normalized source
// repository URL and latest dist-tag.
func (c *Client) Lookup(name string) (PackageInfo, error) {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/%s", c.baseURL, name))
	if err != nil {
		return PackageInfo{}, fmt.Errorf("npm registry lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PackageInfo{}, fmt.Errorf("npm registry returned %d for %s", resp.StatusCode, name)
	}

	var pkg struct {
		Repository struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"repository"`
		DistTags struct {
			Latest string `json:"latest"`
		} `json:"dist-tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return PackageInfo{}, fmt.Errorf("decode npm response: %w", err)
	}

	return PackageInfo{
		Name:          name,
		SourceRepo:    normalizeGitURL(pkg.Repository.URL),
		LatestVersion: pkg.DistTags.Latest,
	}, nil
}

func normalizeGitURL(raw string) string {
	raw = strings.TrimPrefix(raw, "git+")
	raw = strings.TrimPrefix(raw, "git://")
	raw = strings.TrimPrefix(raw, "ssh://git@")
	raw = strings.TrimSuffix(raw, ".git")
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	return raw
}
