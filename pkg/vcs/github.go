package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v60/github"
)

// ReleaseClient answers which release of a repository is the most recent.
type ReleaseClient interface {
	// LatestRelease returns the latest release tag name, or "" when the
	// repository has no published releases.
	LatestRelease(owner, repo string) (string, error)
}

type GitHubClient struct {
	client *github.Client
	ctx    context.Context
}

// NewGitHubClient builds a client for the public GitHub API. The token is
// optional; unauthenticated requests work for public repositories at a
// lower rate limit.
func NewGitHubClient(token string) *GitHubClient {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubClient{
		client: client,
		ctx:    context.Background(),
	}
}

func (g *GitHubClient) LatestRelease(owner, repo string) (string, error) {
	release, _, err := g.client.Repositories.GetLatestRelease(g.ctx, owner, repo)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return "", nil
		}
		return "", fmt.Errorf("get latest release for %s/%s: %w", owner, repo, err)
	}
	return release.GetTagName(), nil
}

// ParseGitHubRepo extracts owner and repo from a GitHub URL in any of the
// shapes the npm registry hands back.
func ParseGitHubRepo(repoURL string) (owner, repo string, err error) {
	repoURL = strings.TrimPrefix(repoURL, "https://")
	repoURL = strings.TrimPrefix(repoURL, "http://")
	repoURL = strings.TrimPrefix(repoURL, "github.com/")
	repoURL = strings.TrimSuffix(repoURL, ".git")
	repoURL = strings.TrimSuffix(repoURL, "/")

	parts := strings.SplitN(repoURL, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse GitHub repo from %q", repoURL)
	}
	return parts[0], parts[1], nil
}
