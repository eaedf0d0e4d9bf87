package pipeline

import (
	"strings"

	logger "github.com/sirupsen/logrus"

	"github.com/dependency-impact-checker/pkg/registry"
	"github.com/dependency-impact-checker/pkg/vcs"
)

// SourceLookup resolves a package name to registry metadata.
type SourceLookup interface {
	Lookup(name string) (registry.PackageInfo, error)
}

// DetailsEnricher fills the Source Repo and Latest Release columns for
// impacted dependencies: npm registry for the source repository, GitHub for
// the latest release tag. Every failure degrades to empty cells.
type DetailsEnricher struct {
	Registry SourceLookup
	Releases vcs.ReleaseClient
}

func (e *DetailsEnricher) Enrich(name string) (string, string) {
	info, err := e.Registry.Lookup(name)
	if err != nil {
		logger.Warnf("registry lookup for %s: %v", name, err)
		return "", ""
	}
	if !strings.Contains(info.SourceRepo, "github.com") {
		return info.SourceRepo, ""
	}

	owner, repo, err := vcs.ParseGitHubRepo(info.SourceRepo)
	if err != nil {
		return info.SourceRepo, ""
	}
	release, err := e.Releases.LatestRelease(owner, repo)
	if err != nil {
		logger.Warnf("latest release for %s/%s: %v", owner, repo, err)
		return info.SourceRepo, ""
	}
	return info.SourceRepo, release
}
