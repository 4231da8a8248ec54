// Package index queries package indexes, find-links sources and installed
// distributions for candidate distributions.
package index

import (
	"context"
	"net/http"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/downloader"
	"github.com/frederic-klein/yapi/internal/logging"
)

// DefaultIndexURL is used when no index URL is configured.
const DefaultIndexURL = "https://pypi.org/simple"

// FetchOptions controls which candidates FetchDistribution accepts.
type FetchOptions struct {
	// ForceScan rescans sources instead of using cached results.
	ForceScan bool
	// Source rejects binary distributions.
	Source bool
	// DevelopOK accepts development checkouts.
	DevelopOK bool
}

// PackageIndex is a queryable source of distributions.
type PackageIndex interface {
	// FetchDistribution finds the best distribution matching req and makes
	// it available in tmpDir. It returns nil when nothing matches.
	FetchDistribution(ctx context.Context, req dist.Requirement, tmpDir string, opts FetchOptions) (*dist.Distribution, error)

	// Candidates returns every known distribution of req's project, best
	// first.
	Candidates(ctx context.Context, req dist.Requirement) ([]*dist.Distribution, error)

	// AddFindLinks adds extra pages, directories or archive URLs to search.
	AddFindLinks(urls ...string)
}

// Factory creates a PackageIndex bound to indexURL. A nil searchPath uses
// the factory's default search path; an empty one searches nothing.
type Factory func(indexURL string, searchPath []string) PackageIndex

// Options configures indexes created by NewFactory.
type Options struct {
	Client     *http.Client
	Downloader *downloader.Downloader
	SearchPath []string
	Logger     logging.Logger
}

// NewFactory returns a Factory creating Simple indexes.
func NewFactory(opts Options) Factory {
	return func(indexURL string, searchPath []string) PackageIndex {
		return NewSimple(indexURL, searchPath, opts)
	}
}
