package index

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/downloader"
	"github.com/frederic-klein/yapi/internal/logging"
)

// Simple is a PackageIndex over a PEP 503 simple index, a local directory,
// find-links sources and a search path of installed distributions.
type Simple struct {
	indexURL   string
	searchPath []string
	client     *http.Client
	downloader *downloader.Downloader
	logger     logging.Logger

	mu        sync.Mutex
	findLinks []string
	scanned   map[string][]*dist.Distribution
	warned    map[string]bool
}

// NewSimple creates an index bound to indexURL, which may be empty, an
// http(s) URL, a file:// URL or a directory path.
func NewSimple(indexURL string, searchPath []string, opts Options) *Simple {
	if searchPath == nil {
		searchPath = opts.SearchPath
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	dl := opts.Downloader
	if dl == nil {
		dl = downloader.NewDownloader(1, client)
	}

	return &Simple{
		indexURL:   strings.TrimSuffix(indexURL, "/"),
		searchPath: searchPath,
		client:     client,
		downloader: dl,
		logger:     logging.OrDiscard(opts.Logger),
		scanned:    make(map[string][]*dist.Distribution),
		warned:     make(map[string]bool),
	}
}

// AddFindLinks adds sources searched in addition to the index.
func (s *Simple) AddFindLinks(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range urls {
		if u == "" || contains(s.findLinks, u) {
			continue
		}
		s.findLinks = append(s.findLinks, u)
	}
}

// Candidates returns all known distributions of req's project, best first.
func (s *Simple) Candidates(ctx context.Context, req dist.Requirement) ([]*dist.Distribution, error) {
	return s.candidates(ctx, req, false)
}

func (s *Simple) candidates(ctx context.Context, req dist.Requirement, force bool) ([]*dist.Distribution, error) {
	key := req.Key()

	var all []*dist.Distribution
	for _, dir := range s.searchPath {
		found, err := s.cached("installed:"+dir, force, func() ([]*dist.Distribution, error) {
			return scanInstalled(dir)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}

	for _, source := range s.sources(key) {
		found, err := s.cached(source, force, func() ([]*dist.Distribution, error) {
			return s.scan(ctx, source)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}

	var matched []*dist.Distribution
	seen := make(map[string]bool)
	for _, d := range all {
		if d.Key() != key || seen[d.Location] {
			continue
		}
		seen[d.Location] = true
		c := *d
		matched = append(matched, &c)
	}
	dist.SortCandidates(matched)
	return matched, nil
}

// sources lists what to scan for project key: the project's index page (or
// the local index directory) followed by the find-links.
func (s *Simple) sources(key string) []string {
	var sources []string
	if s.indexURL != "" {
		if isRemote(s.indexURL) {
			sources = append(sources, s.indexURL+"/"+url.PathEscape(key)+"/")
		} else {
			dir := localPath(s.indexURL)
			sources = append(sources, filepath.Join(dir, key), dir)
		}
	}

	s.mu.Lock()
	sources = append(sources, s.findLinks...)
	s.mu.Unlock()
	return sources
}

// cached memoizes raw scan results per source. Filtering never happens
// here.
func (s *Simple) cached(source string, force bool, scan func() ([]*dist.Distribution, error)) ([]*dist.Distribution, error) {
	if !force {
		s.mu.Lock()
		found, ok := s.scanned[source]
		s.mu.Unlock()
		if ok {
			return found, nil
		}
	}

	found, err := scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.scanned[source] = found
	s.mu.Unlock()
	return found, nil
}

// FetchDistribution finds the best acceptable candidate for req and
// downloads or copies it into tmpDir.
func (s *Simple) FetchDistribution(ctx context.Context, req dist.Requirement, tmpDir string, opts FetchOptions) (*dist.Distribution, error) {
	cands, err := s.candidates(ctx, req, opts.ForceScan)
	if err != nil {
		return nil, err
	}

	for _, d := range cands {
		if !req.Contains(d.Version) {
			continue
		}
		if d.Precedence == dist.PrecedenceDevelop {
			if !opts.DevelopOK {
				s.noteSkipped(d)
				continue
			}
			d.LocalPath = d.Location
			return d, nil
		}
		if opts.Source && d.Precedence > dist.PrecedenceSource {
			continue
		}
		if !dist.IsDistributionFile(d.Filename()) {
			continue
		}

		local, err := s.fetch(ctx, d, tmpDir)
		if err != nil {
			return nil, err
		}
		d.LocalPath = local
		s.logger.Debug("fetched", "dist", d.String(), "path", local)
		return d, nil
	}

	return nil, nil
}

func (s *Simple) noteSkipped(d *dist.Distribution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warned[d.Location] {
		return
	}
	s.warned[d.Location] = true
	s.logger.Info("skipping development or system egg", "dist", d.String())
}

// fetch places d in tmpDir. Files already there are used as is.
func (s *Simple) fetch(ctx context.Context, d *dist.Distribution, tmpDir string) (string, error) {
	if !isRemote(d.Location) {
		src := localPath(d.Location)
		if absSrc, err := filepath.Abs(src); err == nil {
			if absTmp, err := filepath.Abs(tmpDir); err == nil && filepath.Dir(absSrc) == absTmp {
				return absSrc, nil
			}
		}
	}

	dest := filepath.Join(tmpDir, d.Filename())
	if err := s.downloader.Fetch(ctx, d.Location, dest); err != nil {
		return "", fmt.Errorf("fetching %s: %w", d.Location, err)
	}
	return dest, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// localPath turns a file:// URL into a path and returns paths unchanged.
func localPath(location string) string {
	if strings.HasPrefix(location, "file://") {
		if u, err := url.Parse(location); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return location
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
