package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/htmlindex"
)

// scan returns the distributions a single source offers.
func (s *Simple) scan(ctx context.Context, source string) ([]*dist.Distribution, error) {
	if isRemote(source) {
		if d := fromLocation(source); d != nil {
			return []*dist.Distribution{d}, nil
		}
		return s.scanPage(ctx, source)
	}
	return scanLocal(localPath(source))
}

// fromLocation interprets the filename at the end of location, returning
// nil for anything that is not a distribution archive.
func fromLocation(location string) *dist.Distribution {
	d := &dist.Distribution{Location: location}
	project, version, prec, ok := dist.ParseFilename(d.Filename())
	if !ok {
		return nil
	}
	d.Project = project
	d.Version = version
	d.Precedence = prec
	return d
}

// scanPage reads the links of an HTML page. A missing page has no
// candidates.
func (s *Simple) scanPage(ctx context.Context, pageURL string) ([]*dist.Distribution, error) {
	s.logger.Debug("reading page", "url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reading %s: HTTP %d", pageURL, resp.StatusCode)
	}

	links, err := htmlindex.ParseLinks(resp.Body, resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	return fromLinks(links), nil
}

func fromLinks(links []htmlindex.Link) []*dist.Distribution {
	var found []*dist.Distribution
	for _, l := range links {
		if d := fromLocation(l.Href); d != nil {
			found = append(found, d)
		}
	}
	return found
}

// scanLocal handles a directory of archives, a single archive or a local
// HTML page. Missing paths have no candidates.
func scanLocal(path string) ([]*dist.Distribution, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	if !info.IsDir() {
		if d := fromLocation(path); d != nil {
			return []*dist.Distribution{d}, nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
			return scanLocalPage(path)
		}
		return nil, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	var found []*dist.Distribution
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if d := fromLocation(filepath.Join(path, e.Name())); d != nil {
			found = append(found, d)
		}
	}
	return found, nil
}

func scanLocalPage(path string) ([]*dist.Distribution, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	links, err := htmlindex.ParseLinks(f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return fromLinks(links), nil
}

// InstalledDistributions lists the distributions installed in the
// directories of searchPath.
func InstalledDistributions(searchPath []string) ([]*dist.Distribution, error) {
	var all []*dist.Distribution
	for _, dir := range searchPath {
		found, err := scanInstalled(dir)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// scanInstalled reads one search path directory. *.egg-link files point at
// development checkouts; *.egg-info, *.dist-info and *.egg entries are
// installed distributions.
func scanInstalled(dir string) ([]*dist.Distribution, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var found []*dist.Distribution
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)

		switch {
		case strings.HasSuffix(name, ".egg-link") && e.Type().IsRegular():
			d, err := readEggLink(dir, path)
			if err != nil {
				continue
			}
			found = append(found, d)

		case e.IsDir() && (strings.HasSuffix(name, ".egg-info") || strings.HasSuffix(name, ".dist-info")):
			base := strings.TrimSuffix(strings.TrimSuffix(name, ".egg-info"), ".dist-info")
			project, version, _ := strings.Cut(base, "-")
			version, _, _ = strings.Cut(version, "-")
			if version == "" {
				meta := readMetadataDir(path)
				project, version = firstNonEmpty(meta.Project, project), meta.Version
			}
			found = append(found, &dist.Distribution{
				Project:    project,
				Version:    version,
				Location:   path,
				Precedence: dist.PrecedenceBinary,
			})

		case strings.HasSuffix(name, ".egg"):
			if d := fromLocation(path); d != nil {
				found = append(found, d)
			}
		}
	}
	return found, nil
}

// readEggLink turns foo.egg-link into a develop distribution located at the
// checkout named on its first line.
func readEggLink(dir, path string) (*dist.Distribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty egg-link %s", path)
	}
	checkout := strings.TrimSpace(scanner.Text())
	if checkout == "" {
		return nil, fmt.Errorf("empty egg-link %s", path)
	}
	if !filepath.IsAbs(checkout) {
		checkout = filepath.Join(dir, checkout)
	}

	d := &dist.Distribution{
		Project:    strings.TrimSuffix(filepath.Base(path), ".egg-link"),
		Location:   checkout,
		Precedence: dist.PrecedenceDevelop,
	}
	infos, _ := filepath.Glob(filepath.Join(checkout, "*.egg-info"))
	for _, info := range infos {
		meta := readMetadataDir(info)
		if meta.Version != "" {
			d.Project = firstNonEmpty(meta.Project, d.Project)
			d.Version = meta.Version
			break
		}
	}
	return d, nil
}

// readMetadataDir reads Name and Version from PKG-INFO or METADATA inside
// an egg-info or dist-info directory.
func readMetadataDir(dir string) dist.Metadata {
	for _, name := range []string{"PKG-INFO", "METADATA"} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		var meta dist.Metadata
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			key, value, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			switch key {
			case "Name":
				meta.Project = strings.TrimSpace(value)
			case "Version":
				meta.Version = strings.TrimSpace(value)
			}
		}
		f.Close()
		if meta.Version != "" {
			return meta
		}
	}
	return dist.Metadata{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
