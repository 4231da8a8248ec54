package dist

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Precedence ranks how a distribution was produced. Lower values are closer
// to the source; a check of "<= PrecedenceSource" means "not a binary".
type Precedence int

const (
	PrecedenceDevelop Precedence = -1
	PrecedenceSource  Precedence = 1
	PrecedenceBinary  Precedence = 2
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceDevelop:
		return "develop"
	case PrecedenceSource:
		return "source"
	case PrecedenceBinary:
		return "binary"
	default:
		return fmt.Sprintf("precedence(%d)", int(p))
	}
}

// MarshalYAML renders the precedence by name in reports.
func (p Precedence) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Distribution is one concrete release artifact for a project.
type Distribution struct {
	Project    string     `yaml:"project"`
	Version    string     `yaml:"version"`
	Location   string     `yaml:"location"`   // URL or filesystem path
	Precedence Precedence `yaml:"precedence"` // source, binary or develop
	LocalPath  string     `yaml:"local_path,omitempty"`
}

// Key returns the normalized project name.
func (d *Distribution) Key() string {
	return NormalizeName(d.Project)
}

// Filename returns the last path element of the location, without any
// query string or fragment.
func (d *Distribution) Filename() string {
	loc := d.Location
	if u, err := url.Parse(loc); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		loc = u.Path
	} else if i := strings.IndexAny(loc, "?#"); i != -1 {
		loc = loc[:i]
	}
	return path.Base(strings.ReplaceAll(loc, "\\", "/"))
}

func (d *Distribution) String() string {
	return fmt.Sprintf("%s %s (%s)", d.Project, d.Version, d.Location)
}

// Metadata is the (project, version) pair recovered from an archive.
type Metadata struct {
	Project string
	Version string
}

// IndexEntry is one classified file of a source directory.
type IndexEntry struct {
	Project  string
	Version  string
	Filename string
}

// Release is a (version, filename) pair within a ProjectGroup.
type Release struct {
	Version  string
	Filename string
}

// ProjectGroup collects the releases of one project, in the order they were
// classified.
type ProjectGroup struct {
	Project  string
	Releases []Release
}

// GroupEntries groups entries by project name and sorts the groups by name.
// Release order inside a group follows the input order.
func GroupEntries(entries []IndexEntry) []ProjectGroup {
	byName := make(map[string]int)
	var groups []ProjectGroup
	for _, e := range entries {
		i, ok := byName[e.Project]
		if !ok {
			i = len(groups)
			byName[e.Project] = i
			groups = append(groups, ProjectGroup{Project: e.Project})
		}
		groups[i].Releases = append(groups[i].Releases, Release{
			Version:  e.Version,
			Filename: e.Filename,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Project < groups[j].Project
	})
	return groups
}

// SortCandidates orders distributions best first: highest version, then
// highest precedence, then location.
func SortCandidates(dists []*Distribution) {
	sort.SliceStable(dists, func(i, j int) bool {
		a, b := dists[i], dists[j]
		if c := CompareVersions(a.Version, b.Version); c != 0 {
			return c > 0
		}
		if a.Precedence != b.Precedence {
			return a.Precedence > b.Precedence
		}
		return a.Location < b.Location
	})
}
