// Package builder writes a static two-level HTML index for a directory of
// distribution archives.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/htmlindex"
	"github.com/frederic-klein/yapi/internal/logging"
)

var (
	// ErrInvalidPath is returned when the source directory is missing or is
	// not a directory.
	ErrInvalidPath = errors.New("not a directory")

	// ErrIndexExists is returned when the index subdirectory already exists.
	ErrIndexExists = errors.New("index directory exists")

	// ErrNoDistributions is returned when no file in the source directory
	// yields a project and version.
	ErrNoDistributions = errors.New("no distributions found")
)

// DefaultIndexName is the index subdirectory written inside the source dir.
const DefaultIndexName = "simple"

// MetadataExtractor classifies one file.
type MetadataExtractor interface {
	Extract(ctx context.Context, filename string) (dist.Metadata, bool)
}

// Summary describes a finished build.
type Summary struct {
	IndexDir   string
	Classified int
	Skipped    int
	Projects   int
}

// Builder builds package indexes.
type Builder struct {
	extractor MetadataExtractor
	workers   int
	logger    logging.Logger
}

// New creates a builder classifying files with up to workers extractions in
// flight. workers <= 0 uses the number of CPUs.
func New(extractor MetadataExtractor, workers int, logger logging.Logger) *Builder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{extractor: extractor, workers: workers, logger: logging.OrDiscard(logger)}
}

// Build classifies the regular files in sourceDir and writes
// sourceDir/indexName/index.html plus one page per project.
func (b *Builder) Build(ctx context.Context, sourceDir, indexName string) (*Summary, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, sourceDir)
	}
	indexDir := filepath.Join(sourceDir, indexName)
	if _, err := os.Lstat(indexDir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, indexDir)
	}

	files, err := listFiles(sourceDir)
	if err != nil {
		return nil, err
	}

	entries, err := b.classify(ctx, sourceDir, files)
	if err != nil {
		return nil, err
	}

	groups := dist.GroupEntries(entries)
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDistributions, sourceDir)
	}

	if err := b.write(indexDir, groups); err != nil {
		return nil, err
	}

	return &Summary{
		IndexDir:   indexDir,
		Classified: len(entries),
		Skipped:    len(files) - len(entries),
		Projects:   len(groups),
	}, nil
}

// listFiles returns the names of regular files directly in dir, sorted.
func listFiles(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, e := range dirEntries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// classify runs the extractor over files concurrently. Results keep the
// order of files.
func (b *Builder) classify(ctx context.Context, dir string, files []string) ([]dist.IndexEntry, error) {
	results := make([]*dist.IndexEntry, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.logger.Debug("parsing", "file", name)
			meta, ok := b.extractor.Extract(ctx, filepath.Join(dir, name))
			if !ok {
				b.logger.Debug("not a distribution, ignored", "file", name)
				return nil
			}
			if !validProjectName(meta.Project) {
				b.logger.Warn("unusable project name, ignored", "file", name, "project", meta.Project)
				return nil
			}
			results[i] = &dist.IndexEntry{Project: meta.Project, Version: meta.Version, Filename: name}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []dist.IndexEntry
	for _, r := range results {
		if r != nil {
			entries = append(entries, *r)
		}
	}
	return entries, nil
}

// validProjectName reports whether name can be used as a single path
// element below the index directory.
func validProjectName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

func (b *Builder) write(indexDir string, groups []dist.ProjectGroup) error {
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	projects := make([]string, 0, len(groups))
	for _, g := range groups {
		b.logger.Info("project", "name", g.Project, "releases", len(g.Releases))
		projects = append(projects, g.Project)

		filenames := make([]string, 0, len(g.Releases))
		for _, r := range g.Releases {
			b.logger.Debug("release", "project", g.Project, "version", r.Version, "file", r.Filename)
			filenames = append(filenames, r.Filename)
		}

		projectDir := filepath.Join(indexDir, g.Project)
		if err := os.MkdirAll(projectDir, 0755); err != nil {
			return fmt.Errorf("creating project directory: %w", err)
		}
		if err := writePage(filepath.Join(projectDir, "index.html"), func(e *htmlindex.Emitter) error {
			return e.EmitProject(g.Project, filenames)
		}); err != nil {
			return err
		}
	}

	return writePage(filepath.Join(indexDir, "index.html"), func(e *htmlindex.Emitter) error {
		return e.EmitIndex(projects)
	})
}

func writePage(path string, emit func(*htmlindex.Emitter) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := emit(htmlindex.NewEmitter(f)); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
