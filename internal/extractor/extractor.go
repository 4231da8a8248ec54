// Package extractor recovers the project name and version of a source
// distribution archive.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/yapi/internal/archive"
	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/logging"
)

// Extractor reads PKG-INFO from archives, falling back to running the
// archive's setup.py.
type Extractor struct {
	runner Runner
	logger logging.Logger
}

// New creates an extractor. A nil runner uses a ScriptRunner with defaults.
func New(runner Runner, logger logging.Logger) *Extractor {
	if runner == nil {
		runner = NewScriptRunner("", 0)
	}
	return &Extractor{runner: runner, logger: logging.OrDiscard(logger)}
}

// Extract returns the metadata of the archive at filename. ok is false when
// the file is not an archive or no strategy recovers both name and version.
func (e *Extractor) Extract(ctx context.Context, filename string) (dist.Metadata, bool) {
	if _, ok := archive.Detect(filename); !ok {
		return dist.Metadata{}, false
	}

	a, err := archive.Open(filename)
	if err != nil {
		e.logger.Debug("cannot open archive", "file", filename, "error", err)
		return dist.Metadata{}, false
	}
	defer a.Close()

	names, err := a.Names()
	if err != nil {
		e.logger.Debug("cannot list archive", "file", filename, "error", err)
		return dist.Metadata{}, false
	}

	for _, name := range names {
		if !strings.HasSuffix(name, "PKG-INFO") {
			continue
		}
		if meta, ok := e.readPkgInfo(a, name); ok {
			return meta, true
		}
	}

	for _, candidate := range setupCandidates(names) {
		meta, err := e.runSetup(ctx, a, candidate)
		if err != nil {
			e.logger.Debug("setup.py failed", "file", filename, "member", candidate, "error", err)
			continue
		}
		return meta, true
	}

	return dist.Metadata{}, false
}

// readPkgInfo scans "Key: Value" lines for Name and Version. Lines without
// a colon are ignored.
func (e *Extractor) readPkgInfo(a archive.Archive, member string) (dist.Metadata, bool) {
	lines, err := a.Lines(member)
	if err != nil {
		e.logger.Debug("cannot read PKG-INFO", "member", member, "error", err)
		return dist.Metadata{}, false
	}

	var meta dist.Metadata
	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch key {
		case "Name":
			meta.Project = strings.TrimSpace(value)
		case "Version":
			meta.Version = strings.TrimSpace(value)
		}
		if meta.Project != "" && meta.Version != "" {
			return meta, true
		}
	}
	return dist.Metadata{}, false
}

// setupCandidates lists setup.py members, a root-level one first and nested
// ones after it in member order.
func setupCandidates(names []string) []string {
	var root, nested []string
	for _, name := range names {
		switch {
		case name == "setup.py" || name == "./setup.py":
			root = append(root, name)
		case strings.HasSuffix(name, "/setup.py"):
			nested = append(nested, name)
		}
	}
	return append(root, nested...)
}

// runSetup extracts only the candidate script into a fresh temp dir and
// runs it there.
func (e *Extractor) runSetup(ctx context.Context, a archive.Archive, member string) (dist.Metadata, error) {
	tmpDir, err := os.MkdirTemp("", "yapi-setup-*")
	if err != nil {
		return dist.Metadata{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := a.Extract(member, tmpDir); err != nil {
		return dist.Metadata{}, err
	}

	dir := filepath.Join(tmpDir, filepath.FromSlash(path.Dir(member)))
	lines, err := e.runner.Run(ctx, dir)
	if err != nil {
		return dist.Metadata{}, err
	}
	if len(lines) < 2 {
		return dist.Metadata{}, fmt.Errorf("setup.py printed %d lines, want 2", len(lines))
	}

	return dist.Metadata{
		Project: strings.TrimSpace(lines[0]),
		Version: strings.TrimSpace(lines[1]),
	}, nil
}
