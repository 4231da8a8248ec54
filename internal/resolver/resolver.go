// Package resolver fetches the distributions satisfying a set of
// requirements from ordered package indexes and find-links sources.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/downloader"
	"github.com/frederic-klein/yapi/internal/index"
	"github.com/frederic-klein/yapi/internal/logging"
)

var (
	// ErrNoRequirements is returned when there is nothing to resolve.
	ErrNoRequirements = errors.New("either specify requirements, or else --fetch-site-packages")

	// ErrInvalidPath is returned when the target exists but is not a
	// directory.
	ErrInvalidPath = errors.New("not a directory")
)

// Phases of a fetch run, as recorded in Attempt.Phase.
const (
	PhaseIndex     = "index"
	PhaseFindLinks = "find-links"
	PhaseMerge     = "merge"
)

// RemoteQueryError is one failed query of one index for one requirement.
// It is recorded and logged, never fatal.
type RemoteQueryError struct {
	IndexURL    string
	Requirement string
	Err         error
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("querying %s for %s: %v", e.IndexURL, e.Requirement, e.Err)
}

func (e *RemoteQueryError) Unwrap() error {
	return e.Err
}

// Options configures a Resolver.
type Options struct {
	IndexURLs         []string
	FindLinks         []string
	SourceOnly        bool
	FetchSitePackages bool
	SearchPath        []string
	KeepTempDir       bool
	TempDir           string // parent of the per-run temp dir
	Workers           int

	// Candidate enumeration only.
	DevelopOK bool
	OnlyBest  bool
}

// Attempt records one query.
type Attempt struct {
	Phase       string `yaml:"phase"`
	IndexURL    string `yaml:"index"`
	Requirement string `yaml:"requirement"`
	Found       string `yaml:"found,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

// Report is the outcome of a fetch run.
type Report struct {
	Target    string              `yaml:"target"`
	TempDir   string              `yaml:"tempdir,omitempty"`
	Attempts  []Attempt           `yaml:"attempts"`
	Satisfied []string            `yaml:"satisfied"`
	NotFound  []string            `yaml:"not_found"`
	Files     []string            `yaml:"files"`
	Errors    []*RemoteQueryError `yaml:"-"`
}

// Resolver fetches distributions.
type Resolver struct {
	factory    index.Factory
	downloader *downloader.Downloader
	opts       Options
	logger     logging.Logger
}

// New creates a resolver building its indexes with factory.
func New(factory index.Factory, opts Options, logger logging.Logger) *Resolver {
	if len(opts.IndexURLs) == 0 {
		opts.IndexURLs = []string{index.DefaultIndexURL}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Resolver{
		factory:    factory,
		downloader: downloader.NewDownloader(opts.Workers, nil),
		opts:       opts,
		logger:     logging.OrDiscard(logger),
	}
}

// Fetch resolves reqs and copies the chosen archives into target.
func (r *Resolver) Fetch(ctx context.Context, reqs []dist.Requirement, target string) (*Report, error) {
	if len(reqs) == 0 && !r.opts.FetchSitePackages {
		return nil, ErrNoRequirements
	}

	target, err := ensureDir(target)
	if err != nil {
		return nil, err
	}

	reqs, err = r.expand(reqs)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp(r.opts.TempDir, "yapi-fetch-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	if r.opts.KeepTempDir {
		r.logger.Info("keeping temp dir", "path", tmpDir)
	} else {
		defer os.RemoveAll(tmpDir)
	}

	run := &run{
		reqs:      reqs,
		satisfied: make([]bool, len(reqs)),
		attempts:  make([][]Attempt, len(reqs)),
	}

	indexes := make([]index.PackageIndex, len(r.opts.IndexURLs))
	for i, u := range r.opts.IndexURLs {
		indexes[i] = r.factory(u, nil)
	}
	if err := r.phase(ctx, run, PhaseIndex, r.opts.IndexURLs, indexes, tmpDir); err != nil {
		return nil, err
	}

	if len(r.opts.FindLinks) > 0 && !run.allSatisfied() {
		findLinks := r.factory("", nil)
		findLinks.AddFindLinks(r.opts.FindLinks...)
		if err := r.phase(ctx, run, PhaseFindLinks, []string{PhaseFindLinks}, []index.PackageIndex{findLinks}, tmpDir); err != nil {
			return nil, err
		}
	}

	report := &Report{Target: target}
	if r.opts.KeepTempDir {
		report.TempDir = tmpDir
	}
	r.merge(ctx, run, tmpDir, target, report)

	for _, attempts := range run.attempts {
		report.Attempts = append(report.Attempts, attempts...)
	}
	report.Errors = append(run.errs, report.Errors...)
	return report, nil
}

// run holds per-requirement state. Each requirement is handled by one
// goroutine, so its slots have a single writer.
type run struct {
	reqs      []dist.Requirement
	satisfied []bool
	attempts  [][]Attempt

	mu   sync.Mutex
	errs []*RemoteQueryError
}

func (s *run) allSatisfied() bool {
	for _, ok := range s.satisfied {
		if !ok {
			return false
		}
	}
	return true
}

func (s *run) fail(qe *RemoteQueryError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, qe)
}

// phase queries the indexes in order for every unsatisfied requirement.
// Requirements run concurrently; each walks the indexes strictly in
// order so the earlier index wins.
func (r *Resolver) phase(ctx context.Context, s *run, phase string, urls []string, indexes []index.PackageIndex, tmpDir string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, req := range s.reqs {
		if s.satisfied[i] {
			continue
		}
		g.Go(func() error {
			for j, idx := range indexes {
				if err := ctx.Err(); err != nil {
					return err
				}
				r.logger.Debug("fetching", "phase", phase, "index", urls[j], "requirement", req.String())

				attempt := Attempt{Phase: phase, IndexURL: urls[j], Requirement: req.String()}
				d, err := idx.FetchDistribution(ctx, req, tmpDir, index.FetchOptions{Source: r.opts.SourceOnly})
				switch {
				case err != nil:
					qe := &RemoteQueryError{IndexURL: urls[j], Requirement: req.String(), Err: err}
					r.logger.Warn("index query failed", "index", urls[j], "requirement", req.String(), "error", err)
					s.fail(qe)
					attempt.Error = err.Error()
				case d != nil:
					r.logger.Debug("found", "index", urls[j], "dist", d.String())
					attempt.Found = d.String()
				}
				s.attempts[i] = append(s.attempts[i], attempt)

				if d != nil && err == nil {
					s.satisfied[i] = true
					return nil
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// merge re-resolves every requirement against the downloads in tmpDir and
// copies the hits into target, replacing files already there.
func (r *Resolver) merge(ctx context.Context, s *run, tmpDir, target string, report *Report) {
	local := r.factory(tmpDir, []string{})

	type hit struct {
		i       int
		d       *dist.Distribution
		attempt Attempt
	}
	var hits []hit
	var jobs []downloader.Job

	for i, req := range s.reqs {
		attempt := Attempt{Phase: PhaseMerge, IndexURL: tmpDir, Requirement: req.String()}

		d, err := local.FetchDistribution(ctx, req, tmpDir, index.FetchOptions{ForceScan: true})
		if err != nil {
			report.Errors = append(report.Errors, &RemoteQueryError{IndexURL: tmpDir, Requirement: req.String(), Err: err})
			attempt.Error = err.Error()
		}
		if d == nil {
			r.logger.Warn("not found", "requirement", req.String())
			report.NotFound = append(report.NotFound, req.String())
			s.attempts[i] = append(s.attempts[i], attempt)
			continue
		}

		hits = append(hits, hit{i: i, d: d, attempt: attempt})
		jobs = append(jobs, downloader.Job{
			URL:       d.LocalPath,
			DestPath:  filepath.Join(target, filepath.Base(d.LocalPath)),
			Overwrite: true,
		})
	}

	results := r.downloader.Download(ctx, jobs)
	for k, res := range results {
		h := hits[k]
		req := s.reqs[h.i]
		file := filepath.Base(res.Job.DestPath)

		if res.Error != nil {
			r.logger.Error("copying distribution", "dist", h.d.String(), "error", res.Error)
			h.attempt.Error = res.Error.Error()
			report.NotFound = append(report.NotFound, req.String())
			s.attempts[h.i] = append(s.attempts[h.i], h.attempt)
			continue
		}

		r.logger.Info("fetched", "dist", h.d.String(), "file", file)
		h.attempt.Found = h.d.String()
		s.attempts[h.i] = append(s.attempts[h.i], h.attempt)
		report.Satisfied = append(report.Satisfied, req.String())
		report.Files = append(report.Files, file)
	}
}

// expand appends name==version for every installed distribution when
// FetchSitePackages is set.
func (r *Resolver) expand(reqs []dist.Requirement) ([]dist.Requirement, error) {
	if !r.opts.FetchSitePackages {
		return reqs, nil
	}

	installed, err := index.InstalledDistributions(r.opts.SearchPath)
	if err != nil {
		return nil, fmt.Errorf("listing installed distributions: %w", err)
	}

	out := append([]dist.Requirement(nil), reqs...)
	for _, d := range installed {
		if d.Version == "" {
			continue
		}
		out = append(out, dist.Requirement{
			Project: d.Project,
			Specs:   []dist.Spec{{Op: "==", Version: d.Version}},
		})
	}
	return out, nil
}

// ensureDir creates target if missing and returns its absolute path.
func ensureDir(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", target, err)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return "", fmt.Errorf("creating %s: %w", abs, err)
		}
		return abs, nil
	}
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, abs)
	}
	return abs, nil
}
