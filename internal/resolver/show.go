package resolver

import (
	"context"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/index"
)

// Listing is the candidates one index offers for one requirement.
type Listing struct {
	IndexURL      string               `yaml:"index"`
	Requirement   string               `yaml:"requirement"`
	Distributions []*dist.Distribution `yaml:"distributions"`
	Error         string               `yaml:"error,omitempty"`
}

// Show lists, per index and requirement, every candidate passing the
// develop and source-only filters. Unlike Fetch it queries every index for
// every requirement. With OnlyBest it keeps the first match only.
func (r *Resolver) Show(ctx context.Context, reqs []dist.Requirement) ([]Listing, error) {
	reqs, err := r.expand(reqs)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, ErrNoRequirements
	}

	urls := append([]string(nil), r.opts.IndexURLs...)
	indexes := make([]index.PackageIndex, 0, len(urls)+1)
	for _, u := range urls {
		indexes = append(indexes, r.factory(u, nil))
	}
	if len(r.opts.FindLinks) > 0 {
		findLinks := r.factory("", nil)
		findLinks.AddFindLinks(r.opts.FindLinks...)
		indexes = append(indexes, findLinks)
		urls = append(urls, PhaseFindLinks)
	}

	var listings []Listing
	for i, idx := range indexes {
		r.logger.Debug("package index", "url", urls[i])
		skipped := make(map[string]bool)

		for _, req := range reqs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			listing := Listing{IndexURL: urls[i], Requirement: req.String()}
			cands, err := idx.Candidates(ctx, req)
			if err != nil {
				qe := &RemoteQueryError{IndexURL: urls[i], Requirement: req.String(), Err: err}
				r.logger.Warn("index query failed", "index", urls[i], "requirement", req.String(), "error", err)
				listing.Error = qe.Error()
				listings = append(listings, listing)
				continue
			}

			listing.Distributions = r.filter(req, cands, skipped)
			for _, d := range listing.Distributions {
				r.logger.Debug("candidate", "project", d.Project, "location", d.Location)
			}
			listings = append(listings, listing)
		}
	}
	return listings, nil
}

// filter applies the develop and source-only rules. skipped keeps the
// "skipping" notice to one per distribution.
func (r *Resolver) filter(req dist.Requirement, cands []*dist.Distribution, skipped map[string]bool) []*dist.Distribution {
	var out []*dist.Distribution
	for _, d := range cands {
		if d.Precedence == dist.PrecedenceDevelop && !r.opts.DevelopOK {
			if !skipped[d.Location] {
				skipped[d.Location] = true
				r.logger.Info("skipping development or system egg", "dist", d.String())
			}
			continue
		}
		if !req.Matches(d) {
			continue
		}
		if r.opts.SourceOnly && d.Precedence > dist.PrecedenceSource {
			continue
		}
		out = append(out, d)
		if r.opts.OnlyBest {
			break
		}
	}
	return out
}
