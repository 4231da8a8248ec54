package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/logging"
)

func fooCandidates() map[string][]*dist.Distribution {
	return map[string][]*dist.Distribution{
		"foo": {
			{Project: "foo", Version: "3.0", Location: "/src/foo", Precedence: dist.PrecedenceDevelop},
			{Project: "foo", Version: "2.0", Location: "http://x/foo-2.0-py3.egg", Precedence: dist.PrecedenceBinary},
			{Project: "foo", Version: "2.0", Location: "http://x/foo-2.0.tar.gz", Precedence: dist.PrecedenceSource},
			{Project: "foo", Version: "1.0", Location: "http://x/foo-1.0.tar.gz", Precedence: dist.PrecedenceSource},
		},
	}
}

func locations(dists []*dist.Distribution) []string {
	var out []string
	for _, d := range dists {
		out = append(out, d.Location)
	}
	return out
}

func TestShow_NoRequirements(t *testing.T) {
	_, err := New(newFakeFactory().New, Options{}, nil).Show(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoRequirements)
}

func TestShow_Filters(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		req  string
		want []string
	}{
		{
			name: "all non-develop",
			req:  "foo",
			want: []string{"http://x/foo-2.0-py3.egg", "http://x/foo-2.0.tar.gz", "http://x/foo-1.0.tar.gz"},
		},
		{
			name: "source only",
			opts: Options{SourceOnly: true},
			req:  "foo",
			want: []string{"http://x/foo-2.0.tar.gz", "http://x/foo-1.0.tar.gz"},
		},
		{
			name: "develop ok",
			opts: Options{DevelopOK: true, OnlyBest: true},
			req:  "foo",
			want: []string{"/src/foo"},
		},
		{
			name: "only best source",
			opts: Options{SourceOnly: true, OnlyBest: true},
			req:  "foo",
			want: []string{"http://x/foo-2.0.tar.gz"},
		},
		{
			name: "version filter",
			req:  "foo<2",
			want: []string{"http://x/foo-1.0.tar.gz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			idx := &fakeIndex{url: "http://first/simple", cands: fooCandidates()}
			tt.opts.IndexURLs = []string{idx.url}
			r := New(newFakeFactory(idx).New, tt.opts, nil)

			// Act
			listings, err := r.Show(context.Background(), parseReqs(t, tt.req))

			// Assert
			require.NoError(t, err)
			require.Len(t, listings, 1)
			assert.Equal(t, tt.want, locations(listings[0].Distributions))
		})
	}
}

func TestShow_QueriesEveryIndex(t *testing.T) {
	// Arrange
	first := &fakeIndex{url: "http://first/simple", cands: fooCandidates()}
	second := &fakeIndex{url: "http://second/simple", cands: fooCandidates()}
	links := &fakeIndex{url: "", err: errors.New("unreachable")}
	r := New(newFakeFactory(first, second, links).New, Options{
		IndexURLs: []string{first.url, second.url},
		FindLinks: []string{"/links"},
		OnlyBest:  true,
	}, nil)

	// Act
	listings, err := r.Show(context.Background(), parseReqs(t, "foo", "bar"))

	// Assert
	require.NoError(t, err)
	require.Len(t, listings, 6)
	assert.Equal(t, first.url, listings[0].IndexURL)
	assert.Len(t, listings[0].Distributions, 1)
	assert.Empty(t, listings[1].Distributions)
	assert.Equal(t, second.url, listings[2].IndexURL)
	assert.Len(t, listings[2].Distributions, 1)
	assert.Equal(t, PhaseFindLinks, listings[4].IndexURL)
	assert.Contains(t, listings[4].Error, "unreachable")
	assert.Equal(t, []string{"/links"}, links.findLinks)
}

type countingLogger struct {
	logging.Logger
	infos map[string]int
}

func (l *countingLogger) Info(msg interface{}, _ ...interface{}) {
	l.infos[msg.(string)]++
}

func TestShow_SkipNoticeOncePerIndex(t *testing.T) {
	// Arrange
	idx := &fakeIndex{url: "http://first/simple", cands: fooCandidates()}
	logger := &countingLogger{Logger: logging.Discard(), infos: make(map[string]int)}
	r := New(newFakeFactory(idx).New, Options{IndexURLs: []string{idx.url}}, logger)

	// Act
	_, err := r.Show(context.Background(), parseReqs(t, "foo", "foo>=1"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, logger.infos["skipping development or system egg"])
}
