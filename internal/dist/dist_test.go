package dist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input      string
		wantName   string
		wantSpecs  []Spec
		wantExtras []string
	}{
		{"compoze", "compoze", nil, nil},
		{"compoze==0.1", "compoze", []Spec{{"==", "0.1"}}, nil},
		{"compoze == 0.1", "compoze", []Spec{{"==", "0.1"}}, nil},
		{"compoze>=0.1,<=0.3dev", "compoze", []Spec{{">=", "0.1"}, {"<=", "0.3dev"}}, nil},
		{"compoze[nonesuch]", "compoze", nil, []string{"nonesuch"}},
		{"compoze[nonesuch,bother]", "compoze", nil, []string{"nonesuch", "bother"}},
		{"zope.interface [test] ~= 5.0", "zope.interface", []Spec{{"~=", "5.0"}}, []string{"test"}},
		{"pkg:pypi/requests@2.31.0", "requests", []Spec{{"==", "2.31.0"}}, nil},
		{"pkg:pypi/requests", "requests", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req, err := ParseRequirement(tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, req.Project)
			assert.Equal(t, tt.wantSpecs, req.Specs)
			assert.Equal(t, tt.wantExtras, req.Extras)
		})
	}
}

func TestParseRequirement_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "-foo", "foo >> 1.0", "foo ==", "pkg:npm/lodash@4.17.21"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRequirement(input)
			assert.ErrorIs(t, err, ErrInvalidRequirement)
		})
	}
}

func TestRequirement_String(t *testing.T) {
	req, err := ParseRequirement("Foo [a, b] >= 1.0, < 2.0")
	require.NoError(t, err)

	assert.Equal(t, "Foo[a,b]>=1.0,<2.0", req.String())
}

func TestRequirement_Key(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"compoze", "compoze"},
		{"Zope.Interface", "zope-interface"},
		{"foo__bar-.baz", "foo-bar-baz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Requirement{Project: tt.name}.Key())
		})
	}
}

func TestRequirement_Contains(t *testing.T) {
	tests := []struct {
		req     string
		version string
		ok      bool
	}{
		{"foo", "1.0", true},
		{"foo", "not-a-version", true},
		{"foo==1.0", "1.0", true},
		{"foo==1.0", "1.0.0", true},
		{"foo==1.0", "1.1", false},
		{"foo!=1.0", "1.1", true},
		{"foo!=1.0", "1.0", false},
		{"foo>=1.0", "2.0", true},
		{"foo>=1.0", "0.9", false},
		{"foo>1.0", "1.0", false},
		{"foo<2.0", "1.9", true},
		{"foo<=1.0", "1.0", true},
		{"foo>=1.0,<2.0", "1.5", true},
		{"foo>=1.0,<2.0", "2.0", false},
		{"foo~=1.4", "1.9", true},
		{"foo~=1.4", "2.0", false},
		{"foo==1.4.*", "1.4.2", true},
		{"foo==1.4.*", "1.5", false},
		{"foo==3.14", "garbage!", false},
		{"foo===weird", "weird", true},
		{"foo===1.0", "1.0.0", false},
		{"foo==1.0.post1", "1.0.post1", true},
		{"foo==1.0.post1", "1.0", false},
		{"foo>=1.0", "1.0.post1", true},
		{"foo>=1.0", "1.1.dev1", true},
		{"foo>=1.0", "1.0-1", true},
		{"foo>=1.0", "1.0rc1", false},
		{"foo==1.0+local.1", "1.0+local.1", true},
		{"foo<1.0", "0.9.post1", true},
		{"foo>=2!1.0", "1.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.req+"_"+tt.version, func(t *testing.T) {
			req, err := ParseRequirement(tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.ok, req.Contains(tt.version))
		})
	}
}

func TestRequirement_Matches(t *testing.T) {
	req, err := ParseRequirement("Zope.Interface>=5")
	require.NoError(t, err)

	assert.True(t, req.Matches(&Distribution{Project: "zope-interface", Version: "5.1"}))
	assert.False(t, req.Matches(&Distribution{Project: "zope-interface", Version: "4.0"}))
	assert.False(t, req.Matches(&Distribution{Project: "zope-schema", Version: "5.1"}))
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantProject string
		wantVersion string
		wantPrec    Precedence
		wantOK      bool
	}{
		{"testpackage-3.14.tar.gz", "testpackage", "3.14", PrecedenceSource, true},
		{"Some-Project-1.2b1.tgz", "Some-Project", "1.2b1", PrecedenceSource, true},
		{"compoze-0.1.zip", "compoze", "0.1", PrecedenceSource, true},
		{"foo-2.0.tar.bz2", "foo", "2.0", PrecedenceSource, true},
		{"foo-1.0-py2.7.egg", "foo", "1.0", PrecedenceBinary, true},
		{"foo_bar-1.0-py3-none-any.whl", "foo_bar", "1.0", PrecedenceBinary, true},
		{"README.txt", "", "", 0, false},
		{"noversion.tar.gz", "", "", 0, false},
		{"-1.0.tar.gz", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, version, prec, ok := ParseFilename(tt.name)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantProject, project)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantPrec, prec)
		})
	}
}

func TestDistribution_Filename(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"https://example.com/packages/foo-1.0.tar.gz#md5=abc", "foo-1.0.tar.gz"},
		{"https://example.com/packages/foo-1.0.tar.gz?x=1", "foo-1.0.tar.gz"},
		{"/tmp/pool/foo-1.0.zip", "foo-1.0.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			d := &Distribution{Location: tt.location}
			assert.Equal(t, tt.want, d.Filename())
		})
	}
}

func TestGroupEntries(t *testing.T) {
	// Arrange
	entries := []IndexEntry{
		{Project: "zebra", Version: "1.0", Filename: "zebra-1.0.tar.gz"},
		{Project: "alpha", Version: "2.0", Filename: "alpha-2.0.tar.gz"},
		{Project: "zebra", Version: "0.9", Filename: "zebra-0.9.zip"},
		{Project: "Beta", Version: "1.0", Filename: "Beta-1.0.tgz"},
	}

	// Act
	groups := GroupEntries(entries)

	// Assert
	require.Len(t, groups, 3)
	assert.Equal(t, "Beta", groups[0].Project)
	assert.Equal(t, "alpha", groups[1].Project)
	assert.Equal(t, "zebra", groups[2].Project)
	assert.Equal(t, []Release{
		{Version: "1.0", Filename: "zebra-1.0.tar.gz"},
		{Version: "0.9", Filename: "zebra-0.9.zip"},
	}, groups[2].Releases)
}

func TestSortCandidates(t *testing.T) {
	// Arrange
	dists := []*Distribution{
		{Project: "foo", Version: "1.0", Location: "b", Precedence: PrecedenceSource},
		{Project: "foo", Version: "2.0", Location: "c", Precedence: PrecedenceSource},
		{Project: "foo", Version: "1.0", Location: "a", Precedence: PrecedenceBinary},
		{Project: "foo", Version: "1.0", Location: "a", Precedence: PrecedenceSource},
	}

	// Act
	SortCandidates(dists)

	// Assert
	assert.Equal(t, "2.0", dists[0].Version)
	assert.Equal(t, PrecedenceBinary, dists[1].Precedence)
	assert.Equal(t, "a", dists[2].Location)
	assert.Equal(t, "b", dists[3].Location)
}

func TestSortCandidates_ReleaseKinds(t *testing.T) {
	// Arrange
	var dists []*Distribution
	for _, v := range []string{"1.0.dev1", "1.0", "1.0rc1", "0.9", "1.0.post1", "1.0a2", "1.1.dev1"} {
		dists = append(dists, &Distribution{Project: "foo", Version: v, Location: v})
	}

	// Act
	SortCandidates(dists)

	// Assert
	var got []string
	for _, d := range dists {
		got = append(got, d.Version)
	}
	assert.Equal(t, []string{"1.1.dev1", "1.0.post1", "1.0", "1.0rc1", "1.0a2", "1.0.dev1", "0.9"}, got)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0", 0},
		{"1.0.post1", "1.0", 1},
		{"1.0-1", "1.0.post1", 0},
		{"1.0.dev1", "1.0a1", -1},
		{"1!0.1", "2.0", 1},
		{"2.0", "10.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := CompareVersions(tt.a, tt.b)

			switch tt.want {
			case 0:
				assert.Zero(t, got)
			case 1:
				assert.Positive(t, got)
			default:
				assert.Negative(t, got)
			}
		})
	}
}

func TestPrecedence_String(t *testing.T) {
	assert.Equal(t, "develop", PrecedenceDevelop.String())
	assert.Equal(t, "source", PrecedenceSource.String())
	assert.Equal(t, "binary", PrecedenceBinary.String())
	assert.True(t, PrecedenceDevelop < PrecedenceSource)
	assert.True(t, PrecedenceSource < PrecedenceBinary)
}
