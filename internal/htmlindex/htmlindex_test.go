package htmlindex

import (
	"bytes"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_EmitIndex(t *testing.T) {
	tests := []struct {
		name     string
		projects []string
		want     string
	}{
		{
			name:     "empty",
			projects: nil,
			want:     "<html>\n<body>\n<h1>Package Index</h1>\n<ul>\n</ul>\n</body>\n</html>\n",
		},
		{
			name:     "two projects",
			projects: []string{"alpha", "beta"},
			want: `<html>
<body>
<h1>Package Index</h1>
<ul>
<li><a href="alpha">alpha</a></li>
<li><a href="beta">beta</a></li>
</ul>
</body>
</html>
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			err := NewEmitter(&buf).EmitIndex(tt.projects)

			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEmitter_EmitProject(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	want := `<html>
<body>
<h1>testpackage Distributions</h1>
<ul>
<li><a href="../../testpackage-3.14.tar.gz">testpackage-3.14.tar.gz</a></li>
<li><a href="../../testpackage-3.13.zip">testpackage-3.13.zip</a></li>
</ul>
</body>
</html>
`

	// Act
	err := NewEmitter(&buf).EmitProject("testpackage", []string{"testpackage-3.14.tar.gz", "testpackage-3.13.zip"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, want, buf.String())
}

func TestEmitter_Escapes(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewEmitter(&buf).EmitProject("a&b", []string{`x"<y>.tar.gz`}))

	assert.Contains(t, buf.String(), "<h1>a&amp;b Distributions</h1>")
	assert.Contains(t, buf.String(), `href="../../x&#34;&lt;y&gt;.tar.gz"`)
}

func TestParser_Parse(t *testing.T) {
	// Arrange
	page := `<html><body>
<h1>Links for foo</h1>
<a href="../../packages/foo-1.0.tar.gz#sha256=abc">foo-1.0.tar.gz</a><br/>
<a href="https://files.example.com/foo-2.0.zip" data-requires-python="&gt;=3">foo-2.0.zip</a>
<a name="anchor-only">no href</a>
<li><a href="foo-0.9.tgz">foo-0.9.tgz</li>
</body></html>`
	base, err := url.Parse("https://index.example.com/simple/foo/")
	require.NoError(t, err)

	// Act
	links, err := ParseLinks(strings.NewReader(page), base)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{Href: "https://index.example.com/packages/foo-1.0.tar.gz", Text: "foo-1.0.tar.gz"},
		{Href: "https://files.example.com/foo-2.0.zip", Text: "foo-2.0.zip"},
		{Href: "https://index.example.com/simple/foo/foo-0.9.tgz", Text: "foo-0.9.tgz"},
	}, links)
}

func TestParser_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEmitter(&buf).EmitProject("foo", []string{"foo-1.0.tar.gz", "foo-1.1.zip"}))

	links, err := NewParser(&buf, nil).Parse()

	require.NoError(t, err)
	assert.Equal(t, []Link{
		{Href: "../../foo-1.0.tar.gz", Text: "foo-1.0.tar.gz"},
		{Href: "../../foo-1.1.zip", Text: "foo-1.1.zip"},
	}, links)
}
