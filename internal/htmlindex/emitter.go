// Package htmlindex writes and reads the two-level HTML package index.
package htmlindex

import (
	"fmt"
	"html"
	"io"
)

// Link is one anchor on an index page.
type Link struct {
	Href string
	Text string
}

// Emitter writes index pages.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates a new page emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// EmitIndex writes the top-level page linking each project's directory.
func (e *Emitter) EmitIndex(projects []string) error {
	links := make([]Link, 0, len(projects))
	for _, p := range projects {
		links = append(links, Link{Href: p, Text: p})
	}
	return e.emit("Package Index", links)
}

// EmitProject writes a project page. Hrefs point two levels up, at the
// archives next to the index directory.
func (e *Emitter) EmitProject(project string, filenames []string) error {
	links := make([]Link, 0, len(filenames))
	for _, f := range filenames {
		links = append(links, Link{Href: "../../" + f, Text: f})
	}
	return e.emit(project+" Distributions", links)
}

func (e *Emitter) emit(heading string, links []Link) error {
	if _, err := fmt.Fprintf(e.w, "<html>\n<body>\n<h1>%s</h1>\n<ul>\n", html.EscapeString(heading)); err != nil {
		return err
	}

	for _, l := range links {
		if _, err := fmt.Fprintf(e.w, "<li><a href=\"%s\">%s</a></li>\n",
			html.EscapeString(l.Href), html.EscapeString(l.Text)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(e.w, "</ul>\n</body>\n</html>\n")
	return err
}
