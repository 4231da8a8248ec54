// Package requirements reads requirement lists from requirements files and
// from the "versions" sections of the configuration.
package requirements

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/frederic-klein/yapi/internal/dist"
)

// Parser parses requirements files.
type Parser struct{}

// NewParser creates a new requirements file parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseResult holds what a requirements file declares.
type ParseResult struct {
	Requirements []dist.Requirement

	// IndexURL is the last -i/--index-url seen, replacing the default index.
	IndexURL       string
	ExtraIndexURLs []string
	FindLinks      []string
}

// IndexURLs merges the file's indexes with the configured ones. Configured
// indexes take the place of the file's --index-url; extra indexes are
// searched after either.
func (r *ParseResult) IndexURLs(configured []string) []string {
	var urls []string
	switch {
	case len(configured) > 0:
		urls = append(urls, configured...)
	case r.IndexURL != "":
		urls = append(urls, r.IndexURL)
	}
	for _, u := range r.ExtraIndexURLs {
		if !contains(urls, u) {
			urls = append(urls, u)
		}
	}
	return urls
}

var optionRe = regexp.MustCompile(`^(-[rfi]|--requirement|--find-links|--index-url|--extra-index-url)(?:\s+|=)(\S+)$`)

// Parse parses a requirements file. Nested "-r" files are read relative to
// the including file.
func (p *Parser) Parse(path string) (*ParseResult, error) {
	result := &ParseResult{}
	if err := p.parse(path, result, make(map[string]bool)); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Parser) parse(path string, result *ParseResult, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening requirements file: %w", err)
	}
	defer file.Close()

	var pending string
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())

		// Backslash continues the line
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`) + " "
			continue
		}
		line = strings.TrimSpace(pending + line)
		pending = ""
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "-") {
			if err := p.option(path, line, result, seen); err != nil {
				return fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			continue
		}

		// Environment markers are not evaluated
		if i := strings.Index(line, ";"); i != -1 {
			line = strings.TrimSpace(line[:i])
		}

		req, err := dist.ParseRequirement(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		result.Requirements = append(result.Requirements, req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requirements file: %w", err)
	}
	return nil
}

func (p *Parser) option(path, line string, result *ParseResult, seen map[string]bool) error {
	matches := optionRe.FindStringSubmatch(line)
	if matches == nil {
		return fmt.Errorf("unsupported option %q", line)
	}

	switch value := matches[2]; matches[1] {
	case "-r", "--requirement":
		if !filepath.IsAbs(value) {
			value = filepath.Join(filepath.Dir(path), value)
		}
		return p.parse(value, result, seen)
	case "-f", "--find-links":
		result.FindLinks = append(result.FindLinks, value)
	case "-i", "--index-url":
		result.IndexURL = value
	case "--extra-index-url":
		result.ExtraIndexURLs = append(result.ExtraIndexURLs, value)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// stripComment drops "#" comments that start a line or follow whitespace.
func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i != -1 {
		return line[:i]
	}
	if i := strings.Index(line, "\t#"); i != -1 {
		return line[:i]
	}
	return line
}

// ExpandVersions turns a versions section (project -> version spec) into
// requirement strings. A "name|extras" key stands for "name[extras]"; a
// spec without any of "<", "=" or ">" is an exact version.
func ExpandVersions(section map[string]string) []string {
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(section))
	for _, name := range names {
		spec := strings.TrimSpace(section[name])
		req := name
		if project, extras, ok := strings.Cut(name, "|"); ok {
			req = fmt.Sprintf("%s[%s]", project, extras)
		}

		if strings.ContainsAny(spec, "<=>") {
			out = append(out, fmt.Sprintf("%s %s", req, spec))
		} else {
			out = append(out, fmt.Sprintf("%s == %s", req, spec))
		}
	}
	return out
}
