package dist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/git-pkgs/purl"
	"github.com/git-pkgs/vers"
	"github.com/hashicorp/go-version"
)

// ErrInvalidRequirement is returned when a requirement string cannot be parsed.
var ErrInvalidRequirement = errors.New("invalid requirement")

// Spec is a single (operator, version) constraint.
type Spec struct {
	Op      string
	Version string
}

func (s Spec) String() string {
	return s.Op + s.Version
}

// Requirement is a project name plus version constraints and extras.
type Requirement struct {
	Project string
	Specs   []Spec
	Extras  []string
}

var (
	requirementRe = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[([^\]]*)\])?\s*(.*?)\s*$`)
	specRe        = regexp.MustCompile(`^\s*(===|==|!=|<=|>=|~=|<|>)\s*([A-Za-z0-9._*+!-]+)\s*$`)
	normalizeRe   = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName lowercases a project name and collapses runs of "-", "_"
// and "." into a single "-".
func NormalizeName(name string) string {
	return normalizeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ParseRequirement parses "name", "name[extra1,extra2] >= 1.0, < 2.0" or a
// package URL such as "pkg:pypi/name@1.0".
func ParseRequirement(s string) (Requirement, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "pkg:") {
		return parsePURL(strings.TrimSpace(s))
	}

	m := requirementRe.FindStringSubmatch(s)
	if m == nil {
		return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, s)
	}

	req := Requirement{Project: m[1]}

	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				continue
			}
			req.Extras = append(req.Extras, extra)
		}
	}

	if rest := strings.TrimSpace(m[3]); rest != "" {
		for _, part := range strings.Split(rest, ",") {
			sm := specRe.FindStringSubmatch(part)
			if sm == nil {
				return Requirement{}, fmt.Errorf("%w: %q: bad constraint %q", ErrInvalidRequirement, s, strings.TrimSpace(part))
			}
			req.Specs = append(req.Specs, Spec{Op: sm[1], Version: sm[2]})
		}
	}

	return req, nil
}

// ParseRequirements parses each string in order, stopping at the first error.
func ParseRequirements(args []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(args))
	for _, a := range args {
		req, err := ParseRequirement(a)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parsePURL(s string) (Requirement, error) {
	p, err := purl.Parse(s)
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: %q: %v", ErrInvalidRequirement, s, err)
	}
	if p.Type != "pypi" {
		return Requirement{}, fmt.Errorf("%w: %q: unsupported package type %q", ErrInvalidRequirement, s, p.Type)
	}
	req := Requirement{Project: p.Name}
	if p.Version != "" {
		req.Specs = []Spec{{Op: "==", Version: p.Version}}
	}
	return req, nil
}

// Key returns the normalized project name used for grouping and equality.
func (r Requirement) Key() string {
	return NormalizeName(r.Project)
}

func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Project)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	for i, s := range r.Specs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// MarshalYAML renders the requirement in its string form in reports.
func (r Requirement) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// Matches reports whether d is a distribution of the required project whose
// version satisfies every constraint.
func (r Requirement) Matches(d *Distribution) bool {
	return d.Key() == r.Key() && r.Contains(d.Version)
}

// Contains reports whether v satisfies every constraint of the requirement.
// Versions are compared under PEP 440 rules, with pre-releases and
// post-releases accepted like any other release. Versions PEP 440 cannot
// parse fall back to loose comparison.
func (r Requirement) Contains(v string) bool {
	if len(r.Specs) == 0 {
		return true
	}

	var specs []string
	for _, s := range r.Specs {
		if s.Op == "===" {
			if v != s.Version {
				return false
			}
			continue
		}
		specs = append(specs, s.String())
	}
	if len(specs) == 0 {
		return true
	}

	have, err := pep440.Parse(v)
	if err != nil {
		return r.containsLegacy(v)
	}
	constraint, err := pep440.NewSpecifiers(strings.Join(specs, ", "), pep440.WithPreRelease(true))
	if err != nil {
		return false
	}
	return constraint.Check(have)
}

// containsLegacy checks a version PEP 440 rejects with go-version's looser
// rules. Versions neither accepts satisfy nothing.
func (r Requirement) containsLegacy(v string) bool {
	have, err := version.NewVersion(v)
	if err != nil {
		return false
	}
	for _, s := range r.Specs {
		if s.Op != "===" && !specMatches(s, v, have) {
			return false
		}
	}
	return true
}

// CompareVersions orders two version strings, PEP 440 first and loosely
// when either side is not a PEP 440 version.
func CompareVersions(a, b string) int {
	va, errA := pep440.Parse(a)
	vb, errB := pep440.Parse(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return vers.Compare(a, b)
}

func specMatches(s Spec, raw string, have *version.Version) bool {
	switch s.Op {
	case "===":
		return raw == s.Version
	case "==", "!=":
		if strings.HasSuffix(s.Version, ".*") {
			prefix := strings.TrimSuffix(s.Version, "*")
			match := raw+"." == prefix || strings.HasPrefix(raw, prefix)
			return match == (s.Op == "==")
		}
	}

	constraint, err := version.NewConstraint(goConstraint(s))
	if err != nil {
		return false
	}
	return constraint.Check(have)
}

// goConstraint maps a requirement operator onto go-version syntax.
func goConstraint(s Spec) string {
	switch s.Op {
	case "==":
		return "= " + s.Version
	case "~=":
		return "~> " + s.Version
	default:
		return s.Op + " " + s.Version
	}
}
