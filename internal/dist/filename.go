package dist

import (
	"strings"
)

var sourceExts = []string{".tar.gz", ".tgz", ".tar.bz2", ".tbz", ".tar", ".zip"}

var binaryExts = []string{".egg", ".whl"}

// ParseFilename recovers the project name, version and precedence from a
// distribution filename such as "Foo-1.0.tar.gz" or "foo-1.0-py3-none-any.whl".
func ParseFilename(name string) (project, version string, prec Precedence, ok bool) {
	for _, ext := range binaryExts {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			base := name[:len(name)-len(ext)]
			fields := strings.Split(base, "-")
			if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
				return "", "", 0, false
			}
			return fields[0], fields[1], PrecedenceBinary, true
		}
	}

	for _, ext := range sourceExts {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			base := name[:len(name)-len(ext)]
			project, version, ok := splitNameVersion(base)
			if !ok {
				return "", "", 0, false
			}
			return project, version, PrecedenceSource, true
		}
	}

	return "", "", 0, false
}

// IsDistributionFile reports whether name carries a recognized distribution
// extension.
func IsDistributionFile(name string) bool {
	_, _, _, ok := ParseFilename(name)
	return ok
}

// splitNameVersion splits "Some-Project-1.2b1" at the first dash followed by
// a digit.
func splitNameVersion(base string) (string, string, bool) {
	for i := 0; i < len(base)-1; i++ {
		if base[i] == '-' && base[i+1] >= '0' && base[i+1] <= '9' {
			if i == 0 {
				return "", "", false
			}
			return base[:i], base[i+1:], true
		}
	}
	return "", "", false
}
