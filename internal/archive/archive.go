// Package archive provides a read-only view over the archive formats source
// distributions ship in: tar (plain, gzip or bzip2) and zip (including eggs).
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrClosed is returned by every operation on a closed archive.
	ErrClosed = errors.New("archive is closed")

	// ErrPathTraversal is returned when a member name would escape the
	// extraction directory.
	ErrPathTraversal = errors.New("archive member escapes extraction root")

	// ErrNoArchiver is returned by Open for filenames without a known suffix.
	ErrNoArchiver = errors.New("no archiver for file")

	// ErrMemberNotFound is returned when a named member is not in the archive.
	ErrMemberNotFound = errors.New("archive member not found")
)

// Format identifies an archive by its filename suffix.
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTgz    Format = "tgz"
	FormatTarBz2 Format = "tar.bz2"
	FormatZip    Format = "zip"
	FormatEgg    Format = "egg"
)

// Suffixes are checked in this order.
var archivers = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTgz},
	{".bz2", FormatTarBz2},
	{".zip", FormatZip},
	{".egg", FormatEgg},
}

// IsZip reports whether the format is read with the zip reader.
func (f Format) IsZip() bool {
	return f == FormatZip || f == FormatEgg
}

// Detect returns the archive format for filename. ok is false when no
// archiver handles the suffix; callers should skip such files.
func Detect(filename string) (format Format, ok bool) {
	for _, a := range archivers {
		if strings.HasSuffix(filename, a.suffix) {
			return a.format, true
		}
	}
	return "", false
}

// Archive is an open, read-only archive.
type Archive interface {
	// Names returns the member names in archive order.
	Names() ([]string, error)

	// Lines returns the text lines of a member.
	Lines(member string) ([]string, error)

	// Extract writes one member to destDir/member, creating parent
	// directories. Directory members only create the directory.
	Extract(member, destDir string) error

	// Close releases the archive. Any later call returns ErrClosed.
	Close() error
}

// Open opens filename with the archiver its suffix selects.
func Open(filename string) (Archive, error) {
	format, ok := Detect(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoArchiver, filename)
	}
	if format.IsZip() {
		return openZip(filename)
	}
	return openTar(filename)
}

// memberPath maps a member name below destDir, rejecting absolute names and
// names with ".." segments.
func memberPath(destDir, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
		}
	}
	return filepath.Join(destDir, filepath.FromSlash(slashed)), nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	return f.Close()
}

// splitLines decodes data as UTF-8, falling back to Latin-1, and splits it
// into lines without their terminators.
func splitLines(data []byte) []string {
	text := string(data)
	if !utf8.Valid(data) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
			text = string(decoded)
		}
	}
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
