package archive

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

type zipArchive struct {
	mu       sync.Mutex
	filename string
	rc       *zip.ReadCloser
	closed   bool
}

func openZip(filename string) (*zipArchive, error) {
	rc, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("opening zip %s: %w", filename, err)
	}
	return &zipArchive{filename: filename, rc: rc}, nil
}

func (a *zipArchive) Names() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0, len(a.rc.File))
	for _, f := range a.rc.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func (a *zipArchive) find(member string) (*zip.File, error) {
	for _, f := range a.rc.File {
		if f.Name == member {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
}

func (a *zipArchive) Lines(member string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	f, err := a.find(member)
	if err != nil {
		return nil, err
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", member, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", member, err)
	}
	return splitLines(data), nil
}

func (a *zipArchive) Extract(member, destDir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if _, err := memberPath(destDir, member); err != nil {
		return err
	}

	f, err := a.find(member)
	if err != nil {
		return err
	}
	if err := extractZipMember(f, destDir); err != nil {
		return fmt.Errorf("extracting %s: %w", member, err)
	}
	return nil
}

// extractZipMember writes f below destDir. A name ending in "/" is a
// directory entry and only creates the directory.
func extractZipMember(f *zip.File, destDir string) error {
	target, err := memberPath(destDir, f.Name)
	if err != nil {
		return err
	}

	if strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0755)
	}

	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	return writeFile(target, r, f.Mode().Perm())
}

func (a *zipArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	return a.rc.Close()
}
