package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

type tarArchive struct {
	mu       sync.Mutex
	filename string
	f        *os.File
	names    []string
	closed   bool
}

func openTar(filename string) (*tarArchive, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening tar: %w", err)
	}

	a := &tarArchive{filename: filename, f: f}
	err = a.walk(func(hdr *tar.Header, _ io.Reader) (bool, error) {
		a.names = append(a.names, tarName(hdr))
		return false, nil
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading tar %s: %w", filename, err)
	}
	return a, nil
}

func tarName(hdr *tar.Header) string {
	return strings.TrimSuffix(hdr.Name, "/")
}

// stream rewinds the file and returns a tar reader over it. The compression
// is sniffed from the content, so a plain tar with a .tgz name still reads.
func (a *tarArchive) stream() (*tar.Reader, func(), error) {
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(a.f)
	magic, _ := br.Peek(3)

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("decompressing gzip: %w", err)
		}
		return tar.NewReader(gz), func() { gz.Close() }, nil
	case bytes.Equal(magic, []byte("BZh")):
		return tar.NewReader(bzip2.NewReader(br)), func() {}, nil
	default:
		return tar.NewReader(br), func() {}, nil
	}
}

// walk calls fn for every header until fn asks to stop or fails.
func (a *tarArchive) walk(fn func(hdr *tar.Header, r io.Reader) (stop bool, err error)) error {
	tr, done, err := a.stream()
	if err != nil {
		return err
	}
	defer done()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		stop, err := fn(hdr, tr)
		if err != nil || stop {
			return err
		}
	}
}

func (a *tarArchive) Names() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	names := make([]string, len(a.names))
	copy(names, a.names)
	return names, nil
}

func (a *tarArchive) Lines(member string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	var data []byte
	found := false
	err := a.walk(func(hdr *tar.Header, r io.Reader) (bool, error) {
		if tarName(hdr) != member {
			return false, nil
		}
		found = true
		if hdr.Typeflag != tar.TypeReg {
			return true, fmt.Errorf("%s is not a regular file", member)
		}
		var err error
		data, err = io.ReadAll(r)
		return true, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", member, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	return splitLines(data), nil
}

func (a *tarArchive) Extract(member, destDir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if _, err := memberPath(destDir, member); err != nil {
		return err
	}

	found := false
	err := a.walk(func(hdr *tar.Header, r io.Reader) (bool, error) {
		if tarName(hdr) != member {
			return false, nil
		}
		found = true
		return true, extractTarMember(hdr, r, destDir)
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", member, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	return nil
}

func extractTarMember(hdr *tar.Header, r io.Reader, destDir string) error {
	target, err := memberPath(destDir, tarName(hdr))
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0755)
	case tar.TypeReg:
		return writeFile(target, r, os.FileMode(hdr.Mode).Perm())
	default:
		return fmt.Errorf("unsupported member type %q", hdr.Typeflag)
	}
}

func (a *tarArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	return a.f.Close()
}
