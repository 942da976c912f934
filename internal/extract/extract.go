// Package extract turns archive files into lazy sequences of decompressed
// record streams.
//
// The primary input is a ZIP archive whose members hold newline-delimited
// JSON. Members are surfaced one at a time as io.ReadCloser values; nothing
// is ever fully materialized, so archives larger than memory load fine.
// Plain files and gzip files are accepted too and behave as single-member
// archives, which keeps the pipeline identical for pre-extracted inputs.
package extract

import (
	"archive/zip"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Sentinel errors for the extraction taxonomy. Callers classify with
// errors.Is; the wrapped error keeps the original cause.
var (
	// ErrNotFound indicates the archive path does not exist.
	ErrNotFound = errors.New("archive not found")

	// ErrArchiveCorrupt indicates a damaged container: an unreadable central
	// directory, a malformed member header, or a member whose checksum does
	// not match its content.
	ErrArchiveCorrupt = errors.New("archive corrupt")
)

// Member is one decompressed archive entry. Read it to completion (or Close
// early) before calling Archive.Next again; member readers share the
// underlying file handle.
type Member struct {
	// Name is the entry's path inside the archive, or the file's own path
	// for single-member inputs.
	Name string

	// Size is the declared uncompressed size, or -1 when unknown (gzip and
	// plain streams).
	Size int64

	rc io.ReadCloser
}

// Read streams decompressed member content. Checksum mismatches detected by
// the decompressor are reported as ErrArchiveCorrupt.
func (m *Member) Read(p []byte) (int, error) {
	n, err := m.rc.Read(p)
	if err != nil && err != io.EOF {
		err = classifyCorrupt(m.Name, err)
	}
	return n, err
}

// Close releases the member's reader.
func (m *Member) Close() error { return m.rc.Close() }

// Archive is a sequence of members produced from one input file. It is not
// safe for concurrent use; each load job opens its own Archive.
type Archive struct {
	path    string
	members []opener
	next    int
	closers []io.Closer
}

type opener struct {
	name string
	size int64
	open func() (io.ReadCloser, error)
}

// Open opens the archive at path and prepares its member sequence. The kind
// of container is chosen by extension: ".zip" is read via archive/zip,
// ".gz"/".gzip" via compress/gzip, anything else is treated as an already
// extracted stream.
//
// A missing path yields ErrNotFound. A ZIP whose central directory cannot be
// parsed yields ErrArchiveCorrupt immediately; member-level corruption
// surfaces later from Member.Read.
func Open(ctx context.Context, path string) (*Archive, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	switch {
	case strings.HasSuffix(path, ".zip"):
		return openZip(path)
	case strings.HasSuffix(path, ".gz"), strings.HasSuffix(path, ".gzip"):
		return openGzip(path)
	default:
		return openPlain(path)
	}
}

// Next returns the next member in archive order, or io.EOF after the last
// one.
func (a *Archive) Next() (*Member, error) {
	if a.next >= len(a.members) {
		return nil, io.EOF
	}
	o := a.members[a.next]
	a.next++

	rc, err := o.open()
	if err != nil {
		return nil, classifyCorrupt(o.name, err)
	}
	return &Member{Name: o.name, Size: o.size, rc: rc}, nil
}

// Members reports how many entries the archive holds.
func (a *Archive) Members() int { return len(a.members) }

// Close releases the underlying file handle(s). Members obtained from Next
// become unusable afterwards.
func (a *Archive) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openZip(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, classifyCorrupt(path, err)
	}

	a := &Archive{path: path, closers: []io.Closer{zr}}
	for _, f := range zr.File {
		f := f
		a.members = append(a.members, opener{
			name: f.Name,
			size: int64(f.UncompressedSize64),
			open: func() (io.ReadCloser, error) { return f.Open() },
		})
	}
	return a, nil
}

func openGzip(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	a := &Archive{path: path, closers: []io.Closer{f}}
	a.members = append(a.members, opener{
		name: path,
		size: -1,
		open: func() (io.ReadCloser, error) {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return nil, err
			}
			return gz, nil
		},
	})
	return a, nil
}

func openPlain(path string) (*Archive, error) {
	// Stat up front so a missing path is reported from Open, not from the
	// first Next call.
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	a := &Archive{path: path}
	a.members = append(a.members, opener{
		name: path,
		size: -1,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	})
	return a, nil
}

// classifyCorrupt maps container/decompressor error values onto
// ErrArchiveCorrupt while preserving the cause in the message.
func classifyCorrupt(name string, err error) error {
	var flateErr flate.CorruptInputError
	switch {
	case errors.Is(err, zip.ErrFormat),
		errors.Is(err, zip.ErrChecksum),
		errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum),
		errors.As(err, &flateErr):
		return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, name, err)
	}
	return err
}
