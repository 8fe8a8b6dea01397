package pgn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/inhies/go-bytesize"
	"github.com/klauspost/compress/zstd"
)

// Source is the decoded text of a PGN file together with its sizes.
type Source struct {
	Path string
	Text string
	// Stored is the size on disk, Size the decoded size.
	Stored bytesize.ByteSize
	Size   bytesize.ByteSize
}

// Compressed reports whether the file was decoded from an archive format.
func (s *Source) Compressed() bool {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".zst", ".bz2":
		return true
	}
	return false
}

// countingReader tracks how many bytes were read through it.
type countingReader struct {
	reader    io.Reader
	bytesRead bytesize.ByteSize
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += bytesize.ByteSize(uint64(n))
	return n, err
}

// ReadFile loads a plain, zstd (.zst) or bzip2 (.bz2) PGN file.
func ReadFile(path string) (*Source, error) {
	file, err := os.Open(path) // #nosec G304 -- user-selected PGN path
	if err != nil {
		return nil, fmt.Errorf("failed to open PGN file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat PGN file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	out, closeFn, err := decoder(path, file)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	counter := &countingReader{reader: out}
	data, err := io.ReadAll(counter)
	if err != nil {
		return nil, fmt.Errorf("failed to read PGN file %s: %w", path, err)
	}

	return &Source{
		Path:   path,
		Text:   string(data),
		Stored: bytesize.ByteSize(uint64(stat.Size())),
		Size:   counter.bytesRead,
	}, nil
}

func decoder(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	case ".bz2":
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bzip2 stream: %w", err)
		}
		return br, func() { _ = br.Close() }, nil
	default:
		return r, func() {}, nil
	}
}
