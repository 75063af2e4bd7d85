// Package ingest opens document spools for the runtime, transparently
// decompressing zstd and lz4 streams based on their frame magic. Documents
// are newline-delimited text.
package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// Open returns a document reader for the spool at path. "-" reads stdin.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		r, err := NewReader(os.Stdin)
		if err != nil {
			return nil, err
		}
		return &spool{Reader: r}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open spool: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &spool{Reader: r, closers: []io.Closer{f}}, nil
}

// NewReader sniffs the first bytes of r and wraps it in the matching
// decompressor. Plain streams pass through unchanged.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("ingest: sniff spool: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("ingest: zstd spool: %w", err)
		}
		return dec.IOReadCloser(), nil
	case bytes.HasPrefix(head, lz4Magic):
		return lz4.NewReader(br), nil
	default:
		return br, nil
	}
}

type spool struct {
	io.Reader
	closers []io.Closer
}

func (s *spool) Close() error {
	var err error
	if c, ok := s.Reader.(io.Closer); ok {
		err = c.Close()
	}
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
