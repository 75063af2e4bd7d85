package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const spoolText = "first document\nsecond document\nthird document\n"

func writeSpool(t *testing.T, name string, write func(w io.Writer)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	write(f)
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", name, err)
	}
	return path
}

func readAll(t *testing.T, path string) string {
	t.Helper()
	rc, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestOpen(t *testing.T) {
	t.Run("plain spool passes through", func(t *testing.T) {
		path := writeSpool(t, "plain.txt", func(w io.Writer) {
			io.WriteString(w, spoolText)
		})
		if got := readAll(t, path); got != spoolText {
			t.Fatalf("read %q, want %q", got, spoolText)
		}
	})

	t.Run("zstd spool is decompressed", func(t *testing.T) {
		path := writeSpool(t, "spool.zst", func(w io.Writer) {
			enc, err := zstd.NewWriter(w)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			io.WriteString(enc, spoolText)
			enc.Close()
		})
		if got := readAll(t, path); got != spoolText {
			t.Fatalf("read %q, want %q", got, spoolText)
		}
	})

	t.Run("lz4 spool is decompressed", func(t *testing.T) {
		path := writeSpool(t, "spool.lz4", func(w io.Writer) {
			enc := lz4.NewWriter(w)
			io.WriteString(enc, spoolText)
			enc.Close()
		})
		if got := readAll(t, path); got != spoolText {
			t.Fatalf("read %q, want %q", got, spoolText)
		}
	})

	t.Run("empty spool reads as empty", func(t *testing.T) {
		path := writeSpool(t, "empty.txt", func(io.Writer) {})
		if got := readAll(t, path); got != "" {
			t.Fatalf("read %q, want empty", got)
		}
	})

	t.Run("missing spool errors", func(t *testing.T) {
		if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Fatal("Open succeeded on a missing file")
		}
	})
}

func TestNewReaderShortStream(t *testing.T) {
	// Fewer than 4 bytes cannot match any magic; sniffing must not fail.
	r, err := NewReader(strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil || string(data) != "hi" {
		t.Fatalf("read = (%q, %v), want (hi, nil)", data, err)
	}
}
