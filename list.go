package imbin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/imbin/blobstore"
)

const maxListLine = 1 << 20

// Record is one line of a list file.
type Record struct {
	Index uint32
	Label float32
	// Rest is the trailing text after the label, usually the source path.
	Rest string
}

// ParseRecord parses "<index> <label> [rest]".
//
// The index is the leading run of decimal digits and the label the longest
// decimal float prefix after it, so "5 1.0abc" yields index 5, label 1 and
// rest "abc". Signed or out-of-range indices are rejected.
func ParseRecord(line string) (Record, error) {
	s := strings.TrimLeft(line, " \t\r")
	n := len(s) - len(strings.TrimLeft(s, "0123456789"))
	if n == 0 {
		return Record{}, fmt.Errorf("want <index> <label>")
	}
	i, err := strconv.ParseUint(s[:n], 10, 32)
	if err != nil {
		return Record{}, err
	}

	s = strings.TrimLeft(s[n:], " \t\r")
	label := labelPrefix.FindString(s)
	if label == "" {
		return Record{}, fmt.Errorf("want <index> <label>")
	}
	l, err := strconv.ParseFloat(label, 32)
	if err != nil {
		return Record{}, err
	}
	return Record{Index: uint32(i), Label: float32(l), Rest: strings.TrimSpace(s[len(label):])}, nil
}

var labelPrefix = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?`)

// ListReader reads records from a list file in a blob store.
type ListReader struct {
	path string
	blob blobstore.Blob
	body io.ReadCloser
	sc   *bufio.Scanner
	line int
}

// OpenList opens the list file at path.
func OpenList(ctx context.Context, store blobstore.BlobStore, path string) (*ListReader, error) {
	blob, err := store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("imbin: open list %s: %w", path, err)
	}
	body, err := blob.ReadRange(context.WithoutCancel(ctx), 0, blob.Size())
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("imbin: read list %s: %w", path, err)
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxListLine)
	return &ListReader{path: path, blob: blob, body: body, sc: sc}, nil
}

// Path returns the list path.
func (l *ListReader) Path() string { return l.path }

// Next returns the next record. Blank lines are skipped. It returns false at
// the end of the file.
func (l *ListReader) Next() (Record, bool, error) {
	for l.sc.Scan() {
		l.line++
		text := l.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := ParseRecord(text)
		if err != nil {
			return Record{}, false, &ListError{Path: l.path, Line: l.line, Text: text, cause: err}
		}
		return rec, true, nil
	}
	if err := l.sc.Err(); err != nil {
		return Record{}, false, fmt.Errorf("imbin: read list %s: %w", l.path, err)
	}
	return Record{}, false, nil
}

// Close releases the list file.
func (l *ListReader) Close() error {
	err := l.body.Close()
	if cerr := l.blob.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadList reads every record of the list file at path.
func ReadList(ctx context.Context, store blobstore.BlobStore, path string) ([]Record, error) {
	l, err := OpenList(ctx, store, path)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	var out []Record
	for {
		rec, ok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, rec)
	}
}
