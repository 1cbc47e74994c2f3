package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Dir writes each page as a pretty-printed JSON array to
// <dir>/page_<n>.json. Records are buffered until EndPage.
type Dir struct {
	dir    string
	logger zerolog.Logger

	mu       sync.Mutex
	pending  []json.RawMessage
	lastPage int
	written  int
	closed   bool
}

// NewDir creates dir if needed and returns a Dir sink writing into it.
func NewDir(dir string, logger zerolog.Logger) (*Dir, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Dir{dir: dir, logger: logger}, nil
}

// Accept implements Sink.
func (d *Dir) Accept(ctx context.Context, record json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.pending = append(d.pending, record)
	return nil
}

// EndPage implements PageSink. Pages without records produce no file.
func (d *Dir) EndPage(_ context.Context, page int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page > d.lastPage {
		d.lastPage = page
	}
	return d.flush(page)
}

// Files returns the number of page files written.
func (d *Dir) Files() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Close writes records accepted after the last EndPage, if any.
func (d *Dir) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.flush(d.lastPage + 1)
}

// PagePath returns the file name used for page n.
func (d *Dir) PagePath(n int) string {
	return filepath.Join(d.dir, fmt.Sprintf("page_%d.json", n))
}

func (d *Dir) flush(page int) error {
	if len(d.pending) == 0 {
		return nil
	}

	compact, err := json.Marshal(d.pending)
	if err != nil {
		return fmt.Errorf("encode page %d: %w", page, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return fmt.Errorf("indent page %d: %w", page, err)
	}
	out.WriteByte('\n')

	path := d.PagePath(page)
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write page %d: %w", page, err)
	}

	d.logger.Debug().
		Str("path", path).
		Int("records", len(d.pending)).
		Msg("Page written")

	d.pending = d.pending[:0]
	d.written++
	return nil
}
