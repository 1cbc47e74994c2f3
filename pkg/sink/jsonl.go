package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONL writes one compact JSON object per line. Output is buffered and
// flushed at page boundaries and on Close.
type JSONL struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	buf    bytes.Buffer
	lines  int64
	closed bool
}

// NewJSONL returns a JSONL sink writing to w. If w is an io.Closer it is
// closed by Close.
func NewJSONL(w io.Writer) *JSONL {
	s := &JSONL{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Accept implements Sink.
func (s *JSONL) Accept(ctx context.Context, record json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.buf.Reset()
	if err := json.Compact(&s.buf, record); err != nil {
		return fmt.Errorf("compact record: %w", err)
	}
	s.buf.WriteByte('\n')
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.lines++
	return nil
}

// EndPage implements PageSink.
func (s *JSONL) EndPage(_ context.Context, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Lines returns the number of records written.
func (s *JSONL) Lines() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Close flushes buffered output and closes the underlying writer.
func (s *JSONL) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
