// Package sink defines where harvested records go.
//
// A Sink receives one record at a time; Accept returning is the
// acknowledgement that lets the harvester hand over the next record, so a
// slow sink applies backpressure to the whole harvest. Records are raw JSON
// objects and ownership passes to the sink.
//
// Sinks that care about page boundaries (for example Dir, which writes one
// file per page) also implement PageSink.
package sink

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by Accept after Close.
var ErrClosed = errors.New("sink closed")

// Sink consumes harvested records.
type Sink interface {
	Accept(ctx context.Context, record json.RawMessage) error
}

// PageSink is a Sink notified after the last record of each page.
type PageSink interface {
	Sink

	// EndPage is called once per page, after its records were accepted.
	// page is the requested page number for page-based sources and the
	// 1-based index of the response for offset sources.
	EndPage(ctx context.Context, page int) error
}

// Closer is implemented by sinks holding buffers or connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, record json.RawMessage) error

// Accept calls f.
func (f Func) Accept(ctx context.Context, record json.RawMessage) error {
	return f(ctx, record)
}

// Close closes s if it implements Closer.
func Close(ctx context.Context, s Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}
