package sink

import (
	"context"
	"encoding/json"
	"sync"
)

// Collect keeps every record in memory. It is safe for concurrent use.
type Collect struct {
	mu      sync.Mutex
	records []json.RawMessage
	pages   []int
}

// NewCollect returns an empty Collect sink.
func NewCollect() *Collect {
	return &Collect{}
}

// Accept implements Sink.
func (c *Collect) Accept(ctx context.Context, record json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.records = append(c.records, record)
	c.mu.Unlock()
	return nil
}

// EndPage implements PageSink.
func (c *Collect) EndPage(_ context.Context, page int) error {
	c.mu.Lock()
	c.pages = append(c.pages, page)
	c.mu.Unlock()
	return nil
}

// Records returns a copy of the accepted records in arrival order.
func (c *Collect) Records() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]json.RawMessage, len(c.records))
	copy(out, c.records)
	return out
}

// Pages returns the page indexes reported through EndPage.
func (c *Collect) Pages() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.pages))
	copy(out, c.pages)
	return out
}

// Len returns the number of accepted records.
func (c *Collect) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
