package pagination

import "net/url"

// OffsetBased requests offsets 0, n1, n1+n2, ... where each step is the
// length of the previous response, so a short final page is tolerated.
//
// It is done after a response shorter than the limit or once the offset
// reaches a known total.
type OffsetBased struct {
	opts Options
}

// Kind implements Strategy.
func (o OffsetBased) Kind() Kind { return KindOffset }

// Initial implements Strategy.
func (o OffsetBased) Initial() State {
	return State{}
}

// NextRequest implements Strategy.
func (o OffsetBased) NextRequest(s State) PageRequest {
	return PageRequest{Kind: KindOffset, Cursor: s.Cursor, Size: o.opts.Size}
}

// Advance implements Strategy.
func (o OffsetBased) Advance(s State, n int, observed Total) (State, error) {
	s, err := record(s, n, observed, o.opts.MaxPages)
	s.Cursor += int64(s.LastLen)

	if s.LastLen < o.opts.Size {
		s.Exhausted = true
	}
	return s, err
}

// IsDone implements Strategy.
func (o OffsetBased) IsDone(s State) bool {
	if s.Exhausted {
		return true
	}
	return s.TotalKnown && s.Cursor >= s.Total
}

// Query implements Strategy.
func (o OffsetBased) Query(r PageRequest) url.Values {
	return query(o.opts.CursorParam, r.Cursor, o.opts.SizeParam, r.Size)
}
