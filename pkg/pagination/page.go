package pagination

import "net/url"

// PageBased requests pages StartPage, StartPage+1, ... of a fixed size.
//
// It is done after an empty page, once the pages up to the last one requested
// cover a known total, or, while no total is known, after a page shorter than
// size.
type PageBased struct {
	opts Options
}

// Kind implements Strategy.
func (p PageBased) Kind() Kind { return KindPage }

// Initial implements Strategy.
func (p PageBased) Initial() State {
	return State{Cursor: int64(p.opts.StartPage)}
}

// NextRequest implements Strategy.
func (p PageBased) NextRequest(s State) PageRequest {
	return PageRequest{Kind: KindPage, Cursor: s.Cursor, Size: p.opts.Size}
}

// Advance implements Strategy.
func (p PageBased) Advance(s State, n int, observed Total) (State, error) {
	s, err := record(s, n, observed, p.opts.MaxPages)
	s.Cursor++

	if s.LastLen == 0 || (!s.TotalKnown && s.LastLen < p.opts.Size) {
		s.Exhausted = true
	}
	return s, err
}

// IsDone implements Strategy.
func (p PageBased) IsDone(s State) bool {
	if s.Exhausted {
		return true
	}
	// Cursor is the next page, so pages 1..Cursor-1 are behind us.
	return s.TotalKnown && (s.Cursor-1)*int64(p.opts.Size) >= s.Total
}

// Query implements Strategy.
func (p PageBased) Query(r PageRequest) url.Values {
	return query(p.opts.CursorParam, r.Cursor, p.opts.SizeParam, r.Size)
}
