package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind identifies a pagination scheme.
type Kind string

const (
	// KindPage paginates by page number and fixed page size.
	KindPage Kind = "page"

	// KindOffset paginates by running offset and request limit.
	KindOffset Kind = "offset"
)

var (
	// ErrUnknownKind is returned for pagination kinds other than page and offset.
	ErrUnknownKind = errors.New("unknown pagination kind")

	// ErrInvalidSize is returned when the page size or limit is not positive.
	ErrInvalidSize = errors.New("page size must be positive")
)

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPage:
		return KindPage, nil
	case KindOffset:
		return KindOffset, nil
	default:
		return "", fmt.Errorf("%w: %q (want page or offset)", ErrUnknownKind, s)
	}
}

// Options configures a Strategy.
type Options struct {
	Kind Kind

	// Size is the page size (page) or request limit (offset).
	Size int

	// StartPage is the first page number requested (page only, default 1).
	StartPage int

	// MaxPages stops the harvest after this many pages. 0 means unlimited.
	MaxPages int

	// CursorParam and SizeParam override the query parameter names.
	// Defaults: page/per_page and offset/limit.
	CursorParam string
	SizeParam   string
}

// PageRequest holds the parameters of one page request.
type PageRequest struct {
	Kind   Kind
	Cursor int64 // page number or offset
	Size   int
}

// Total is the total-count value observed in one response.
type Total struct {
	Value int64
	Known bool
}

// Observed builds a Total from an extractor result.
func Observed(value int64, ok bool) Total {
	return Total{Value: value, Known: ok}
}

// UnknownTotal is the Total of a response that reports no count.
var UnknownTotal = Total{}

// State is the pagination position of one harvest. It is a value type: each
// Advance returns a new State and the previous one is discarded.
type State struct {
	// Cursor is the page number or offset of the next request.
	Cursor int64

	// Fetched is the number of records received so far.
	Fetched int64

	// Total is the declared record count, valid when TotalKnown is set.
	Total      int64
	TotalKnown bool

	// TotalDistrusted is set after an inconsistent total was observed;
	// later totals are ignored and termination relies on page lengths.
	TotalDistrusted bool

	// LastLen is the record count of the most recent response.
	LastLen int

	// Pages is the number of responses consumed.
	Pages int

	// Exhausted is set when a response shows no more data is available.
	Exhausted bool
}

// TotalCountInconsistency reports a total count below the records already
// fetched. It is advisory: the State returned alongside it is valid.
type TotalCountInconsistency struct {
	Observed int64
	Fetched  int64
}

// Error implements the error interface.
func (e *TotalCountInconsistency) Error() string {
	return fmt.Sprintf("total count %d is below %d records already fetched; falling back to page-length termination",
		e.Observed, e.Fetched)
}

// Strategy computes the next request and decides termination.
type Strategy interface {
	// Kind returns the pagination scheme.
	Kind() Kind

	// Initial returns the state before the first request.
	Initial() State

	// NextRequest derives the next request from s.
	NextRequest(s State) PageRequest

	// Advance consumes a successful response of n records. A non-nil error
	// is always a *TotalCountInconsistency and does not invalidate the state.
	Advance(s State, n int, observed Total) (State, error)

	// IsDone reports whether no further request is needed.
	IsDone(s State) bool

	// Query renders r as URL query parameters.
	Query(r PageRequest) url.Values
}

// New returns the Strategy for opts.Kind.
func New(opts Options) (Strategy, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, opts.Size)
	}
	if opts.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must not be negative: got %d", opts.MaxPages)
	}

	switch opts.Kind {
	case KindPage:
		if opts.StartPage == 0 {
			opts.StartPage = 1
		}
		if opts.StartPage < 0 {
			return nil, fmt.Errorf("start page must be positive: got %d", opts.StartPage)
		}
		if opts.CursorParam == "" {
			opts.CursorParam = "page"
		}
		if opts.SizeParam == "" {
			opts.SizeParam = "per_page"
		}
		return PageBased{opts: opts}, nil
	case KindOffset:
		if opts.CursorParam == "" {
			opts.CursorParam = "offset"
		}
		if opts.SizeParam == "" {
			opts.SizeParam = "limit"
		}
		return OffsetBased{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}

// record applies a response of n records to s: counts, page tally and the
// declared total. The cursor is moved by the caller.
func record(s State, n int, observed Total, maxPages int) (State, error) {
	if n < 0 {
		n = 0
	}
	s.Fetched += int64(n)
	s.LastLen = n
	s.Pages++

	var inconsistency *TotalCountInconsistency
	if observed.Known && !s.TotalDistrusted {
		if !s.TotalKnown {
			s.Total = observed.Value
			s.TotalKnown = true
		}
		if observed.Value < s.Fetched {
			inconsistency = &TotalCountInconsistency{Observed: observed.Value, Fetched: s.Fetched}
		}
	}
	if inconsistency == nil && s.TotalKnown && s.Fetched > s.Total {
		inconsistency = &TotalCountInconsistency{Observed: s.Total, Fetched: s.Fetched}
	}

	if maxPages > 0 && s.Pages >= maxPages {
		s.Exhausted = true
	}

	if inconsistency != nil {
		s.Total = 0
		s.TotalKnown = false
		s.TotalDistrusted = true
		return s, inconsistency
	}
	return s, nil
}

func query(cursorParam string, cursor int64, sizeParam string, size int) url.Values {
	return url.Values{
		cursorParam: []string{strconv.FormatInt(cursor, 10)},
		sizeParam:   []string{strconv.Itoa(size)},
	}
}
