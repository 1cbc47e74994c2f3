// Package extract pulls the record array and the optional total-count scalar
// out of a JSON response body.
//
// Paths are dot-separated keys and numeric indices ("data.items",
// "results.0.rows"). A path starting with "/" is read as a JSON pointer
// ("/data/items"), so keys containing dots can still be addressed. A path
// with slashes but no dots ("data/items") is read as a pointer too. An empty
// data path selects the body itself.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidJSON is returned when the body is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON body")

	// ErrPathNotFound is returned when the data path does not resolve.
	ErrPathNotFound = errors.New("path not found")

	// ErrNotArray is returned when the data path resolves to a non-array value.
	ErrNotArray = errors.New("path does not resolve to an array")

	// ErrNotObject is returned when a record in the array is not a JSON object.
	ErrNotObject = errors.New("record is not a JSON object")

	// ErrInvalidPath is returned for syntactically invalid paths.
	ErrInvalidPath = errors.New("invalid path")
)

// ExtractionError describes why a body could not yield records.
type ExtractionError struct {
	Path  string
	Index int // offending array index, -1 when not applicable
	Err   error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("extract %q[%d]: %v", e.Path, e.Index, e.Err)
	}
	return fmt.Sprintf("extract %q: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Path is a parsed path expression.
type Path struct {
	raw  string
	expr string // gjson expression with every segment escaped
}

// ParsePath validates and compiles a path expression.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}

	var segments []string
	if isPointer(s) {
		for _, seg := range strings.Split(strings.TrimPrefix(s, "/"), "/") {
			seg = strings.ReplaceAll(seg, "~1", "/")
			seg = strings.ReplaceAll(seg, "~0", "~")
			segments = append(segments, seg)
		}
	} else {
		segments = strings.Split(s, ".")
	}

	escaped := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			return Path{}, fmt.Errorf("%w %q: empty segment at position %d", ErrInvalidPath, s, i)
		}
		escaped[i] = gjson.Escape(seg)
	}

	return Path{raw: s, expr: strings.Join(escaped, ".")}, nil
}

func isPointer(s string) bool {
	if strings.HasPrefix(s, "/") {
		return true
	}
	return strings.Contains(s, "/") && !strings.Contains(s, ".")
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the path as written.
func (p Path) String() string {
	return p.raw
}

// IsRoot reports whether the path selects the whole document.
func (p Path) IsRoot() bool {
	return p.expr == ""
}

func (p Path) lookup(body []byte) gjson.Result {
	if p.IsRoot() {
		return gjson.ParseBytes(body)
	}
	return gjson.GetBytes(body, p.expr)
}

// Extractor holds the compiled data and total-count paths of one source.
// It is stateless; the same body always yields the same records.
type Extractor struct {
	data  Path
	total Path
	// hasTotal is false when no total-count path is configured.
	hasTotal bool
}

// New compiles dataPath and totalPath. An empty totalPath disables total extraction.
func New(dataPath, totalPath string) (*Extractor, error) {
	data, err := ParsePath(dataPath)
	if err != nil {
		return nil, fmt.Errorf("data path: %w", err)
	}

	total, err := ParsePath(totalPath)
	if err != nil {
		return nil, fmt.Errorf("total count path: %w", err)
	}

	return &Extractor{
		data:     data,
		total:    total,
		hasTotal: totalPath != "",
	}, nil
}

// Records returns the objects of the record array. The returned records do
// not alias body.
func (x *Extractor) Records(body []byte) ([]json.RawMessage, error) {
	return records(body, x.data)
}

// Total returns the total-count value, or false when it is absent or unparsable.
func (x *Extractor) Total(body []byte) (int64, bool) {
	if !x.hasTotal {
		return 0, false
	}
	return total(body, x.total)
}

// Records extracts the record array addressed by dataPath from body.
func Records(body []byte, dataPath string) ([]json.RawMessage, error) {
	p, err := ParsePath(dataPath)
	if err != nil {
		return nil, &ExtractionError{Path: dataPath, Index: -1, Err: err}
	}
	return records(body, p)
}

// Total extracts the total-count value addressed by totalPath from body.
func Total(body []byte, totalPath string) (int64, bool) {
	if totalPath == "" {
		return 0, false
	}
	p, err := ParsePath(totalPath)
	if err != nil {
		return 0, false
	}
	return total(body, p)
}

func records(body []byte, p Path) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ExtractionError{Path: p.raw, Index: -1, Err: ErrInvalidJSON}
	}

	res := p.lookup(body)
	if !res.Exists() {
		return nil, &ExtractionError{Path: p.raw, Index: -1, Err: ErrPathNotFound}
	}
	if !res.IsArray() {
		return nil, &ExtractionError{
			Path:  p.raw,
			Index: -1,
			Err:   fmt.Errorf("%w (got %s)", ErrNotArray, res.Type),
		}
	}

	items := res.Array()
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, &ExtractionError{Path: p.raw, Index: i, Err: ErrNotObject}
		}
		out = append(out, json.RawMessage(item.Raw))
	}

	return out, nil
}

func total(body []byte, p Path) (int64, bool) {
	res := p.lookup(body)

	switch res.Type {
	case gjson.Number:
		f := res.Float()
		if f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(res.Str), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
