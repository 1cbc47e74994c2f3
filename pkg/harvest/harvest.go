// Package harvest drives a paginated harvest of one source: it asks the
// pagination strategy for the next request, fetches it through the
// transport, extracts the records and hands them to a sink, until the
// strategy reports completion.
//
// The loop keeps exactly one page of look-ahead: once page k is extracted
// and the strategy advanced, the request for page k+1 is started while the
// records of page k are handed to the sink. Memory is bounded by two pages.
//
// Basic usage:
//
//	h, err := harvest.New(harvest.Config{
//		Source:     "orders",
//		Pagination: pagination.Options{Kind: pagination.KindPage, Size: 100},
//		DataPath:   "data",
//		TotalPath:  "totalCount",
//	}, harvest.Deps{Fetcher: client, Sink: out})
//	if err != nil {
//		return err
//	}
//	result, err := h.Run(ctx)
package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/api-harvester/pkg/extract"
	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/pagination"
	"github.com/Sternrassler/api-harvester/pkg/sink"
	"github.com/Sternrassler/api-harvester/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_pages_fetched_total",
		Help: "Total pages fetched by source",
	}, []string{"source"})

	recordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_records_emitted_total",
		Help: "Total records accepted by the sink by source",
	}, []string{"source"})

	totalInconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_total_inconsistencies_total",
		Help: "Total count values contradicting the records already fetched",
	}, []string{"source"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_runs_total",
		Help: "Completed harvest runs by source and result",
	}, []string{"source", "result"})
)

// Run results used as metric labels.
const (
	resultComplete  = "complete"
	resultMismatch  = "mismatch"
	resultCancelled = "cancelled"
	resultError     = "error"
)

// Fetcher issues one page request. *transport.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, params url.Values) (*transport.PageResponse, error)
}

// Config describes one source.
type Config struct {
	// Source names the harvest in logs and metrics.
	Source string

	Pagination pagination.Options

	// DataPath locates the record array; empty means the body is the array.
	DataPath string

	// TotalPath locates the total count; empty disables it.
	TotalPath string
}

// Deps are the collaborators of a Harvester.
type Deps struct {
	Fetcher Fetcher
	Sink    sink.Sink

	// Logger defaults to the "harvest" component logger.
	Logger *zerolog.Logger
}

// Result summarises a harvest.
type Result struct {
	Source string

	// Emitted is the number of records accepted by the sink.
	Emitted int64

	// Pages is the number of pages consumed.
	Pages int

	// DeclaredTotal is the total count reported by the API, valid when
	// TotalKnown is set. A total dropped as inconsistent is not known.
	DeclaredTotal int64
	TotalKnown    bool

	// TotalMatched reports Emitted == DeclaredTotal for a known total.
	TotalMatched bool

	Duration time.Duration
}

// Error is a fatal harvest failure. Records emitted before it stand.
type Error struct {
	Source string

	// Cursor is the page number or offset of the failing request.
	Cursor int64

	// Emitted is the number of records accepted by the sink before the failure.
	Emitted int64

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("harvest %s: cursor %d after %d records: %v", e.Source, e.Cursor, e.Emitted, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Harvester runs the fetch loop of one source. A Harvester is not safe for
// concurrent Run calls.
type Harvester struct {
	cfg       Config
	strategy  pagination.Strategy
	extractor *extract.Extractor
	fetcher   Fetcher
	sink      sink.Sink
	logger    zerolog.Logger
}

// New validates cfg and builds a Harvester.
func New(cfg Config, deps Deps) (*Harvester, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	strategy, err := pagination.New(cfg.Pagination)
	if err != nil {
		return nil, fmt.Errorf("pagination: %w", err)
	}

	extractor, err := extract.New(cfg.DataPath, cfg.TotalPath)
	if err != nil {
		return nil, err
	}

	var logger zerolog.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	} else {
		logger = logging.NewLogger("harvest")
	}
	if cfg.Source != "" {
		logger = logging.WithSource(logger, cfg.Source)
	}

	return &Harvester{
		cfg:       cfg,
		strategy:  strategy,
		extractor: extractor,
		fetcher:   deps.Fetcher,
		sink:      deps.Sink,
		logger:    logger,
	}, nil
}

// Source returns the configured source name.
func (h *Harvester) Source() string {
	return h.cfg.Source
}

// fetchResult is the outcome of one background fetch.
type fetchResult struct {
	resp *transport.PageResponse
	err  error
}

// flight is a page request running in its own goroutine.
type flight struct {
	req    pagination.PageRequest
	done   chan fetchResult
	cancel context.CancelFunc
}

func (h *Harvester) launch(ctx context.Context, req pagination.PageRequest) *flight {
	fctx, cancel := context.WithCancel(ctx)
	f := &flight{
		req:    req,
		done:   make(chan fetchResult, 1),
		cancel: cancel,
	}

	params := h.strategy.Query(req)
	go func() {
		resp, err := h.fetcher.Fetch(fctx, params)
		f.done <- fetchResult{resp: resp, err: err}
	}()

	return f
}

func (f *flight) wait() fetchResult {
	r := <-f.done
	f.cancel()
	return r
}

// abort cancels the request and waits for its goroutine.
func (f *flight) abort() {
	if f == nil {
		return
	}
	f.cancel()
	<-f.done
}

// Run harvests the source until the strategy is done, ctx is cancelled or a
// fatal error occurs. Fatal errors are returned as *Error together with the
// partial Result.
func (h *Harvester) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{Source: h.cfg.Source}

	h.logger.Info().
		Str("pagination", string(h.strategy.Kind())).
		Int("page_size", h.cfg.Pagination.Size).
		Msg("Harvest started")

	state := h.strategy.Initial()

	if err := ctx.Err(); err != nil {
		return h.fail(result, start, h.strategy.NextRequest(state).Cursor, err)
	}
	current := h.launch(ctx, h.strategy.NextRequest(state))

	for {
		out := current.wait()
		cursor := current.req.Cursor
		if out.err != nil {
			return h.fail(result, start, cursor, out.err)
		}

		records, err := h.extractor.Records(out.resp.Body)
		if err != nil {
			return h.fail(result, start, cursor, err)
		}
		observed := pagination.Observed(h.extractor.Total(out.resp.Body))

		state, err = h.strategy.Advance(state, len(records), observed)
		if err != nil {
			var inconsistency *pagination.TotalCountInconsistency
			if !errors.As(err, &inconsistency) {
				return h.fail(result, start, cursor, err)
			}
			totalInconsistencies.WithLabelValues(h.cfg.Source).Inc()
			h.logger.Warn().
				Int64("observed_total", inconsistency.Observed).
				Int64("fetched", inconsistency.Fetched).
				Int64("cursor", cursor).
				Msg("Total count inconsistent with fetched records, ignoring it")
		}
		pagesFetched.WithLabelValues(h.cfg.Source).Inc()

		h.logger.Debug().
			Int64("cursor", cursor).
			Int("records", len(records)).
			Int("attempts", out.resp.Attempts).
			Bool("cached", out.resp.FromCache).
			Msg("Page fetched")

		done := h.strategy.IsDone(state)

		// Look-ahead: the next request runs while this page is sunk.
		var next *flight
		if !done {
			nextReq := h.strategy.NextRequest(state)
			if err := ctx.Err(); err != nil {
				return h.fail(result, start, nextReq.Cursor, err)
			}
			next = h.launch(ctx, nextReq)
		}

		if err := h.emit(ctx, records, pageNumber(current.req, state), &result); err != nil {
			next.abort()
			return h.fail(result, start, cursor, err)
		}
		result.Pages = state.Pages

		if done {
			break
		}
		current = next
	}

	return h.finish(result, state, start), nil
}

// pageNumber names a page for page sinks: the requested page number for
// page-based sources, the 1-based response index for offset sources.
func pageNumber(req pagination.PageRequest, state pagination.State) int {
	if req.Kind == pagination.KindPage {
		return int(req.Cursor)
	}
	return state.Pages
}

// emit hands records to the sink one at a time, awaiting each ack.
func (h *Harvester) emit(ctx context.Context, records []json.RawMessage, page int, result *Result) error {
	for _, record := range records {
		if err := h.sink.Accept(ctx, record); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		result.Emitted++
		recordsEmitted.WithLabelValues(h.cfg.Source).Inc()
	}

	if ps, ok := h.sink.(sink.PageSink); ok {
		if err := ps.EndPage(ctx, page); err != nil {
			return fmt.Errorf("sink end page %d: %w", page, err)
		}
	}
	return nil
}

func (h *Harvester) finish(result Result, state pagination.State, start time.Time) Result {
	result.Duration = time.Since(start)
	result.TotalKnown = state.TotalKnown
	if state.TotalKnown {
		result.DeclaredTotal = state.Total
		result.TotalMatched = result.Emitted == state.Total
	}

	event := h.logger.Info()
	label := resultComplete
	if result.TotalKnown && !result.TotalMatched {
		event = h.logger.Warn()
		label = resultMismatch
	}
	runsTotal.WithLabelValues(h.cfg.Source, label).Inc()

	event.
		Int64("emitted", result.Emitted).
		Int("pages", result.Pages).
		Bool("total_known", result.TotalKnown).
		Int64("declared_total", result.DeclaredTotal).
		Bool("total_matched", result.TotalMatched).
		Dur("duration", result.Duration).
		Msg("Harvest finished")

	return result
}

func (h *Harvester) fail(result Result, start time.Time, cursor int64, err error) (Result, error) {
	result.Duration = time.Since(start)

	label := resultError
	event := h.logger.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		label = resultCancelled
		event = h.logger.Warn()
	}
	runsTotal.WithLabelValues(h.cfg.Source, label).Inc()

	event.
		Err(err).
		Int64("cursor", cursor).
		Int64("emitted", result.Emitted).
		Int("pages", result.Pages).
		Msg("Harvest aborted")

	return result, &Error{
		Source:  h.cfg.Source,
		Cursor:  cursor,
		Emitted: result.Emitted,
		Err:     err,
	}
}
