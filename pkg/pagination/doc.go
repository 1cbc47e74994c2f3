// Package pagination decides which page of a REST collection to request next
// and when the collection has been read completely.
//
// Two schemes are supported, selected by Kind:
//
//   - page: ?page=N&per_page=S, N starting at 1
//   - offset: ?offset=O&limit=L, O advanced by the length of each response
//
// A Strategy is stateless; the cursor lives in a State value that the caller
// threads through NextRequest, Advance and IsDone:
//
//	strategy, err := pagination.New(pagination.Options{Kind: pagination.KindPage, Size: 100})
//	state := strategy.Initial()
//	for !strategy.IsDone(state) {
//		req := strategy.NextRequest(state)
//		// fetch strategy.Query(req), extract records and total
//		state, err = strategy.Advance(state, len(records), pagination.Observed(total, ok))
//		// err, if any, is a *TotalCountInconsistency warning
//	}
//
// A declared total smaller than the records already received is reported once
// as a TotalCountInconsistency; the total is then ignored for the rest of the
// harvest and termination falls back to empty or short pages.
package pagination
