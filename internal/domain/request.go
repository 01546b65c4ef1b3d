package domain

// DownloadRequest pairs a point path with the fully resolved URL that
// exports its trend history as CSV. Requests are immutable once built and
// point paths are unique within a batch.
type DownloadRequest struct {
	Point string
	URL   string
}

// Outcome is the terminal classification of a single download.
type Outcome string

const (
	// OutcomeSuccess means the body was fetched and met the minimum size.
	OutcomeSuccess Outcome = "success"

	// OutcomeEmpty means the fetch succeeded but the body was below the
	// minimum content size. Niagara returns a header-only CSV for points
	// with no history in the window, so this is not an error.
	OutcomeEmpty Outcome = "empty"

	// OutcomeFailed means the fetch or the file write failed.
	OutcomeFailed Outcome = "failed"
)

// ProgressFunc is invoked once per completed item. Implementations must be
// safe for concurrent use and must not panic; a reporting problem must
// never abort a batch.
type ProgressFunc func(completed, total int, point string, outcome Outcome)
