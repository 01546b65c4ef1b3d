package domain

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// DownloadError records a single failed point.
type DownloadError struct {
	Point   string
	Message string
}

// BatchStats aggregates the outcome of one batch invocation. It is owned by
// the engine for the duration of the batch and read by the caller afterward.
type BatchStats struct {
	Total           int
	Success         int
	Failed          int
	Empty           int
	Skipped         int
	BytesDownloaded int64
	StartTime       time.Time
	EndTime         time.Time
	Errors          []DownloadError
}

// NewBatchStats creates stats for a batch of the given size.
func NewBatchStats(total int) *BatchStats {
	return &BatchStats{
		Total:     total,
		StartTime: time.Now(),
	}
}

// Elapsed returns the batch duration so far, or the final duration once the
// batch has ended.
func (s *BatchStats) Elapsed() time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// Rate returns processed downloads per second.
func (s *BatchStats) Rate() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Success+s.Failed+s.Empty) / elapsed
}

// Summary returns a one-line human-readable summary.
func (s *BatchStats) Summary() string {
	return fmt.Sprintf(
		"Total: %d | Success: %d | Failed: %d | Empty: %d | Skipped: %d | Data: %s | Time: %.1fs | Rate: %.1f/s",
		s.Total, s.Success, s.Failed, s.Empty, s.Skipped,
		humanize.Bytes(uint64(s.BytesDownloaded)),
		s.Elapsed().Seconds(), s.Rate(),
	)
}
