package domain

// RunRepository defines the interface for run-history persistence
type RunRepository interface {
	// Create records a completed run
	Create(run *Run) error

	// FindRecent returns the most recent runs, newest first
	FindRecent(limit int) ([]*Run, error)

	// FindByDistrict returns recent runs for one district, newest first
	FindByDistrict(district string, limit int) ([]*Run, error)

	// GetTotals returns aggregate counters across all recorded runs
	GetTotals() (*RunTotals, error)

	// Close releases the underlying store
	Close() error
}

// RunTotals aggregates counters across all recorded runs.
type RunTotals struct {
	Runs    int64 `json:"runs"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Empty   int64 `json:"empty"`
	Skipped int64 `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}
