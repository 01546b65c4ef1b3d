package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run is the persistent record of one completed batch.
type Run struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	District   string    `json:"district" gorm:"not null;index"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Empty      int       `json:"empty"`
	Skipped    int       `json:"skipped"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// NewRun builds a run record from finished batch stats.
func NewRun(district string, stats *BatchStats) *Run {
	return &Run{
		ID:         uuid.New().String(),
		District:   district,
		StartedAt:  stats.StartTime,
		FinishedAt: stats.EndTime,
		Total:      stats.Total,
		Success:    stats.Success,
		Failed:     stats.Failed,
		Empty:      stats.Empty,
		Skipped:    stats.Skipped,
		Bytes:      stats.BytesDownloaded,
	}
}

// Duration returns the wall-clock duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
