package domain

import "time"

// FailedPoint records one failed download inside the resume state.
type FailedPoint struct {
	Point string `json:"point"`
	Error string `json:"error"`
	Time  string `json:"time"`
}

// ResumeState is the durable record of a partially completed batch, scoped
// to one district and one output partition (calendar day). Success and
// empty outcomes both count as completed for resume purposes; only failed
// points are re-attempted on a later run.
type ResumeState struct {
	District    string        `json:"district"`
	DateStarted string        `json:"date_started"`
	TotalPoints int           `json:"total_points"`
	Completed   []string      `json:"completed"`
	Failed      []FailedPoint `json:"failed"`
	Empty       []string      `json:"empty"`
}

// NewResumeState creates a fresh state for a batch.
func NewResumeState(district string, totalPoints int) *ResumeState {
	return &ResumeState{
		District:    district,
		DateStarted: time.Now().Format(time.RFC3339),
		TotalPoints: totalPoints,
		Completed:   []string{},
		Failed:      []FailedPoint{},
		Empty:       []string{},
	}
}

// CompletedSet returns the completed points as a set for filtering.
func (s *ResumeState) CompletedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Completed))
	for _, p := range s.Completed {
		set[p] = struct{}{}
	}
	return set
}

// MarkSuccess records a successfully downloaded point.
func (s *ResumeState) MarkSuccess(point string) {
	s.Completed = append(s.Completed, point)
}

// MarkEmpty records a fetched-but-empty point. Empty points also enter the
// completed list so they are not re-fetched on resume.
func (s *ResumeState) MarkEmpty(point string) {
	s.Empty = append(s.Empty, point)
	s.Completed = append(s.Completed, point)
}

// MarkFailed records a failed point with its error message.
func (s *ResumeState) MarkFailed(point, errMsg string) {
	if errMsg == "" {
		errMsg = "unknown"
	}
	s.Failed = append(s.Failed, FailedPoint{
		Point: point,
		Error: errMsg,
		Time:  time.Now().Format(time.RFC3339),
	})
}
