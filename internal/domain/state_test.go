package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResumeState(t *testing.T) {
	state := NewResumeState("MAPLE", 250)

	assert.Equal(t, "MAPLE", state.District)
	assert.Equal(t, 250, state.TotalPoints)
	assert.NotEmpty(t, state.DateStarted)
	assert.NotNil(t, state.Completed)
	assert.NotNil(t, state.Failed)
	assert.NotNil(t, state.Empty)
}

func TestResumeState_MarkEmptyCountsAsCompleted(t *testing.T) {
	state := NewResumeState("MAPLE", 2)

	state.MarkSuccess("P1")
	state.MarkEmpty("P2")

	assert.Equal(t, []string{"P1", "P2"}, state.Completed)
	assert.Equal(t, []string{"P2"}, state.Empty)

	set := state.CompletedSet()
	_, hasEmpty := set["P2"]
	assert.True(t, hasEmpty, "empty points are not re-fetched on resume")
}

func TestResumeState_MarkFailed(t *testing.T) {
	state := NewResumeState("MAPLE", 1)

	state.MarkFailed("P1", "HTTP 500")
	require.Len(t, state.Failed, 1)
	assert.Equal(t, "HTTP 500", state.Failed[0].Error)
	assert.NotEmpty(t, state.Failed[0].Time)

	// Failed points stay out of the completed set.
	_, ok := state.CompletedSet()["P1"]
	assert.False(t, ok)
}

func TestResumeState_MarkFailedWithoutMessage(t *testing.T) {
	state := NewResumeState("MAPLE", 1)
	state.MarkFailed("P1", "")
	require.Len(t, state.Failed, 1)
	assert.Equal(t, "unknown", state.Failed[0].Error)
}
