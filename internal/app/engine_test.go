package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
	"github.com/dallasmenard-github/NiagaraGetData/internal/infrastructure"
)

// testStation simulates a trend-export endpoint: the path decides the
// response, and every request is recorded.
type testStation struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []string
}

func newTestStation(t *testing.T) *testStation {
	t.Helper()
	s := &testStation{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		s.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/data/"):
			w.Write([]byte("timestamp,value\n" + strings.Repeat("2024-01-01T00:00:00,42.0\n", 10)))
		case strings.HasPrefix(r.URL.Path, "/empty/"):
			w.Write([]byte("timestamp,value\n"))
		case strings.HasPrefix(r.URL.Path, "/slow/"):
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte("late"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *testStation) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *testStation) request(path, point string) domain.DownloadRequest {
	return domain.DownloadRequest{Point: point, URL: s.server.URL + path + point}
}

func newTestEngine(station *testStation, fs afero.Fs, opts EngineOptions) *Engine {
	return NewEngineWithClient(station.server.Client(), fs, nil, opts, zap.NewNop())
}

func TestDownloadBatch_ClassifiesOutcomes(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 3})

	items := []domain.DownloadRequest{
		station.request("/data/", "Bldg/RTU-1"),
		station.request("/empty/", "Bldg/RTU-2"),
		station.request("/error/", "Bldg/RTU-3"),
	}

	stats, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, stats.Total, stats.Success+stats.Failed+stats.Empty)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "Bldg/RTU-3", stats.Errors[0].Point)
	assert.Equal(t, "HTTP 500", stats.Errors[0].Message)
}

func TestDownloadBatch_WritesNormalizedFiles(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 2})

	items := []domain.DownloadRequest{
		station.request("/data/", "Bldg/Zone-1/Temp"),
	}

	_, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/out/Bldg_Zone-1_Temp.csv")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDownloadBatch_EmptyBodyStillWritten(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 1})

	items := []domain.DownloadRequest{station.request("/empty/", "P1")}

	stats, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Empty)

	// An empty export is still a valid response and is kept on disk.
	exists, _ := afero.Exists(fs, "/out/P1.csv")
	assert.True(t, exists)
}

func TestDownloadBatch_EmptyListIsZeroWork(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{})

	stats, err := engine.DownloadBatch(context.Background(), nil, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.False(t, stats.EndTime.IsZero())
	assert.Empty(t, station.requested())
}

func TestDownloadBatch_PartitionByDay(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 1})

	items := []domain.DownloadRequest{station.request("/data/", "P1")}

	_, err := engine.DownloadBatch(context.Background(), items, "/out", true)
	require.NoError(t, err)

	today := time.Now().Format("2006-01-02")
	exists, _ := afero.Exists(fs, filepath.Join("/out", today, "P1.csv"))
	assert.True(t, exists)
}

func TestDownloadBatch_TimeoutIsLabelled(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	client := &http.Client{Timeout: 50 * time.Millisecond}
	engine := NewEngineWithClient(client, fs, nil, EngineOptions{Workers: 1}, zap.NewNop())

	items := []domain.DownloadRequest{station.request("/slow/", "P1")}

	stats, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "Timeout", stats.Errors[0].Message)
}

func TestDownloadBatch_SendsCookies(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	cookies := map[string]string{"JSESSIONID": "abc123"}
	engine := NewEngineWithClient(server.Client(), fs, cookies, EngineOptions{Workers: 1}, zap.NewNop())

	items := []domain.DownloadRequest{{Point: "P1", URL: server.URL}}
	_, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, "abc123", gotCookie)
}

func TestDownloadBatch_CancelledContextStopsDispatch(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var items []domain.DownloadRequest
	for i := 0; i < 50; i++ {
		items = append(items, station.request("/data/", fmt.Sprintf("P%d", i)))
	}

	stats, err := engine.DownloadBatch(ctx, items, "/out", false)
	require.NoError(t, err)
	assert.Less(t, stats.Success+stats.Failed+stats.Empty, len(items),
		"cancelled context must stop dispatching new work")
}

func TestDownloadBatch_ProgressCallback(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{Workers: 2})

	var mu sync.Mutex
	var calls int
	engine.SetProgress(func(completed, total int, point string, outcome domain.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Equal(t, 2, total)
	})

	items := []domain.DownloadRequest{
		station.request("/data/", "P1"),
		station.request("/data/", "P2"),
	}
	_, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestDownloadBatch_ProgressPanicIsIsolated(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{Workers: 1})
	engine.SetProgress(func(int, int, string, domain.Outcome) {
		panic("bad callback")
	})

	items := []domain.DownloadRequest{station.request("/data/", "P1")}
	stats, err := engine.DownloadBatch(context.Background(), items, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)
}

func TestDownloadBatchWithResume_SkipsCompleted(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 2})

	var items []domain.DownloadRequest
	for _, p := range []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8", "P9", "P10"} {
		items = append(items, station.request("/data/", p))
	}

	state := domain.NewResumeState("DIST", len(items))
	for _, p := range []string{"P1", "P2", "P3", "P4", "P5", "P6"} {
		state.MarkSuccess(p)
	}
	store := infrastructure.NewStateStoreWithFs(fs, zap.NewNop())
	require.NoError(t, store.Save("/out", state))

	stats, err := engine.DownloadBatchWithResume(context.Background(), items, "/out", "DIST", false)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Skipped)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.Success)
	assert.Len(t, station.requested(), 4)
}

func TestDownloadBatchWithResume_AllCompletedIsZeroWork(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 2})

	items := []domain.DownloadRequest{station.request("/data/", "P1")}

	state := domain.NewResumeState("DIST", 1)
	state.MarkSuccess("P1")
	store := infrastructure.NewStateStoreWithFs(fs, zap.NewNop())
	require.NoError(t, store.Save("/out", state))

	stats, err := engine.DownloadBatchWithResume(context.Background(), items, "/out", "DIST", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, station.requested())
}

func TestDownloadBatchWithResume_CorruptStateStartsFresh(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 1})

	require.NoError(t, fs.MkdirAll("/out", 0755))
	require.NoError(t, afero.WriteFile(fs, "/out/"+infrastructure.StateFileName, []byte("{not json"), 0644))

	items := []domain.DownloadRequest{
		station.request("/data/", "P1"),
		station.request("/data/", "P2"),
	}

	stats, err := engine.DownloadBatchWithResume(context.Background(), items, "/out", "DIST", false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, stats.Success)
}

func TestNewEngine_RetriesTransientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	// The production constructor path must carry the session's transient
	// retry policy, so a brief 503 burst never surfaces as a failed item.
	engine := NewEngine(nil, EngineOptions{Workers: 1, Timeout: 5 * time.Second}, zap.NewNop())
	defer engine.Close()

	items := []domain.DownloadRequest{{Point: "P1", URL: server.URL}}
	stats, err := engine.DownloadBatch(context.Background(), items, t.TempDir(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestDownloadBatchWithResume_PersistsStateMidRun(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 1, StateInterval: 2})

	store := infrastructure.NewStateStoreWithFs(fs, zap.NewNop())

	// The sidecar is written before the progress callback fires, so the
	// state visible at the second completion proves mid-run persistence.
	var completedAtSecond int
	engine.SetProgress(func(current, total int, _ string, _ domain.Outcome) {
		if current != 2 {
			return
		}
		if state := store.Load("/out"); state != nil {
			completedAtSecond = len(state.Completed)
		}
	})

	items := []domain.DownloadRequest{
		station.request("/data/", "P1"),
		station.request("/data/", "P2"),
		station.request("/data/", "P3"),
		station.request("/data/", "P4"),
		station.request("/data/", "P5"),
	}

	_, err := engine.DownloadBatchWithResume(context.Background(), items, "/out", "DIST", false)
	require.NoError(t, err)

	assert.Equal(t, 2, completedAtSecond,
		"state on disk after the second completion must already list both points")
}

func TestDownloadBatchWithResume_PersistsFinalState(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{Workers: 2})

	items := []domain.DownloadRequest{
		station.request("/data/", "P1"),
		station.request("/empty/", "P2"),
		station.request("/error/", "P3"),
	}

	_, err := engine.DownloadBatchWithResume(context.Background(), items, "/out", "DIST", false)
	require.NoError(t, err)

	store := infrastructure.NewStateStoreWithFs(fs, zap.NewNop())
	state := store.Load("/out")
	require.NotNil(t, state)
	assert.Equal(t, "DIST", state.District)

	// Success and empty points both count as completed; only failures stay
	// eligible for a later run.
	assert.ElementsMatch(t, []string{"P1", "P2"}, state.Completed)
	assert.Equal(t, []string{"P2"}, state.Empty)
	require.Len(t, state.Failed, 1)
	assert.Equal(t, "P3", state.Failed[0].Point)
	assert.Equal(t, "HTTP 500", state.Failed[0].Error)
}

func TestFilterExisting_SkipsTodaysFiles(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{})

	today := time.Now().Format("2006-01-02")
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/out", today, "P1.csv"), []byte("x"), 0644))

	items := []domain.DownloadRequest{
		{Point: "P1", URL: "http://x/1"},
		{Point: "P2", URL: "http://x/2"},
	}

	filtered, skipped := engine.FilterExisting(items, "/out", false)
	assert.Equal(t, 1, skipped)
	require.Len(t, filtered, 1)
	assert.Equal(t, "P2", filtered[0].Point)
}

func TestFilterExisting_ForceKeepsEverything(t *testing.T) {
	station := newTestStation(t)
	fs := afero.NewMemMapFs()
	engine := newTestEngine(station, fs, EngineOptions{})

	today := time.Now().Format("2006-01-02")
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/out", today, "P1.csv"), []byte("x"), 0644))

	items := []domain.DownloadRequest{{Point: "P1", URL: "http://x/1"}}

	filtered, skipped := engine.FilterExisting(items, "/out", true)
	assert.Equal(t, 0, skipped)
	assert.Len(t, filtered, 1)
}

func TestThrottle_GrowsAfterFailureStreak(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{Throttle: time.Millisecond})

	for i := 0; i < throttleTripThreshold; i++ {
		engine.noteFailure()
	}
	_, multiplier := engine.throttleState()
	assert.Equal(t, 1.0, multiplier, "multiplier unchanged within threshold")

	engine.noteFailure()
	_, multiplier = engine.throttleState()
	assert.Equal(t, throttleGrowth, multiplier)

	// Capped after sustained failure.
	for i := 0; i < 20; i++ {
		engine.noteFailure()
	}
	_, multiplier = engine.throttleState()
	assert.Equal(t, throttleCap, multiplier)
}

func TestThrottle_SuccessResetsStreakAndDecays(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{Throttle: time.Millisecond})

	for i := 0; i < throttleTripThreshold+2; i++ {
		engine.noteFailure()
	}
	_, before := engine.throttleState()
	require.Greater(t, before, 1.0)

	engine.noteSuccess()
	failures, after := engine.throttleState()
	assert.Equal(t, 0, failures)
	assert.Less(t, after, before)

	// Repeated successes decay back to the floor.
	for i := 0; i < 50; i++ {
		engine.noteSuccess()
	}
	_, floor := engine.throttleState()
	assert.Equal(t, 1.0, floor)
}

func TestThrottleDelay_DisabledWithoutBase(t *testing.T) {
	station := newTestStation(t)
	engine := newTestEngine(station, afero.NewMemMapFs(), EngineOptions{})

	for i := 0; i < 10; i++ {
		engine.noteFailure()
	}
	assert.Equal(t, time.Duration(0), engine.throttleDelay())
}

func TestTruncateError_BoundsLength(t *testing.T) {
	long := errors.New(strings.Repeat("x", 200))
	msg := truncateError(long)
	assert.Len(t, msg, maxErrorLength)

	short := errors.New("connection refused")
	assert.Equal(t, "connection refused", truncateError(short))
}
