package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
	"github.com/dallasmenard-github/NiagaraGetData/internal/infrastructure"
	"github.com/dallasmenard-github/NiagaraGetData/internal/naming"
)

const (
	// maxErrorLength bounds stored per-point error messages.
	maxErrorLength = 50

	// throttleTripThreshold is the consecutive-failure count above which
	// the throttle multiplier starts growing.
	throttleTripThreshold = 5

	throttleGrowth = 1.5
	throttleDecay  = 0.9
	throttleCap    = 5.0
)

// EngineOptions configures a download engine.
type EngineOptions struct {
	// Workers is the bounded worker pool size. Default 10.
	Workers int

	// Timeout is the per-request timeout. Default 30s.
	Timeout time.Duration

	// MinContentSize is the byte threshold below which a fetched body is
	// classified empty rather than success. Default 50.
	MinContentSize int

	// Throttle is the base delay before each request; 0 disables
	// throttling entirely.
	Throttle time.Duration

	// StateInterval is how often resume state is persisted (every N
	// completions). Default 50.
	StateInterval int
}

func (o *EngineOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MinContentSize <= 0 {
		o.MinContentSize = 50
	}
	if o.StateInterval <= 0 {
		o.StateInterval = 50
	}
}

// Engine downloads batches of trend data over an authenticated session
// using a bounded worker pool. A single engine instance owns one HTTP
// session; release it with Close.
type Engine struct {
	client   *http.Client
	cookies  map[string]string
	opts     EngineOptions
	fs       afero.Fs
	store    *infrastructure.StateStore
	logger   *zap.Logger
	progress domain.ProgressFunc

	// Adaptive throttling state, shared across workers.
	mu                  sync.Mutex
	consecutiveFailures int
	throttleMultiplier  float64
}

// NewEngine creates an engine with its own pooled HTTP session. The cookie
// set is applied to every request in every batch.
func NewEngine(cookies map[string]string, opts EngineOptions, logger *zap.Logger) *Engine {
	opts.applyDefaults()
	sessOpts := infrastructure.DefaultSessionOptions()
	sessOpts.PoolSize = opts.Workers
	sessOpts.Timeout = opts.Timeout
	client := infrastructure.NewSession(sessOpts)
	return NewEngineWithClient(client, afero.NewOsFs(), cookies, opts, logger)
}

// NewEngineWithClient creates an engine on an existing client and
// filesystem. Used by tests and callers that manage their own session.
func NewEngineWithClient(client *http.Client, fs afero.Fs, cookies map[string]string, opts EngineOptions, logger *zap.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		client:             client,
		cookies:            cookies,
		opts:               opts,
		fs:                 fs,
		store:              infrastructure.NewStateStoreWithFs(fs, logger),
		logger:             logger,
		throttleMultiplier: 1.0,
	}
}

// SetProgress installs a per-item completion callback. Must be called
// before starting a batch.
func (e *Engine) SetProgress(fn domain.ProgressFunc) {
	e.progress = fn
}

// Close releases the engine's pooled connections.
func (e *Engine) Close() {
	e.client.CloseIdleConnections()
}

// result is the terminal record of one item, consumed on a single
// goroutine so stats and state need no locking.
type result struct {
	point   string
	outcome domain.Outcome
	size    int64
	errMsg  string
}

// DownloadBatch fetches every item using the worker pool and writes each
// body under its normalized filename in the (optionally date-partitioned)
// output folder. A single item's failure never aborts the batch.
func (e *Engine) DownloadBatch(ctx context.Context, items []domain.DownloadRequest, outputFolder string, partitionByDay bool) (*domain.BatchStats, error) {
	stats := domain.NewBatchStats(len(items))
	if len(items) == 0 {
		stats.EndTime = time.Now()
		return stats, nil
	}

	folder := partitionFolder(outputFolder, partitionByDay)
	if err := e.fs.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	e.run(ctx, items, folder, stats, nil)
	stats.EndTime = time.Now()
	return stats, nil
}

// DownloadBatchWithResume is DownloadBatch with durable progress tracking.
// Points already recorded as completed for this output partition are
// filtered out up front; state is persisted every StateInterval completions
// and once more at the end, so an interrupted run resumes with bounded
// re-fetching. Only failed points stay eligible for a later run.
func (e *Engine) DownloadBatchWithResume(ctx context.Context, items []domain.DownloadRequest, outputFolder, district string, partitionByDay bool) (*domain.BatchStats, error) {
	folder := partitionFolder(outputFolder, partitionByDay)
	if err := e.fs.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	state := e.store.Load(folder)
	if state == nil {
		state = domain.NewResumeState(district, len(items))
	}

	done := state.CompletedSet()
	remaining := make([]domain.DownloadRequest, 0, len(items))
	for _, item := range items {
		if _, ok := done[item.Point]; !ok {
			remaining = append(remaining, item)
		}
	}
	skipped := len(items) - len(remaining)

	if skipped > 0 {
		e.logger.Info("Resuming batch",
			zap.String("district", district),
			zap.Int("already_completed", skipped),
			zap.Int("remaining", len(remaining)))
	}

	stats := domain.NewBatchStats(len(remaining))
	stats.Skipped = skipped
	if len(remaining) == 0 {
		stats.EndTime = time.Now()
		return stats, nil
	}

	e.run(ctx, remaining, folder, stats, state)

	if err := e.store.Save(folder, state); err != nil {
		e.logger.Warn("Failed to save resume state", zap.Error(err))
	}
	stats.EndTime = time.Now()
	return stats, nil
}

// FilterExisting removes items whose output file already exists in today's
// partition folder, unless force is set. This pre-filter is independent of
// resume state; it catches files left by unrelated runs or manual copies.
func (e *Engine) FilterExisting(items []domain.DownloadRequest, outputFolder string, force bool) ([]domain.DownloadRequest, int) {
	if force {
		return items, 0
	}

	todayFolder := partitionFolder(outputFolder, true)
	entries, err := afero.ReadDir(e.fs, todayFolder)
	if err != nil {
		return items, 0
	}

	existing := make(map[string]struct{})
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".csv") {
			existing[entry.Name()] = struct{}{}
		}
	}

	filtered := make([]domain.DownloadRequest, 0, len(items))
	skipped := 0
	for _, item := range items {
		if _, ok := existing[naming.CSVFilename(item.Point)]; ok {
			skipped++
		} else {
			filtered = append(filtered, item)
		}
	}

	return filtered, skipped
}

// run fans the items out over the worker pool and consumes results on this
// goroutine. Stats and state are only touched here; workers only produce
// result values. The context is advisory: it stops dispatch of new work,
// while in-flight requests run to their own timeout.
func (e *Engine) run(ctx context.Context, items []domain.DownloadRequest, folder string, stats *domain.BatchStats, state *domain.ResumeState) {
	jobs := make(chan domain.DownloadRequest)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				results <- e.downloadOne(req, folder)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case jobs <- item:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++

		switch res.outcome {
		case domain.OutcomeSuccess:
			stats.Success++
			stats.BytesDownloaded += res.size
			if state != nil {
				state.MarkSuccess(res.point)
			}
		case domain.OutcomeEmpty:
			stats.Empty++
			stats.BytesDownloaded += res.size
			if state != nil {
				state.MarkEmpty(res.point)
			}
		default:
			stats.Failed++
			stats.Errors = append(stats.Errors, domain.DownloadError{Point: res.point, Message: res.errMsg})
			if state != nil {
				state.MarkFailed(res.point, res.errMsg)
			}
		}

		if state != nil && completed%e.opts.StateInterval == 0 {
			if err := e.store.Save(folder, state); err != nil {
				e.logger.Warn("Failed to save resume state", zap.Error(err))
			}
		}

		e.report(completed, stats.Total, res.point, res.outcome)
	}
}

// downloadOne fetches a single point and writes its body to disk. Every
// outcome is terminal: success, empty or failed.
func (e *Engine) downloadOne(req domain.DownloadRequest, folder string) result {
	if delay := e.throttleDelay(); delay > 0 {
		time.Sleep(delay)
	}

	// Deliberately no request context: a stop signal only prevents new
	// dispatch, in-flight requests finish or hit the client timeout.
	httpReq, err := http.NewRequest(http.MethodGet, req.URL, nil)
	if err != nil {
		e.noteFailure()
		return result{point: req.Point, outcome: domain.OutcomeFailed, errMsg: truncateError(err)}
	}
	for name, value := range e.cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.noteFailure()
		return result{point: req.Point, outcome: domain.OutcomeFailed, errMsg: truncateError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.noteFailure()
		return result{point: req.Point, outcome: domain.OutcomeFailed, errMsg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.noteFailure()
		return result{point: req.Point, outcome: domain.OutcomeFailed, errMsg: truncateError(err)}
	}

	path := filepath.Join(folder, naming.CSVFilename(req.Point))
	if err := afero.WriteFile(e.fs, path, body, 0644); err != nil {
		e.noteFailure()
		return result{point: req.Point, outcome: domain.OutcomeFailed, errMsg: truncateError(err)}
	}

	e.noteSuccess()

	if len(body) < e.opts.MinContentSize {
		return result{point: req.Point, outcome: domain.OutcomeEmpty, size: int64(len(body))}
	}
	return result{point: req.Point, outcome: domain.OutcomeSuccess, size: int64(len(body))}
}

// report invokes the progress callback, isolating the batch from callback
// panics.
func (e *Engine) report(completed, total int, point string, outcome domain.Outcome) {
	if e.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Progress callback panicked", zap.Any("panic", r))
		}
	}()
	e.progress(completed, total, point, outcome)
}

// noteSuccess resets the failure streak and decays the throttle multiplier
// toward 1.0.
func (e *Engine) noteSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures = 0
	e.throttleMultiplier *= throttleDecay
	if e.throttleMultiplier < 1.0 {
		e.throttleMultiplier = 1.0
	}
}

// noteFailure grows the throttle multiplier once the failure streak passes
// the threshold. Best-effort backpressure, not a control loop.
func (e *Engine) noteFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures++
	if e.consecutiveFailures > throttleTripThreshold {
		e.throttleMultiplier *= throttleGrowth
		if e.throttleMultiplier > throttleCap {
			e.throttleMultiplier = throttleCap
		}
	}
}

func (e *Engine) throttleDelay() time.Duration {
	if e.opts.Throttle <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(float64(e.opts.Throttle) * e.throttleMultiplier)
}

// throttleState exposes the adaptive throttle internals for tests.
func (e *Engine) throttleState() (failures int, multiplier float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveFailures, e.throttleMultiplier
}

// partitionFolder appends today's YYYY-MM-DD partition when requested.
func partitionFolder(outputFolder string, partitionByDay bool) string {
	if !partitionByDay {
		return outputFolder
	}
	return filepath.Join(outputFolder, time.Now().Format("2006-01-02"))
}

// truncateError renders an error for stats and state, collapsing timeouts
// to a stable label and bounding the length.
func truncateError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	msg := err.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
