package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

const defaultBarWidth = 25

// ProgressPrinter renders an in-place console progress bar from per-item
// completion events. It serializes its own counters, so the Report method
// is safe to hand to the engine as the progress callback.
type ProgressPrinter struct {
	out       io.Writer
	showEvery int
	barWidth  int

	mu    sync.Mutex
	count int
	ok    int
	empty int
	fail  int
	start time.Time
}

// NewProgressPrinter creates a printer that emits every showEvery-th
// completion (and always the final one). Pass nil to write to stdout.
func NewProgressPrinter(out io.Writer, showEvery int) *ProgressPrinter {
	if out == nil {
		out = os.Stdout
	}
	if showEvery < 1 {
		showEvery = 1
	}
	return &ProgressPrinter{
		out:       out,
		showEvery: showEvery,
		barWidth:  defaultBarWidth,
		start:     time.Now(),
	}
}

// Report implements domain.ProgressFunc.
func (p *ProgressPrinter) Report(current, total int, _ string, outcome domain.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	switch outcome {
	case domain.OutcomeSuccess:
		p.ok++
	case domain.OutcomeEmpty:
		p.empty++
	default:
		p.fail++
	}

	if p.count%p.showEvery != 0 && current != total {
		return
	}

	pct := 0.0
	if total > 0 {
		pct = float64(current) / float64(total)
	}
	filled := int(float64(p.barWidth) * pct)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.barWidth-filled)

	elapsed := time.Since(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(current) / elapsed
	}

	failStr := ""
	if p.fail > 0 {
		failStr = fmt.Sprintf(" FAIL:%d", p.fail)
	}

	width := len(fmt.Sprint(total))
	fmt.Fprintf(p.out, "\r  [%s] %*d/%d  %5.1f%%  OK:%d EMPTY:%d%s  %.1f/s",
		bar, width, current, total, pct*100, p.ok, p.empty, failStr, rate)

	if current == total {
		fmt.Fprintln(p.out)
	}
}
