package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
	"github.com/dallasmenard-github/NiagaraGetData/internal/infrastructure"
)

// DefaultTZOffset is the timezone offset embedded in trend query URLs.
const DefaultTZOffset = "-04:00"

// DateRange is a half-open download window; both bounds are truncated to
// midnight when rendered into a URL.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window covering the last n days up to today.
func LastDays(n int) DateRange {
	now := time.Now()
	return DateRange{Start: now.AddDate(0, 0, -n), End: now}
}

// URLGenerator builds (point, URL) download pairs for one district from
// its configured point list.
type URLGenerator struct {
	district string
	cfg      domain.District
	fs       afero.Fs

	points          []string
	pointListPath   string
	pointListSource string
}

// NewURLGenerator loads the district's point list and validates its
// configuration. baseDir anchors the point_lists fallback directory.
func NewURLGenerator(fs afero.Fs, district string, cfg domain.District, baseDir string) (*URLGenerator, error) {
	district = strings.ToUpper(district)
	if err := cfg.Validate(district); err != nil {
		return nil, err
	}

	g := &URLGenerator{
		district: district,
		cfg:      cfg,
		fs:       fs,
	}

	g.pointListPath, g.pointListSource = infrastructure.ResolvePointList(fs, district, cfg.PointList, baseDir)
	if g.pointListPath != "" {
		points, err := infrastructure.LoadPointList(fs, g.pointListPath)
		if err != nil {
			return nil, fmt.Errorf("load point list for %s: %w", district, err)
		}
		g.points = points
	}

	return g, nil
}

// HasPointList reports whether a non-empty point list was found.
func (g *URLGenerator) HasPointList() bool {
	return g.pointListPath != "" && len(g.points) > 0
}

// PointCount returns the number of points in the list.
func (g *URLGenerator) PointCount() int {
	return len(g.points)
}

// PointListSource names where the point list came from: "config", "local"
// or "none".
func (g *URLGenerator) PointListSource() string {
	return g.pointListSource
}

// OutputFolder returns the district's configured output folder, or a
// per-district folder under defaultRoot.
func (g *URLGenerator) OutputFolder(defaultRoot string) string {
	if g.cfg.OutputDir != "" {
		return g.cfg.OutputDir
	}
	return filepath.Join(defaultRoot, g.district)
}

// Generate builds one download request per point for the window.
func (g *URLGenerator) Generate(window DateRange, tzOffset string) ([]domain.DownloadRequest, error) {
	if !g.HasPointList() {
		return nil, fmt.Errorf("no point list found for %s", g.district)
	}
	if tzOffset == "" {
		tzOffset = DefaultTZOffset
	}

	start := formatStationTime(window.Start, tzOffset)
	end := formatStationTime(window.End, tzOffset)
	base := strings.TrimRight(g.cfg.BaseAddress, "/")

	requests := make([]domain.DownloadRequest, 0, len(g.points))
	for _, point := range g.points {
		url := fmt.Sprintf(
			"%s/ord?history:%s?period=timeRange;start=%s;end=%s|bql:select%%20timestamp,value|view:file:ITableToCsv",
			base, point, start, end,
		)
		requests = append(requests, domain.DownloadRequest{Point: point, URL: url})
	}

	return requests, nil
}

// PointListURL returns the station URL that exports the full point id list.
func (g *URLGenerator) PointListURL() string {
	return strings.TrimRight(g.cfg.BaseAddress, "/") + "/ord?history:|bql:select%20id|view:file:ITableToCsv"
}

// formatStationTime renders a timestamp the way the station's time-range
// query expects it: midnight of the given day with an explicit offset.
func formatStationTime(t time.Time, tzOffset string) string {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Format("2006-01-02T15:04:05.000") + tzOffset
}
