package infrastructure

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PointListPrefix is the filename prefix for locally stored point lists.
const PointListPrefix = "pointlist_"

// LoadPointList reads the ordered point paths for a district from a point
// list file. Blank lines and '#' comments are skipped; for CSV rows the
// first column is taken. A UTF-8 BOM is tolerated.
func LoadPointList(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read point list: %w", err)
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var points []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		point := line
		if i := strings.IndexByte(line, ','); i >= 0 {
			point = line[:i]
		}
		point = strings.TrimSpace(strings.ReplaceAll(point, `"`, ""))

		if point != "" {
			points = append(points, point)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read point list: %w", err)
	}

	return points, nil
}

// ResolvePointList finds the point list file for a district. The configured
// path wins; otherwise point_lists/pointlist_{DISTRICT}.txt under baseDir
// is tried. The second return value names the source: "config", "local" or
// "none".
func ResolvePointList(fs afero.Fs, district, configured, baseDir string) (string, string) {
	if configured != "" {
		if ok, _ := afero.Exists(fs, configured); ok {
			return configured, "config"
		}
	}

	local := filepath.Join(baseDir, "point_lists", PointListPrefix+strings.ToUpper(district)+".txt")
	if ok, _ := afero.Exists(fs, local); ok {
		return local, "local"
	}

	return "", "none"
}
