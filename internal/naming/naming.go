// Package naming maps hierarchical point paths to flat, filesystem-safe
// file names.
package naming

import "strings"

// illegal holds characters that are not valid in filenames on Windows
// shares, where the output folders commonly live.
const illegal = `\<>:"|?*`

// PointFilename converts a point path to a standardized base filename.
//
// Path separators become underscores, leading and trailing underscores are
// stripped, and illegal filename characters are replaced with underscores.
// The mapping is deterministic and total; distinct point paths can in
// principle collide (e.g. "A/B" and "A_B"), which is an accepted risk since
// real point lists do not use underscores and slashes interchangeably.
func PointFilename(pointPath string) string {
	name := strings.ReplaceAll(pointPath, "/", "_")
	name = strings.Trim(name, "_")
	for _, ch := range illegal {
		name = strings.ReplaceAll(name, string(ch), "_")
	}
	return name
}

// CSVFilename returns the full output filename for a point.
func CSVFilename(pointPath string) string {
	return PointFilename(pointPath) + ".csv"
}
