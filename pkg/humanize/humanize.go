// Package humanize formats byte counts for display, the same concern
// the teacher's utils.FormatBinaryBytes/FormatDecimalBytes cover. The
// scaling itself is delegated to docker/go-units' CustomSize, the same
// primitive the engine's own image/layer size reporting is built on;
// only the unit tables and format string are FTL's own, since
// go-units' built-in HumanSize/BytesSize emit a bare "kB"/"MiB" suffix
// with no separating space, which doesn't match the round-trip
// property in spec §8.
package humanize

import (
	units "github.com/docker/go-units"
)

var binaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}
var siUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FileSize renders n bytes as a human string with one decimal place.
// With si=false it uses base-1024 units (KiB, MiB, ...); with si=true
// it uses base-1000 units (KB, MB, ...).
func FileSize(n int64, si bool) string {
	if si {
		return units.CustomSize("%.1f %s", float64(n), 1000.0, siUnits)
	}
	return units.CustomSize("%.1f %s", float64(n), 1024.0, binaryUnits)
}
