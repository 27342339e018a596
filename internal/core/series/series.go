// Package series derives rollups from stitched daily download series.
package series

import (
	"github.com/ossanalytics/ossanalytics/internal/core"
)

// Trailing returns the sum and average of every run of k consecutive
// points, keyed by the run's first day. Runs that contain a missing point
// are skipped, as is everything when fewer than k points exist.
func Trailing(points []core.DownloadPoint, k int) []core.Rollup {
	if k <= 0 || len(points) < k {
		return nil
	}

	rollups := make([]core.Rollup, 0, len(points)-k+1)
	var sum int64
	missing := 0
	for i, p := range points {
		if p.Missing {
			missing++
		} else {
			sum += p.Value
		}
		if i >= k {
			drop := points[i-k]
			if drop.Missing {
				missing--
			} else {
				sum -= drop.Value
			}
		}
		if i < k-1 || missing > 0 {
			continue
		}
		rollups = append(rollups, core.Rollup{
			Start:   points[i-k+1].Date,
			End:     p.Date,
			Sum:     sum,
			Average: float64(sum) / float64(k),
		})
	}
	return rollups
}

// WeeklyTotals sums the last seven points and the seven before them.
// Missing points count as zero.
func WeeklyTotals(points []core.DownloadPoint) (current, previous int64) {
	n := len(points)
	for i := n - 1; i >= 0 && i >= n-14; i-- {
		if points[i].Missing {
			continue
		}
		if i >= n-7 {
			current += points[i].Value
		} else {
			previous += points[i].Value
		}
	}
	return current, previous
}

// Change is the relative change from previous to current; zero when there
// is no previous value to compare against.
func Change(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	return float64(current-previous) / float64(previous)
}
