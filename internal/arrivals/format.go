package arrivals

import (
	"fmt"
	"math"

	"github.com/jusunglee/mta-arrivals/internal/models"
)

// MaxArrivals is the number of arrivals shown per direction
const MaxArrivals = 3

// FormatArrival renders t relative to now as "Now" or "<N> min".
// Minutes are rounded half up, so 90 seconds reads "2 min".
func FormatArrival(t, now int64) string {
	minutes := float64(t-now) / 60.0
	if minutes < 1 {
		return models.ArrivalNow
	}
	return fmt.Sprintf("%d min", int64(math.Floor(minutes+0.5)))
}

// SelectArrivals formats the first MaxArrivals of sorted, soonest first
func SelectArrivals(sorted []int64, now int64) []string {
	if len(sorted) > MaxArrivals {
		sorted = sorted[:MaxArrivals]
	}

	out := make([]string, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, FormatArrival(t, now))
	}
	return out
}

func noData() models.DirectionStatus {
	return models.DirectionStatus{Status: models.StatusNoData, NextArrivals: []string{}}
}

func errorLoading() models.DirectionStatus {
	return models.DirectionStatus{NextArrivals: []string{models.ErrorLoadingData}}
}
