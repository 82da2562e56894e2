package ingest

import "database/sql"

const hoursPerDay = 24

// DailyAverages reduces an hourly series to one mean per 24-hour block.
// Missing samples are skipped rather than counted as zero, and a block with
// no samples yields a null average.
func DailyAverages(hourly []*float64, days int) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, days)
	for day := 0; day < days; day++ {
		start := day * hoursPerDay
		end := start + hoursPerDay
		if end > len(hourly) {
			end = len(hourly)
		}

		var sum float64
		var n int
		for i := start; i < end; i++ {
			if hourly[i] == nil {
				continue
			}
			sum += *hourly[i]
			n++
		}
		if n > 0 {
			out[day] = sql.NullFloat64{Float64: round1(sum / float64(n)), Valid: true}
		}
	}
	return out
}
