package predict

import (
	"database/sql"

	"github.com/lox/sapweather/internal/correlation"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/stats"
)

const (
	MethodTraditional      = "traditional"
	traditionalDescription = "Average volume from past freeze/thaw days, applied to forecast days that meet the freeze/thaw rule."
)

type Baseline struct {
	Predictions []models.PredictionPoint
	Method      string
	Description string
	// AverageIdealVolume is the mean daily volume over historical ideal
	// days, null when the season has none.
	AverageIdealVolume sql.NullFloat64
	TotalDays          int
	TotalTaps          int
	InsufficientData   bool
}

// Traditional predicts the historical ideal-day average for each ideal
// forecast day and zero otherwise.
func Traditional(res *correlation.Result, forecast []models.DailyWeatherRecord) *Baseline {
	out := &Baseline{
		Predictions: []models.PredictionPoint{},
		Method:      MethodTraditional,
		Description: traditionalDescription,
		TotalDays:   len(res.Data),
		TotalTaps:   res.TotalTaps,
	}

	var ideal []float64
	for _, d := range res.Data {
		if d.IdealConditions {
			ideal = append(ideal, d.Volume)
		}
	}
	if len(ideal) > 0 {
		out.AverageIdealVolume = sql.NullFloat64{Float64: stats.Round(stats.Mean(ideal), 2), Valid: true}
	}

	days := window(forecast)
	if !out.AverageIdealVolume.Valid || len(days) == 0 {
		out.InsufficientData = true
		return out
	}

	for _, day := range days {
		p := point(day, 0, res.TotalTaps, res.Unit)
		if p.IdealForSap {
			p = point(day, out.AverageIdealVolume.Float64, res.TotalTaps, res.Unit)
		}
		out.Predictions = append(out.Predictions, p)
	}
	return out
}
