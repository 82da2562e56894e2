package correlation

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/lox/sapweather/internal/ingest"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/stats"
	"github.com/lox/sapweather/internal/units"
	"github.com/lox/sapweather/internal/weather"
)

// lagDays is how far before the first yield date weather is fetched so the
// earliest point still has lag features.
const lagDays = 2

// WeatherRange is the slice of the weather cache the engine depends on.
type WeatherRange interface {
	Range(ctx context.Context, lat, lng float64, start, end time.Time) weather.RangeResult
}

type Result struct {
	Data           []models.CorrelationDatum
	Correlations   map[string]models.FactorCorrelation
	Insights       []models.Insight
	TotalDays      int
	TotalTaps      int
	IdealDaysCount int
	Unit           models.Unit
	// Failed lists upstream weather windows that could not be fetched.
	Failed []ingest.FailedWindow
}

// Legacy returns the single-factor temperature-delta correlation.
func (r *Result) Legacy() models.FactorCorrelation {
	return r.Correlations[FactorTempDelta]
}

type Engine struct {
	weather WeatherRange
}

func NewEngine(w WeatherRange) *Engine {
	return &Engine{weather: w}
}

// Analyze joins yield records with weather for lat/lng and summarises the
// per-factor correlations. Temperatures in the result are in unit.
func (e *Engine) Analyze(ctx context.Context, lat, lng float64, unit models.Unit, records []models.YieldRecord, totalTaps int) *Result {
	result := &Result{
		TotalTaps:    totalTaps,
		Unit:         unit,
		Correlations: Correlate(nil),
	}

	aggregates := Aggregate(records)
	if len(aggregates) == 0 {
		return result
	}

	start := aggregates[0].Date.AddDate(0, 0, -lagDays)
	end := aggregates[len(aggregates)-1].Date
	wr := e.weather.Range(ctx, lat, lng, start, end)
	result.Failed = wr.Failed

	result.Data = Join(aggregates, units.ConvertRecords(wr.Records, unit), unit, totalTaps)
	result.Correlations = Correlate(result.Data)
	result.Insights = Insights(result.Correlations)
	result.TotalDays = len(result.Data)
	for _, d := range result.Data {
		if d.IdealConditions {
			result.IdealDaysCount++
		}
	}
	return result
}

// Aggregate sums volumes per calendar date, ascending.
func Aggregate(records []models.YieldRecord) []models.YieldAggregate {
	byDay := make(map[string]*models.YieldAggregate)
	for _, r := range records {
		k := r.Date.Format(models.DateLayout)
		if agg, ok := byDay[k]; ok {
			agg.Volume += r.Volume
			continue
		}
		d := time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
		byDay[k] = &models.YieldAggregate{Date: d, Volume: r.Volume}
	}

	out := make([]models.YieldAggregate, 0, len(byDay))
	for _, agg := range byDay {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Join emits one datum per aggregate that has same-day weather. Dates
// without weather are dropped, never imputed. Weather must already be in unit.
func Join(aggregates []models.YieldAggregate, records []models.DailyWeatherRecord, unit models.Unit, totalTaps int) []models.CorrelationDatum {
	byDay := make(map[string]models.DailyWeatherRecord, len(records))
	for _, r := range records {
		byDay[r.DayKey()] = r
	}

	var data []models.CorrelationDatum
	for _, agg := range aggregates {
		w, ok := byDay[agg.Date.Format(models.DateLayout)]
		if !ok {
			continue
		}

		d := models.CorrelationDatum{
			Date:               agg.Date,
			Volume:             agg.Volume,
			TempHigh:           w.TempHigh,
			TempLow:            w.TempLow,
			TempAvg:            w.TempAvg,
			TempDelta:          delta(w.TempHigh, w.TempLow),
			Precipitation:      w.Precipitation,
			PrecipitationHours: w.PrecipitationHours,
			Humidity:           w.Humidity,
			Pressure:           w.Pressure,
			WindSpeed:          w.WindSpeed,
			SunshineHours:      w.SunshineHours,
			SolarRadiation:     w.SolarRadiation,
			WeatherCode:        w.WeatherCode,
			IdealConditions:    units.IsSapFlowIdealNull(w.TempHigh, w.TempLow, unit),
		}
		if totalTaps > 0 {
			d.VolumePerTap = sql.NullFloat64{Float64: stats.Round(agg.Volume/float64(totalTaps), 3), Valid: true}
		}

		if prev, ok := byDay[agg.Date.AddDate(0, 0, -1).Format(models.DateLayout)]; ok {
			d.PrevDayTempHigh = prev.TempHigh
			d.PrevDayTempLow = prev.TempLow
			d.PrevDayTempDelta = delta(prev.TempHigh, prev.TempLow)
			if prev.TempHigh.Valid && prev.TempLow.Valid {
				d.PrevDayIdealConditions = sql.NullBool{Bool: units.IsSapFlowIdeal(prev.TempHigh.Float64, prev.TempLow.Float64, unit), Valid: true}
			}
		}
		if prev2, ok := byDay[agg.Date.AddDate(0, 0, -2).Format(models.DateLayout)]; ok {
			d.TwoDaysAgoTempHigh = prev2.TempHigh
			d.TwoDaysAgoTempLow = prev2.TempLow
		}

		data = append(data, d)
	}
	return data
}

func delta(high, low sql.NullFloat64) sql.NullFloat64 {
	if !high.Valid || !low.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: stats.Round(high.Float64-low.Float64, 1), Valid: true}
}
