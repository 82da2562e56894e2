package predict

import (
	"database/sql"

	"github.com/lox/sapweather/internal/correlation"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/stats"
	"github.com/lox/sapweather/internal/units"
)

// sample is the weather view of one training or forecast day that feature
// columns read from. Lag temperatures are already resolved to their fallback.
type sample struct {
	TempHigh      sql.NullFloat64
	TempLow       sql.NullFloat64
	PrevHigh      sql.NullFloat64
	PrevLow       sql.NullFloat64
	Humidity      sql.NullFloat64
	Pressure      sql.NullFloat64
	WindSpeed     sql.NullFloat64
	SunshineHours sql.NullFloat64
	Unit          models.Unit
}

func fromDatum(d models.CorrelationDatum, unit models.Unit) sample {
	return sample{
		TempHigh:      d.TempHigh,
		TempLow:       d.TempLow,
		PrevHigh:      orElse(d.PrevDayTempHigh, d.TempHigh),
		PrevLow:       orElse(d.PrevDayTempLow, d.TempLow),
		Humidity:      d.Humidity,
		Pressure:      d.Pressure,
		WindSpeed:     d.WindSpeed,
		SunshineHours: d.SunshineHours,
		Unit:          unit,
	}
}

// fromForecast uses prev for lag features. At the start of the forecast
// window there is no neighbour and the day itself stands in.
func fromForecast(day models.DailyWeatherRecord, prev *models.DailyWeatherRecord, unit models.Unit) sample {
	s := sample{
		TempHigh:      day.TempHigh,
		TempLow:       day.TempLow,
		PrevHigh:      day.TempHigh,
		PrevLow:       day.TempLow,
		Humidity:      day.Humidity,
		Pressure:      day.Pressure,
		WindSpeed:     day.WindSpeed,
		SunshineHours: day.SunshineHours,
		Unit:          unit,
	}
	if prev != nil {
		s.PrevHigh = orElse(prev.TempHigh, day.TempHigh)
		s.PrevLow = orElse(prev.TempLow, day.TempLow)
	}
	return s
}

func orElse(v, fallback sql.NullFloat64) sql.NullFloat64 {
	if v.Valid {
		return v
	}
	return fallback
}

func valid(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Feature is one regression column.
type Feature struct {
	Name  string
	Value func(s sample) sql.NullFloat64
	// Include decides from the factor's correlation whether the column
	// enters the model. Nil means always.
	Include func(c models.FactorCorrelation) bool
	// Factor is the correlation consulted by Include.
	Factor string
}

func includeSignificant(c models.FactorCorrelation) bool {
	return c.SampleSize >= stats.MinSamples && c.Strength.Significant()
}

var (
	featureTempHigh = Feature{Name: correlation.FactorTempHigh, Value: func(s sample) sql.NullFloat64 { return s.TempHigh }}
	featureTempLow  = Feature{Name: correlation.FactorTempLow, Value: func(s sample) sql.NullFloat64 { return s.TempLow }}
)

// BaseFeatures are always offered to the full model.
var BaseFeatures = []Feature{
	featureTempHigh,
	featureTempLow,
	{Name: correlation.FactorTempDelta, Value: func(s sample) sql.NullFloat64 {
		if !s.TempHigh.Valid || !s.TempLow.Valid {
			return sql.NullFloat64{}
		}
		return valid(s.TempHigh.Float64 - s.TempLow.Float64)
	}},
	{Name: "prevDayTempHigh", Value: func(s sample) sql.NullFloat64 { return s.PrevHigh }},
	{Name: "prevDayTempLow", Value: func(s sample) sql.NullFloat64 { return s.PrevLow }},
	{Name: "idealConditions", Value: func(s sample) sql.NullFloat64 {
		if units.IsSapFlowIdealNull(s.TempHigh, s.TempLow, s.Unit) {
			return valid(1)
		}
		return valid(0)
	}},
}

// OptionalFeatures join the full model only when their factor correlates
// meaningfully with volume.
var OptionalFeatures = []Feature{
	{Name: correlation.FactorSunshineHours, Factor: correlation.FactorSunshineHours, Include: includeSignificant,
		Value: func(s sample) sql.NullFloat64 { return s.SunshineHours }},
	{Name: correlation.FactorPressure, Factor: correlation.FactorPressure, Include: includeSignificant,
		Value: func(s sample) sql.NullFloat64 { return s.Pressure }},
	{Name: correlation.FactorHumidity, Factor: correlation.FactorHumidity, Include: includeSignificant,
		Value: func(s sample) sql.NullFloat64 { return s.Humidity }},
	{Name: correlation.FactorWindSpeed, Factor: correlation.FactorWindSpeed, Include: includeSignificant,
		Value: func(s sample) sql.NullFloat64 { return s.WindSpeed }},
}

// MinimalFeatures is the fallback model.
var MinimalFeatures = []Feature{featureTempHigh, featureTempLow}

// SelectFeatures returns the base features followed by each optional
// feature whose inclusion predicate accepts its correlation.
func SelectFeatures(correlations map[string]models.FactorCorrelation) []Feature {
	out := append([]Feature(nil), BaseFeatures...)
	for _, f := range OptionalFeatures {
		if f.Include == nil || f.Include(correlations[f.Factor]) {
			out = append(out, f)
		}
	}
	return out
}
