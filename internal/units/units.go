// Package units converts provider-native weather values and applies the
// freeze/thaw rule in either temperature unit.
package units

import (
	"database/sql"
	"math"

	"github.com/lox/sapweather/internal/models"
)

const (
	freezingF = 32.0
	thawF     = 40.0
	freezingC = 0.0
	thawC     = 4.4
)

// FahrenheitToCelsius converts and rounds to one decimal place.
func FahrenheitToCelsius(f float64) float64 {
	return math.Round((f-32)*5/9*10) / 10
}

func convertNull(v sql.NullFloat64) sql.NullFloat64 {
	if !v.Valid {
		return v
	}
	return sql.NullFloat64{Float64: FahrenheitToCelsius(v.Float64), Valid: true}
}

// IsSapFlowIdeal applies the freeze/thaw rule: nights below freezing and
// days above roughly 40°F (4.4°C).
func IsSapFlowIdeal(high, low float64, unit models.Unit) bool {
	if unit == models.Celsius {
		return low < freezingC && high > thawC
	}
	return low < freezingF && high > thawF
}

// IsSapFlowIdealNull is IsSapFlowIdeal for nullable temperatures; a missing
// value is never ideal.
func IsSapFlowIdealNull(high, low sql.NullFloat64, unit models.Unit) bool {
	if !high.Valid || !low.Valid {
		return false
	}
	return IsSapFlowIdeal(high.Float64, low.Float64, unit)
}

// ConvertRecord returns a copy of r with temperature fields in unit.
// Records are assumed to be in Fahrenheit on input.
func ConvertRecord(r models.DailyWeatherRecord, unit models.Unit) models.DailyWeatherRecord {
	if unit != models.Celsius {
		return r
	}
	r.TempHigh = convertNull(r.TempHigh)
	r.TempLow = convertNull(r.TempLow)
	r.TempAvg = convertNull(r.TempAvg)
	return r
}

func ConvertRecords(records []models.DailyWeatherRecord, unit models.Unit) []models.DailyWeatherRecord {
	out := make([]models.DailyWeatherRecord, len(records))
	for i, r := range records {
		out[i] = ConvertRecord(r, unit)
	}
	return out
}
