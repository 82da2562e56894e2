package ingest

import (
	"database/sql"

	"github.com/lox/sapweather/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagTempInverted       = "temp_inverted"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagSolarNegative      = "solar_negative"
	FlagPrecipNegative     = "precip_negative"
	FlagSunshineInvalid    = "sunshine_invalid"
)

// ValidateRecord checks a provider-native record (°F, mph, inches, hPa) for
// implausible values. Offending fields are nulled so they never reach a
// correlation, and the reasons are returned.
func ValidateRecord(r *models.DailyWeatherRecord) []string {
	var flags []string
	check := func(v *sql.NullFloat64, bad func(float64) bool, flag string) {
		if v.Valid && bad(v.Float64) {
			*v = sql.NullFloat64{}
			flags = append(flags, flag)
		}
	}

	tempBad := func(t float64) bool { return t < -60 || t > 130 }
	check(&r.TempHigh, tempBad, FlagTempOutOfRange)
	check(&r.TempLow, tempBad, FlagTempOutOfRange)
	if r.TempHigh.Valid && r.TempLow.Valid && r.TempHigh.Float64 < r.TempLow.Float64 {
		r.TempHigh, r.TempLow = sql.NullFloat64{}, sql.NullFloat64{}
		flags = append(flags, FlagTempInverted)
	}

	check(&r.Humidity, func(h float64) bool { return h < 0 || h > 100 }, FlagHumidityInvalid)
	check(&r.WindDirection, func(d float64) bool { return d < 0 || d > 360 }, FlagWindDirInvalid)
	check(&r.WindSpeed, func(s float64) bool { return s < 0 || s > 200 }, FlagWindSpeedUnlikely)
	check(&r.Pressure, func(p float64) bool { return p < 800 || p > 1100 }, FlagPressureOutOfRange)
	check(&r.SolarRadiation, func(s float64) bool { return s < 0 }, FlagSolarNegative)
	check(&r.Precipitation, func(p float64) bool { return p < 0 }, FlagPrecipNegative)
	check(&r.PrecipitationHours, func(h float64) bool { return h < 0 || h > 24 }, FlagPrecipNegative)
	check(&r.SunshineHours, func(h float64) bool { return h < 0 || h > 24 }, FlagSunshineInvalid)

	return flags
}
