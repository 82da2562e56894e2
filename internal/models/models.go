package models

import (
	"database/sql"
	"time"
)

// DateLayout is the calendar-day format used for cache keys and storage.
const DateLayout = "2006-01-02"

type Unit string

const (
	Fahrenheit Unit = "fahrenheit"
	Celsius    Unit = "celsius"
)

// ParseUnit accepts the short and long spellings used by callers.
// Anything unrecognised is treated as the provider-native Fahrenheit.
func ParseUnit(s string) Unit {
	switch s {
	case "c", "C", "celsius", "Celsius", "metric":
		return Celsius
	default:
		return Fahrenheit
	}
}

const (
	SourceForecast = "forecast"
	SourceArchive  = "archive"
)

// DailyWeatherRecord is one normalized day of weather for a location.
// Values are in provider-native units (°F, inches, mph) until converted.
type DailyWeatherRecord struct {
	Date               time.Time
	TempHigh           sql.NullFloat64
	TempLow            sql.NullFloat64
	TempAvg            sql.NullFloat64
	Precipitation      sql.NullFloat64
	PrecipitationHours sql.NullFloat64
	Humidity           sql.NullFloat64
	Pressure           sql.NullFloat64
	WindSpeed          sql.NullFloat64
	WindDirection      sql.NullFloat64
	SunshineHours      sql.NullFloat64
	SolarRadiation     sql.NullFloat64
	WeatherCode        sql.NullInt64
	Source             string
	FetchedAt          time.Time
}

// DayKey returns the record's calendar date as YYYY-MM-DD.
func (r DailyWeatherRecord) DayKey() string {
	return r.Date.Format(DateLayout)
}

// YieldRecord is a single raw collection entry from the record-keeping service.
type YieldRecord struct {
	Date   time.Time
	Volume float64
}

type YieldAggregate struct {
	Date   time.Time
	Volume float64
}

// CorrelationDatum joins a day's yield total with same-day and lagged weather.
type CorrelationDatum struct {
	Date         time.Time
	Volume       float64
	VolumePerTap sql.NullFloat64

	TempHigh           sql.NullFloat64
	TempLow            sql.NullFloat64
	TempAvg            sql.NullFloat64
	TempDelta          sql.NullFloat64
	Precipitation      sql.NullFloat64
	PrecipitationHours sql.NullFloat64
	Humidity           sql.NullFloat64
	Pressure           sql.NullFloat64
	WindSpeed          sql.NullFloat64
	SunshineHours      sql.NullFloat64
	SolarRadiation     sql.NullFloat64
	WeatherCode        sql.NullInt64
	IdealConditions    bool

	PrevDayTempHigh        sql.NullFloat64
	PrevDayTempLow         sql.NullFloat64
	PrevDayTempDelta       sql.NullFloat64
	PrevDayIdealConditions sql.NullBool

	TwoDaysAgoTempHigh sql.NullFloat64
	TwoDaysAgoTempLow  sql.NullFloat64
}

type Strength string

const (
	StrengthNone     Strength = "none"
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Significant reports whether the strength is moderate or strong.
func (s Strength) Significant() bool {
	return s == StrengthModerate || s == StrengthStrong
}

type FactorCorrelation struct {
	Coefficient sql.NullFloat64
	Strength    Strength
	SampleSize  int
}

type Insight struct {
	Factor      string
	Coefficient float64
	Strength    Strength
	Message     string
}

type PredictionPoint struct {
	Date            time.Time
	PredictedVolume float64
	// Null unless the season's total tap count is known.
	PredictedVolumePerTap sql.NullFloat64
	TempHigh              sql.NullFloat64
	TempLow               sql.NullFloat64
	IdealForSap           bool
}

// CalendarDay returns t's calendar date in loc, as midnight UTC.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date as midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
