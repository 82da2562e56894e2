package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lox/sapweather/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CachedWeather is a weather cache row: the record plus when it was fetched.
type CachedWeather struct {
	Record    models.DailyWeatherRecord
	FetchedAt time.Time
}

// GetWeather returns the cached record for (lat, lng, date), or nil if none
// is stored. Coordinates are expected to be rounded by the caller.
func (s *Store) GetWeather(ctx context.Context, lat, lng float64, date time.Time) (*CachedWeather, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, temp_high, temp_low, temp_avg, precipitation, precipitation_hours, humidity, pressure,
			wind_speed, wind_direction, sunshine_hours, solar_radiation, weather_code, source, fetched_at
		FROM weather_cache
		WHERE lat = ? AND lng = ? AND date = ?
	`, lat, lng, date.Format(models.DateLayout))

	var r models.DailyWeatherRecord
	var dateStr string
	var fetchedMs int64
	err := row.Scan(&dateStr, &r.TempHigh, &r.TempLow, &r.TempAvg, &r.Precipitation, &r.PrecipitationHours,
		&r.Humidity, &r.Pressure, &r.WindSpeed, &r.WindDirection, &r.SunshineHours, &r.SolarRadiation,
		&r.WeatherCode, &r.Source, &fetchedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.Date, err = models.ParseDay(dateStr); err != nil {
		return nil, err
	}
	r.FetchedAt = time.UnixMilli(fetchedMs).UTC()
	return &CachedWeather{Record: r, FetchedAt: r.FetchedAt}, nil
}

// PutWeather upserts a record. fetchedAt drives freshness checks on read.
func (s *Store) PutWeather(ctx context.Context, lat, lng float64, r models.DailyWeatherRecord, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_cache (lat, lng, date, temp_high, temp_low, temp_avg, precipitation, precipitation_hours,
			humidity, pressure, wind_speed, wind_direction, sunshine_hours, solar_radiation, weather_code, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lat, lng, date) DO UPDATE SET
			temp_high = excluded.temp_high,
			temp_low = excluded.temp_low,
			temp_avg = excluded.temp_avg,
			precipitation = excluded.precipitation,
			precipitation_hours = excluded.precipitation_hours,
			humidity = excluded.humidity,
			pressure = excluded.pressure,
			wind_speed = excluded.wind_speed,
			wind_direction = excluded.wind_direction,
			sunshine_hours = excluded.sunshine_hours,
			solar_radiation = excluded.solar_radiation,
			weather_code = excluded.weather_code,
			source = excluded.source,
			fetched_at = excluded.fetched_at
	`, lat, lng, r.DayKey(), r.TempHigh, r.TempLow, r.TempAvg, r.Precipitation, r.PrecipitationHours,
		r.Humidity, r.Pressure, r.WindSpeed, r.WindDirection, r.SunshineHours, r.SolarRadiation,
		r.WeatherCode, r.Source, fetchedAt.UnixMilli())
	return err
}

// PruneWeather deletes cache rows fetched before the given time.
func (s *Store) PruneWeather(ctx context.Context, fetchedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM weather_cache WHERE fetched_at < ?`, fetchedBefore.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
