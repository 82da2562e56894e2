package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lox/sapweather/internal/metrics"
	"github.com/lox/sapweather/internal/models"
)

var (
	ErrRateLimited = errors.New("rate limited")
	errCircuitOpen = errors.New("circuit breaker open")
)

// StatusError is returned for non-200 upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

var dailyFields = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"precipitation_hours",
	"wind_speed_10m_max",
	"wind_direction_10m_dominant",
	"sunshine_duration",
	"shortwave_radiation_sum",
	"weather_code",
}

var hourlyFields = []string{
	"relative_humidity_2m",
	"surface_pressure",
}

type openMeteoResponse struct {
	Daily struct {
		Time               []string   `json:"time"`
		TempMax            []*float64 `json:"temperature_2m_max"`
		TempMin            []*float64 `json:"temperature_2m_min"`
		PrecipSum          []*float64 `json:"precipitation_sum"`
		PrecipHours        []*float64 `json:"precipitation_hours"`
		WindSpeedMax       []*float64 `json:"wind_speed_10m_max"`
		WindDirection      []*float64 `json:"wind_direction_10m_dominant"`
		SunshineDuration   []*float64 `json:"sunshine_duration"`
		ShortwaveRadiation []*float64 `json:"shortwave_radiation_sum"`
		WeatherCode        []*float64 `json:"weather_code"`
	} `json:"daily"`
	Hourly struct {
		Time             []string   `json:"time"`
		RelativeHumidity []*float64 `json:"relative_humidity_2m"`
		SurfacePressure  []*float64 `json:"surface_pressure"`
	} `json:"hourly"`
}

// baseQuery sets the parameters shared by forecast and archive requests.
// Everything is requested in imperial units; conversion happens later.
func baseQuery(lat, lng float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', 4, 64))
	q.Set("daily", strings.Join(dailyFields, ","))
	q.Set("hourly", strings.Join(hourlyFields, ","))
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("precipitation_unit", "inch")
	q.Set("timezone", "auto")
	return q
}

// getJSON performs a GET through the provider's circuit breaker and decodes
// the Open-Meteo payload.
func getJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, provider, u string) (*openMeteoResponse, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	result, err := cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			metrics.UpstreamCallsTotal.WithLabelValues(provider, "error").Inc()
			return nil, fmt.Errorf("fetch %s: %w", provider, err)
		}
		defer resp.Body.Close()

		metrics.UpstreamCallsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		}

		var data openMeteoResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return &data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", provider, errCircuitOpen, err)
		}
		return nil, err
	}
	return result.(*openMeteoResponse), nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// toRecords normalizes an Open-Meteo payload into one record per day.
func (data *openMeteoResponse) toRecords(source string, fetchedAt time.Time) ([]models.DailyWeatherRecord, error) {
	days := len(data.Daily.Time)
	humidity := DailyAverages(data.Hourly.RelativeHumidity, days)
	pressure := DailyAverages(data.Hourly.SurfacePressure, days)

	records := make([]models.DailyWeatherRecord, 0, days)
	for i, day := range data.Daily.Time {
		date, err := models.ParseDay(day)
		if err != nil {
			return nil, fmt.Errorf("daily.time[%d]=%q: %w", i, day, err)
		}

		rec := models.DailyWeatherRecord{
			Date:               date,
			TempHigh:           at(data.Daily.TempMax, i),
			TempLow:            at(data.Daily.TempMin, i),
			Precipitation:      at(data.Daily.PrecipSum, i),
			PrecipitationHours: at(data.Daily.PrecipHours, i),
			Humidity:           humidity[i],
			Pressure:           pressure[i],
			WindSpeed:          at(data.Daily.WindSpeedMax, i),
			WindDirection:      at(data.Daily.WindDirection, i),
			SolarRadiation:     at(data.Daily.ShortwaveRadiation, i),
			Source:             source,
			FetchedAt:          fetchedAt,
		}

		// sunshine_duration is reported in seconds
		if s := at(data.Daily.SunshineDuration, i); s.Valid {
			rec.SunshineHours = sql.NullFloat64{Float64: round1(s.Float64 / 3600), Valid: true}
		}
		if c := at(data.Daily.WeatherCode, i); c.Valid {
			rec.WeatherCode = sql.NullInt64{Int64: int64(c.Float64), Valid: true}
		}
		if flags := ValidateRecord(&rec); len(flags) > 0 {
			log.Printf("ingest: %s %s: dropped implausible values %v", source, day, flags)
		}
		if rec.TempHigh.Valid && rec.TempLow.Valid {
			rec.TempAvg = sql.NullFloat64{Float64: round1((rec.TempHigh.Float64 + rec.TempLow.Float64) / 2), Valid: true}
		}

		records = append(records, rec)
	}
	return records, nil
}

func at(values []*float64, i int) sql.NullFloat64 {
	if i >= len(values) || values[i] == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *values[i], Valid: true}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
