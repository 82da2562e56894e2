package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lox/sapweather/internal/models"
)

const DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

// ForecastClient fetches a rolling window of recent past days plus forecast
// days from the near-term provider.
type ForecastClient struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewForecastClient(baseURL string, client *http.Client) *ForecastClient {
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	return &ForecastClient{
		baseURL: baseURL,
		client:  client,
		circuit: newBreaker(models.SourceForecast),
		now:     time.Now,
	}
}

func (f *ForecastClient) FetchRecent(ctx context.Context, lat, lng float64, pastDays, forecastDays int) ([]models.DailyWeatherRecord, error) {
	q := baseQuery(lat, lng)
	q.Set("past_days", strconv.Itoa(pastDays))
	q.Set("forecast_days", strconv.Itoa(forecastDays))

	data, err := getJSON(ctx, f.client, f.circuit, models.SourceForecast, f.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	records, err := data.toRecords(models.SourceForecast, f.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("parse forecast: %w", err)
	}
	return records, nil
}
