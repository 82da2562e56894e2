package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/lox/sapweather/internal/models"
)

const (
	DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

	// DefaultRetryDelay is the pause before the single retry after a 429.
	DefaultRetryDelay = 2500 * time.Millisecond
)

// ArchiveClient fetches explicit date windows from the long-range archive.
type ArchiveClient struct {
	baseURL    string
	client     *http.Client
	circuit    *gobreaker.CircuitBreaker
	retryDelay time.Duration
	now        func() time.Time
}

func NewArchiveClient(baseURL string, client *http.Client, retryDelay time.Duration) *ArchiveClient {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &ArchiveClient{
		baseURL:    baseURL,
		client:     client,
		circuit:    newBreaker(models.SourceArchive),
		retryDelay: retryDelay,
		now:        time.Now,
	}
}

// FetchRange returns daily records for [start, end]. A rate-limit response is
// retried exactly once after the retry delay; anything else fails immediately.
func (a *ArchiveClient) FetchRange(ctx context.Context, lat, lng float64, start, end time.Time) ([]models.DailyWeatherRecord, error) {
	q := baseQuery(lat, lng)
	q.Set("start_date", start.Format(models.DateLayout))
	q.Set("end_date", end.Format(models.DateLayout))
	u := a.baseURL + "?" + q.Encode()

	var data *openMeteoResponse
	operation := func() error {
		var err error
		data, err = getJSON(ctx, a.client, a.circuit, models.SourceArchive, u)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRateLimited) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryDelay), 1), ctx)
	notify := func(err error, d time.Duration) {
		log.Printf("ingest: archive %s..%s rate limited, retrying in %s", start.Format(models.DateLayout), end.Format(models.DateLayout), d)
	}
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		return nil, fmt.Errorf("fetch archive: %w", err)
	}

	records, err := data.toRecords(models.SourceArchive, a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	return records, nil
}
