package weather

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/sapweather/internal/ingest"
	"github.com/lox/sapweather/internal/metrics"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/store"
)

const (
	// HistoricalMaxAge applies to any date strictly before today.
	HistoricalMaxAge = 24 * time.Hour
	// NearTermMaxAge applies to today and future dates, whose forecasts change.
	NearTermMaxAge = time.Hour

	lookupConcurrency = 8
)

// Store is the durable key/value side of the cache.
type Store interface {
	GetWeather(ctx context.Context, lat, lng float64, date time.Time) (*store.CachedWeather, error)
	PutWeather(ctx context.Context, lat, lng float64, r models.DailyWeatherRecord, fetchedAt time.Time) error
}

// Fetcher obtains missing days from upstream.
type Fetcher interface {
	FetchDates(ctx context.Context, lat, lng float64, dates []time.Time) ingest.FetchOutcome
}

// RangeResult is a range read: records sorted by date plus any upstream
// windows that could not be filled.
type RangeResult struct {
	Records []models.DailyWeatherRecord
	Failed  []ingest.FailedWindow
	Hits    int
	Fetched int
}

// Cache serves daily weather from the store, refilling stale or missing days.
type Cache struct {
	store   Store
	fetcher Fetcher
	loc     *time.Location
	now     func() time.Time
}

func NewCache(st Store, fetcher Fetcher, loc *time.Location) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{store: st, fetcher: fetcher, loc: loc, now: time.Now}
}

// SetClock overrides the cache's notion of now.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// RoundCoord rounds a coordinate to two decimals so nearby requests share a
// cache slot.
func RoundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}

// Today is the current calendar day in the cache's location.
func (c *Cache) Today() time.Time {
	return models.CalendarDay(c.now(), c.loc)
}

// MaxAge is the freshness window for a cached date.
func (c *Cache) MaxAge(date time.Time) time.Duration {
	if date.Before(c.Today()) {
		return HistoricalMaxAge
	}
	return NearTermMaxAge
}

// Get returns a fresh cached record, or nil when missing or expired.
func (c *Cache) Get(ctx context.Context, lat, lng float64, date time.Time) (*models.DailyWeatherRecord, error) {
	cached, err := c.store.GetWeather(ctx, RoundCoord(lat), RoundCoord(lng), date)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		metrics.WeatherCacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if c.now().Sub(cached.FetchedAt) > c.MaxAge(date) {
		metrics.WeatherCacheLookups.WithLabelValues("stale").Inc()
		return nil, nil
	}
	metrics.WeatherCacheLookups.WithLabelValues("hit").Inc()
	rec := cached.Record
	return &rec, nil
}

// Put writes a record under its rounded coordinate and date.
func (c *Cache) Put(ctx context.Context, lat, lng float64, r models.DailyWeatherRecord) error {
	fetchedAt := r.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = c.now()
	}
	return c.store.PutWeather(ctx, RoundCoord(lat), RoundCoord(lng), r, fetchedAt)
}

// Range returns records for every date in [start, end] that could be served
// from cache or upstream. Dates that are neither cached nor fetchable are
// absent from the result rather than imputed.
func (c *Cache) Range(ctx context.Context, lat, lng float64, start, end time.Time) RangeResult {
	dates := daysBetween(start, end)
	found := make([]*models.DailyWeatherRecord, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, d := range dates {
		i, d := i, d
		g.Go(func() error {
			rec, err := c.Get(gctx, lat, lng, d)
			if err != nil {
				// Treat an unreadable slot as a miss.
				log.Printf("weather: cache read %s: %v", d.Format(models.DateLayout), err)
				return nil
			}
			found[i] = rec
			return nil
		})
	}
	g.Wait()

	var result RangeResult
	byDay := make(map[string]models.DailyWeatherRecord, len(dates))
	var missing []time.Time
	for i, d := range dates {
		if found[i] != nil {
			byDay[found[i].DayKey()] = *found[i]
			result.Hits++
			continue
		}
		missing = append(missing, d)
	}

	if len(missing) > 0 && c.fetcher != nil {
		outcome := c.fetcher.FetchDates(ctx, lat, lng, missing)
		result.Failed = outcome.Failed
		for _, rec := range outcome.Days {
			// Days outside the requested range are cached too.
			if err := c.Put(ctx, lat, lng, rec); err != nil {
				log.Printf("weather: cache write %s: %v", rec.DayKey(), err)
			}
			if _, ok := byDay[rec.DayKey()]; ok {
				continue
			}
			if rec.Date.Before(start) || rec.Date.After(end) {
				continue
			}
			byDay[rec.DayKey()] = rec
			result.Fetched++
		}
	}

	result.Records = make([]models.DailyWeatherRecord, 0, len(byDay))
	for _, rec := range byDay {
		result.Records = append(result.Records, rec)
	}
	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Date.Before(result.Records[j].Date)
	})
	return result
}

func daysBetween(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
