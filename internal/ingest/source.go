package ingest

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/lox/sapweather/internal/models"
)

const (
	// ArchiveCutoffDays is how far back the near-term provider reaches; older
	// dates are archive-only.
	ArchiveCutoffDays = 30
	// RecentPastDays and ForecastDays shape the single near-term request.
	RecentPastDays = 30
	ForecastDays   = 7
)

type NearTermProvider interface {
	FetchRecent(ctx context.Context, lat, lng float64, pastDays, forecastDays int) ([]models.DailyWeatherRecord, error)
}

type ArchiveProvider interface {
	FetchRange(ctx context.Context, lat, lng float64, start, end time.Time) ([]models.DailyWeatherRecord, error)
}

// FailedWindow describes a sub-window whose upstream fetch failed.
type FailedWindow struct {
	Source string
	Start  time.Time
	End    time.Time
	Err    error
}

// FetchOutcome carries whatever days were obtained alongside the windows that
// failed. A failed window never discards days from the other source.
type FetchOutcome struct {
	Days   []models.DailyWeatherRecord
	Failed []FailedWindow
}

// Source routes date requests to the archive or near-term provider.
type Source struct {
	nearTerm NearTermProvider
	archive  ArchiveProvider
	loc      *time.Location
	now      func() time.Time
}

func NewSource(nearTerm NearTermProvider, archive ArchiveProvider, loc *time.Location) *Source {
	if loc == nil {
		loc = time.UTC
	}
	return &Source{nearTerm: nearTerm, archive: archive, loc: loc, now: time.Now}
}

// SetClock overrides the source's notion of now.
func (s *Source) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Source) Today() time.Time {
	return models.CalendarDay(s.now(), s.loc)
}

// Cutoff is the first date served by the near-term provider.
func (s *Source) Cutoff() time.Time {
	return s.Today().AddDate(0, 0, -ArchiveCutoffDays)
}

// IsArchiveDate reports whether date is too old for the near-term window.
func (s *Source) IsArchiveDate(date time.Time) bool {
	return date.Before(s.Cutoff())
}

// FetchDates fetches the given dates, issuing at most one archive call
// spanning the historical dates and one near-term call for the rest. The two
// calls run concurrently and fail independently. Returned days may include
// dates that were not asked for.
func (s *Source) FetchDates(ctx context.Context, lat, lng float64, dates []time.Time) FetchOutcome {
	var historical, recent []time.Time
	for _, d := range dates {
		if s.IsArchiveDate(d) {
			historical = append(historical, d)
		} else {
			recent = append(recent, d)
		}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		outcome FetchOutcome
	)

	collect := func(source string, start, end time.Time, days []models.DailyWeatherRecord, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Printf("ingest: %s fetch %s..%s failed: %v", source, start.Format(models.DateLayout), end.Format(models.DateLayout), err)
			outcome.Failed = append(outcome.Failed, FailedWindow{Source: source, Start: start, End: end, Err: err})
			return
		}
		outcome.Days = append(outcome.Days, days...)
	}

	if len(historical) > 0 && s.archive != nil {
		start, end := span(historical)
		wg.Add(1)
		go func() {
			defer wg.Done()
			days, err := s.archive.FetchRange(ctx, lat, lng, start, end)
			collect(models.SourceArchive, start, end, days, err)
		}()
	}

	if len(recent) > 0 && s.nearTerm != nil {
		start, end := span(recent)
		wg.Add(1)
		go func() {
			defer wg.Done()
			days, err := s.nearTerm.FetchRecent(ctx, lat, lng, RecentPastDays, ForecastDays)
			collect(models.SourceForecast, start, end, days, err)
		}()
	}

	wg.Wait()

	sort.Slice(outcome.Days, func(i, j int) bool {
		return outcome.Days[i].Date.Before(outcome.Days[j].Date)
	})
	sort.Slice(outcome.Failed, func(i, j int) bool {
		return outcome.Failed[i].Start.Before(outcome.Failed[j].Start)
	})
	return outcome
}

func span(dates []time.Time) (time.Time, time.Time) {
	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return lo, hi
}
