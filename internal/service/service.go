// Package service exposes the engine's operations: legacy and detailed
// correlation, regression predictions, and the traditional baseline.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lox/sapweather/internal/correlation"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/predict"
	"github.com/lox/sapweather/internal/stats"
	"github.com/lox/sapweather/internal/units"
	"github.com/lox/sapweather/internal/weather"
)

// YieldSource is the record-keeping side the engine reads seasons from.
type YieldSource interface {
	YieldRecordsBySeason(ctx context.Context, seasonID string) ([]models.YieldRecord, error)
	TapCountBySeason(ctx context.Context, seasonID string) (int, error)
}

// WeatherCache is the weather cache as used by the service.
type WeatherCache interface {
	correlation.WeatherRange
	Today() time.Time
}

type Service struct {
	yields    YieldSource
	weather   WeatherCache
	engine    *correlation.Engine
	coalescer *correlation.Coalescer
}

// New wires a service around a weather cache. Each service owns its own
// coalescer, so separate instances never share results.
func New(yields YieldSource, wc WeatherCache, ttl time.Duration) *Service {
	return &Service{
		yields:    yields,
		weather:   wc,
		engine:    correlation.NewEngine(wc),
		coalescer: correlation.NewCoalescer(ttl),
	}
}

// Coalescer exposes the correlation result cache.
func (s *Service) Coalescer() *correlation.Coalescer {
	return s.coalescer
}

type LegacyCorrelation struct {
	Data           []models.CorrelationDatum
	Correlation    models.FactorCorrelation
	IdealDaysCount int
	TotalDays      int
	TotalTaps      int
}

// GetWeatherCorrelation is the single-factor view: temperature delta
// against volume.
func (s *Service) GetWeatherCorrelation(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit) (*LegacyCorrelation, error) {
	res, err := s.GetDetailedWeatherCorrelation(ctx, seasonID, lat, lng, unit)
	if err != nil {
		return nil, err
	}
	return &LegacyCorrelation{
		Data:           res.Data,
		Correlation:    res.Legacy(),
		IdealDaysCount: res.IdealDaysCount,
		TotalDays:      res.TotalDays,
		TotalTaps:      res.TotalTaps,
	}, nil
}

// GetDetailedWeatherCorrelation returns every factor's correlation for the
// season at lat/lng. Concurrent and repeated calls for the same key within
// the coalescer's TTL share one computation.
func (s *Service) GetDetailedWeatherCorrelation(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit) (*correlation.Result, error) {
	key := correlation.Key{
		SeasonID: seasonID,
		Lat:      weather.RoundCoord(lat),
		Lng:      weather.RoundCoord(lng),
		Unit:     unit,
	}
	// The shared computation outlives any one caller's cancellation.
	cctx := context.WithoutCancel(ctx)
	return s.coalescer.Do(key, func() (*correlation.Result, error) {
		return s.analyze(cctx, seasonID, lat, lng, unit)
	})
}

func (s *Service) analyze(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit) (*correlation.Result, error) {
	records, err := s.yields.YieldRecordsBySeason(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("yield records for season %s: %w", seasonID, err)
	}
	taps, err := s.yields.TapCountBySeason(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("tap count for season %s: %w", seasonID, err)
	}

	res := s.engine.Analyze(ctx, lat, lng, unit, records, taps)
	for _, f := range res.Failed {
		log.Printf("service: season %s: %s weather %s..%s unavailable: %v",
			seasonID, f.Source, f.Start.Format(models.DateLayout), f.End.Format(models.DateLayout), f.Err)
	}
	return res, nil
}

// forecast returns the next week of weather in unit.
func (s *Service) forecast(ctx context.Context, lat, lng float64, unit models.Unit) []models.DailyWeatherRecord {
	start, end := predict.ForecastWindow(s.weather.Today())
	wr := s.weather.Range(ctx, lat, lng, start, end)
	for _, f := range wr.Failed {
		log.Printf("service: forecast %s..%s unavailable: %v",
			f.Start.Format(models.DateLayout), f.End.Format(models.DateLayout), f.Err)
	}
	return units.ConvertRecords(wr.Records, unit)
}

// GetFlowPredictions fits the regression model and projects the next week.
// A precomputed correlation result for the same season, location and unit
// may be passed to skip recomputing it. Failures reading the season are
// reported as insufficient data.
func (s *Service) GetFlowPredictions(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit, precomputed *correlation.Result) *predict.Regression {
	res, ok := s.resolve(ctx, seasonID, lat, lng, unit, precomputed)
	if !ok {
		return &predict.Regression{Predictions: []models.PredictionPoint{}, InsufficientData: true}
	}
	if len(res.Data) < stats.MinSamples {
		return predict.Regress(res, nil)
	}
	return predict.Regress(res, s.forecast(ctx, lat, lng, unit))
}

// GetTraditionalFlowPredictions applies the freeze/thaw baseline.
func (s *Service) GetTraditionalFlowPredictions(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit, precomputed *correlation.Result) *predict.Baseline {
	res, ok := s.resolve(ctx, seasonID, lat, lng, unit, precomputed)
	if !ok {
		res = &correlation.Result{Unit: unit}
	}
	return predict.Traditional(res, s.forecast(ctx, lat, lng, unit))
}

func (s *Service) resolve(ctx context.Context, seasonID string, lat, lng float64, unit models.Unit, precomputed *correlation.Result) (*correlation.Result, bool) {
	if precomputed != nil && precomputed.Unit == unit {
		return precomputed, true
	}
	res, err := s.GetDetailedWeatherCorrelation(ctx, seasonID, lat, lng, unit)
	if err != nil {
		log.Printf("service: season %s: %v", seasonID, err)
		return nil, false
	}
	return res, true
}
