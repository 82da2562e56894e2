// Package predict projects the next week of sap flow from a season's
// weather/yield history, either by least-squares regression or by the
// freeze/thaw baseline.
package predict

import (
	"database/sql"
	"log"
	"math"
	"time"

	"github.com/lox/sapweather/internal/correlation"
	"github.com/lox/sapweather/internal/metrics"
	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/stats"
	"github.com/lox/sapweather/internal/units"
)

const (
	// ForecastDays is the length of every projection.
	ForecastDays = 7
	// VarianceTolerance is the variance below which a column is treated as
	// constant and dropped from the full model.
	VarianceTolerance = 1e-10
)

type Regression struct {
	Predictions      []models.PredictionPoint
	ModelQuality     float64
	TotalDays        int
	TotalTaps        int
	FeaturesUsed     []string
	InsufficientData bool
}

// model is a fitted linear model. Columns are centred and scaled by their
// training mean and standard deviation before fitting, which keeps the
// normal-equations matrix well conditioned without changing predictions.
type model struct {
	features []Feature
	means    []float64
	scales   []float64
	beta     []float64
}

func fit(features []Feature, train []sample, y []float64, dropConstant bool) (*model, error) {
	m := &model{}
	var cols [][]float64
	for _, f := range features {
		col, mean := column(f, train)
		v := stats.Variance(col)
		if dropConstant && v < VarianceTolerance {
			continue
		}
		scale := math.Sqrt(v)
		if scale == 0 {
			scale = 1
		}
		m.features = append(m.features, f)
		m.means = append(m.means, mean)
		m.scales = append(m.scales, scale)
		cols = append(cols, col)
	}

	x := stats.NewMatrix(len(train), len(cols)+1)
	for i := range train {
		x[i][0] = 1
		for j, col := range cols {
			x[i][j+1] = (col[i] - m.means[j]) / m.scales[j]
		}
	}

	beta, err := stats.LeastSquares(x, y)
	if err != nil {
		return nil, err
	}
	m.beta = beta
	return m, nil
}

// column extracts f over train, filling missing values with the mean of the
// present ones.
func column(f Feature, train []sample) ([]float64, float64) {
	var present []float64
	for _, s := range train {
		if v := f.Value(s); v.Valid {
			present = append(present, v.Float64)
		}
	}
	mean := stats.Mean(present)

	col := make([]float64, len(train))
	for i, s := range train {
		col[i] = mean
		if v := f.Value(s); v.Valid {
			col[i] = v.Float64
		}
	}
	return col, mean
}

func (m *model) predict(s sample) float64 {
	v := m.beta[0]
	for j, f := range m.features {
		x := m.means[j]
		if fv := f.Value(s); fv.Valid {
			x = fv.Float64
		}
		v += m.beta[j+1] * (x - m.means[j]) / m.scales[j]
	}
	return v
}

func (m *model) names() []string {
	out := make([]string, len(m.features))
	for i, f := range m.features {
		out[i] = f.Name
	}
	return out
}

// Regress fits volume against weather over res.Data and applies the model
// to forecast, which must be in res.Unit. When the full model cannot be
// inverted it falls back to high/low temperature only.
func Regress(res *correlation.Result, forecast []models.DailyWeatherRecord) *Regression {
	out := &Regression{
		Predictions: []models.PredictionPoint{},
		TotalDays:   len(res.Data),
		TotalTaps:   res.TotalTaps,
	}
	if len(res.Data) < stats.MinSamples {
		out.InsufficientData = true
		return out
	}

	train := make([]sample, len(res.Data))
	y := make([]float64, len(res.Data))
	for i, d := range res.Data {
		train[i] = fromDatum(d, res.Unit)
		y[i] = d.Volume
	}

	m, err := fit(SelectFeatures(res.Correlations), train, y, true)
	tier := "full"
	if err != nil {
		log.Printf("predict: full model: %v, falling back to minimal model", err)
		m, err = fit(MinimalFeatures, train, y, false)
		tier = "minimal"
	}
	if err != nil {
		log.Printf("predict: minimal model: %v", err)
		metrics.RegressionFits.WithLabelValues("failed").Inc()
		out.InsufficientData = true
		return out
	}
	metrics.RegressionFits.WithLabelValues(tier).Inc()

	fitted := make([]float64, len(train))
	for i, s := range train {
		fitted[i] = m.predict(s)
	}
	out.ModelQuality = stats.Round(stats.RSquared(y, fitted), 3)
	out.FeaturesUsed = m.names()

	days := window(forecast)
	for i, day := range days {
		var prev *models.DailyWeatherRecord
		if i > 0 && days[i-1].Date.Equal(day.Date.AddDate(0, 0, -1)) {
			prev = &days[i-1]
		}
		volume := stats.Round(math.Max(0, m.predict(fromForecast(day, prev, res.Unit))), 2)
		out.Predictions = append(out.Predictions, point(day, volume, res.TotalTaps, res.Unit))
	}
	return out
}

func window(forecast []models.DailyWeatherRecord) []models.DailyWeatherRecord {
	if len(forecast) > ForecastDays {
		return forecast[:ForecastDays]
	}
	return forecast
}

func point(day models.DailyWeatherRecord, volume float64, taps int, unit models.Unit) models.PredictionPoint {
	p := models.PredictionPoint{
		Date:            day.Date,
		PredictedVolume: volume,
		TempHigh:        day.TempHigh,
		TempLow:         day.TempLow,
		IdealForSap:     units.IsSapFlowIdealNull(day.TempHigh, day.TempLow, unit),
	}
	if taps > 0 {
		p.PredictedVolumePerTap = sql.NullFloat64{Float64: stats.Round(volume/float64(taps), 3), Valid: true}
	}
	return p
}

// ForecastWindow returns the calendar days covered by a projection starting
// on today.
func ForecastWindow(today time.Time) (time.Time, time.Time) {
	return today, today.AddDate(0, 0, ForecastDays-1)
}
