package correlation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/weather"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func wx(n int, high, low float64) models.DailyWeatherRecord {
	return models.DailyWeatherRecord{Date: day(n), TempHigh: nf(high), TempLow: nf(low)}
}

type fakeWeather struct {
	records    []models.DailyWeatherRecord
	start, end time.Time
	calls      int
}

func (f *fakeWeather) Range(ctx context.Context, lat, lng float64, start, end time.Time) weather.RangeResult {
	f.calls++
	f.start, f.end = start, end
	var out []models.DailyWeatherRecord
	for _, r := range f.records {
		if !r.Date.Before(start) && !r.Date.After(end) {
			out = append(out, r)
		}
	}
	return weather.RangeResult{Records: out}
}

func TestAggregate(t *testing.T) {
	records := []models.YieldRecord{
		{Date: day(2), Volume: 5},
		{Date: day(0), Volume: 3},
		{Date: day(2).Add(9 * time.Hour), Volume: 2.5},
	}
	aggs := Aggregate(records)
	if len(aggs) != 2 {
		t.Fatalf("len = %d, want 2", len(aggs))
	}
	if !aggs[0].Date.Equal(day(0)) || aggs[0].Volume != 3 {
		t.Errorf("aggs[0] = %+v", aggs[0])
	}
	if !aggs[1].Date.Equal(day(2)) || aggs[1].Volume != 7.5 {
		t.Errorf("aggs[1] = %+v", aggs[1])
	}
}

func TestJoin_LagsAndExclusion(t *testing.T) {
	aggs := []models.YieldAggregate{
		{Date: day(2), Volume: 10},
		{Date: day(3), Volume: 12},
		{Date: day(5), Volume: 8}, // no weather for day 5
	}
	records := []models.DailyWeatherRecord{
		wx(0, 38, 20),
		wx(1, 45, 25),
		wx(2, 50, 28),
		wx(3, 52, 35),
	}

	data := Join(aggs, records, models.Fahrenheit, 200)
	if len(data) != 2 {
		t.Fatalf("len(data) = %d, want 2 (day 5 excluded)", len(data))
	}

	d := data[0]
	if d.TempDelta.Float64 != 22 {
		t.Errorf("TempDelta = %v, want 22", d.TempDelta.Float64)
	}
	if !d.IdealConditions {
		t.Error("day 2 should be ideal (50/28)")
	}
	if d.PrevDayTempHigh.Float64 != 45 || d.PrevDayTempDelta.Float64 != 20 {
		t.Errorf("prev day = %+v / %+v", d.PrevDayTempHigh, d.PrevDayTempDelta)
	}
	if !d.PrevDayIdealConditions.Valid || !d.PrevDayIdealConditions.Bool {
		t.Errorf("PrevDayIdealConditions = %+v, want true", d.PrevDayIdealConditions)
	}
	if d.TwoDaysAgoTempHigh.Float64 != 38 || d.TwoDaysAgoTempLow.Float64 != 20 {
		t.Errorf("two days ago = %+v / %+v", d.TwoDaysAgoTempHigh, d.TwoDaysAgoTempLow)
	}
	if d.VolumePerTap.Float64 != 0.05 {
		t.Errorf("VolumePerTap = %v, want 0.05", d.VolumePerTap.Float64)
	}

	if data[1].IdealConditions {
		t.Error("day 3 should not be ideal (low 35)")
	}

	noTaps := Join(aggs, records, models.Fahrenheit, 0)
	if noTaps[0].VolumePerTap.Valid {
		t.Error("VolumePerTap should be null without a tap count")
	}
}

func TestEngine_AnalyzeFetchesLagWindow(t *testing.T) {
	fw := &fakeWeather{}
	for i := -2; i < 10; i++ {
		high := 40.0 + float64(i)
		fw.records = append(fw.records, wx(i, high, 22))
	}
	var records []models.YieldRecord
	for i := 0; i < 8; i++ {
		records = append(records, models.YieldRecord{Date: day(i), Volume: 5 + 2*float64(i)})
	}

	res := NewEngine(fw).Analyze(context.Background(), 44.26, -72.58, models.Fahrenheit, records, 0)

	if !fw.start.Equal(day(-2)) || !fw.end.Equal(day(7)) {
		t.Errorf("weather window = %s..%s, want %s..%s", fw.start, fw.end, day(-2), day(7))
	}
	if res.TotalDays != 8 {
		t.Errorf("TotalDays = %d, want 8", res.TotalDays)
	}
	if !res.Data[0].PrevDayTempHigh.Valid || !res.Data[0].TwoDaysAgoTempHigh.Valid {
		t.Error("earliest datum should carry lag features")
	}
	// Day 0 high is 40, not above the thaw threshold.
	if res.IdealDaysCount != 7 {
		t.Errorf("IdealDaysCount = %d, want 7", res.IdealDaysCount)
	}

	high := res.Correlations[FactorTempHigh]
	if !high.Coefficient.Valid || high.Coefficient.Float64 != 1 || high.Strength != models.StrengthStrong {
		t.Errorf("tempHigh correlation = %+v, want r=1 strong", high)
	}
	low := res.Correlations[FactorTempLow]
	if low.Coefficient.Valid || low.Strength != models.StrengthNone {
		t.Errorf("constant tempLow correlation = %+v, want null/none", low)
	}
	if precip := res.Correlations[FactorPrecipitation]; precip.SampleSize != 0 {
		t.Errorf("precipitation sample size = %d, want 0", precip.SampleSize)
	}
	if res.Legacy() != res.Correlations[FactorTempDelta] {
		t.Error("Legacy should be the temperature delta correlation")
	}
	if len(res.Insights) == 0 || res.Insights[0].Factor != FactorTempDelta && res.Insights[0].Factor != FactorTempHigh {
		t.Errorf("Insights = %+v, want temperature factors first", res.Insights)
	}
}

func TestEngine_AnalyzeCelsius(t *testing.T) {
	fw := &fakeWeather{records: []models.DailyWeatherRecord{wx(0, 50, 20)}}
	records := []models.YieldRecord{{Date: day(0), Volume: 4}}

	res := NewEngine(fw).Analyze(context.Background(), 1, 2, models.Celsius, records, 0)
	if len(res.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(res.Data))
	}
	d := res.Data[0]
	if d.TempHigh.Float64 != 10 || d.TempLow.Float64 != -6.7 {
		t.Errorf("temps = %v/%v, want 10/-6.7", d.TempHigh.Float64, d.TempLow.Float64)
	}
	if !d.IdealConditions {
		t.Error("10/-6.7 °C should be ideal")
	}
	if res.Unit != models.Celsius {
		t.Errorf("Unit = %s, want celsius", res.Unit)
	}
}

func TestEngine_AnalyzeNoRecords(t *testing.T) {
	fw := &fakeWeather{}
	res := NewEngine(fw).Analyze(context.Background(), 1, 2, models.Fahrenheit, nil, 10)
	if fw.calls != 0 {
		t.Errorf("weather calls = %d, want 0", fw.calls)
	}
	if res.TotalDays != 0 || res.TotalTaps != 10 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Correlations) != len(Factors) {
		t.Errorf("len(Correlations) = %d, want %d", len(res.Correlations), len(Factors))
	}
}

func TestInsights_SortedAndFiltered(t *testing.T) {
	correlations := map[string]models.FactorCorrelation{
		FactorTempDelta:     {Coefficient: nf(0.45), Strength: models.StrengthModerate, SampleSize: 10},
		FactorPressure:      {Coefficient: nf(-0.81), Strength: models.StrengthStrong, SampleSize: 10},
		FactorHumidity:      {Coefficient: nf(0.2), Strength: models.StrengthWeak, SampleSize: 10},
		FactorSunshineHours: {Strength: models.StrengthNone, SampleSize: 2},
	}

	insights := Insights(correlations)
	if len(insights) != 2 {
		t.Fatalf("len(insights) = %d, want 2", len(insights))
	}
	if insights[0].Factor != FactorPressure || insights[1].Factor != FactorTempDelta {
		t.Errorf("order = %s, %s; want pressure, tempDelta", insights[0].Factor, insights[1].Factor)
	}
	if insights[0].Message != insightMessages[insightKey{FactorPressure, false}] {
		t.Errorf("pressure message = %q, want negative-pressure message", insights[0].Message)
	}
}

func TestInsightMessages_CoverEveryFactor(t *testing.T) {
	for _, f := range Factors {
		for _, positive := range []bool{true, false} {
			if _, ok := insightMessages[insightKey{f.Name, positive}]; !ok {
				t.Errorf("no insight for %s positive=%v", f.Name, positive)
			}
		}
	}
}
