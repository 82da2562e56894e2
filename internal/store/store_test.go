package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/sapweather/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestPutAndGetWeather(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fetchedAt := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	rec := models.DailyWeatherRecord{
		Date:          date,
		TempHigh:      sql.NullFloat64{Float64: 45.2, Valid: true},
		TempLow:       sql.NullFloat64{Float64: 24.8, Valid: true},
		TempAvg:       sql.NullFloat64{Float64: 35, Valid: true},
		Humidity:      sql.NullFloat64{Float64: 71.5, Valid: true},
		SunshineHours: sql.NullFloat64{Float64: 6.2, Valid: true},
		WeatherCode:   sql.NullInt64{Int64: 3, Valid: true},
		Source:        models.SourceArchive,
	}

	if err := store.PutWeather(ctx, 44.26, -72.58, rec, fetchedAt); err != nil {
		t.Fatalf("PutWeather: %v", err)
	}

	got, err := store.GetWeather(ctx, 44.26, -72.58, date)
	if err != nil {
		t.Fatalf("GetWeather: %v", err)
	}
	if got == nil {
		t.Fatal("GetWeather returned nil")
	}
	if !got.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, fetchedAt)
	}
	if got.Record.TempHigh != rec.TempHigh || got.Record.TempLow != rec.TempLow {
		t.Errorf("temps = %+v/%+v, want %+v/%+v", got.Record.TempHigh, got.Record.TempLow, rec.TempHigh, rec.TempLow)
	}
	if got.Record.Precipitation.Valid {
		t.Error("Precipitation should stay null")
	}
	if got.Record.WeatherCode != rec.WeatherCode {
		t.Errorf("WeatherCode = %+v, want %+v", got.Record.WeatherCode, rec.WeatherCode)
	}
	if got.Record.Source != models.SourceArchive {
		t.Errorf("Source = %q, want archive", got.Record.Source)
	}
	if !got.Record.Date.Equal(date) {
		t.Errorf("Date = %v, want %v", got.Record.Date, date)
	}
}

func TestGetWeather_Miss(t *testing.T) {
	store := setupTestStore(t)
	got, err := store.GetWeather(context.Background(), 1, 2, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetWeather: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestPutWeather_Overwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := models.DailyWeatherRecord{Date: date, TempHigh: sql.NullFloat64{Float64: 40, Valid: true}}
	second := models.DailyWeatherRecord{Date: date, TempHigh: sql.NullFloat64{Float64: 42, Valid: true}}
	if err := store.PutWeather(ctx, 1, 2, first, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := store.PutWeather(ctx, 1, 2, second, time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetWeather(ctx, 1, 2, date)
	if err != nil {
		t.Fatal(err)
	}
	if got.Record.TempHigh.Float64 != 42 {
		t.Errorf("TempHigh = %v, want 42", got.Record.TempHigh.Float64)
	}
}

func TestPruneWeather(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldDay := models.DailyWeatherRecord{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newDay := models.DailyWeatherRecord{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}
	if err := store.PutWeather(ctx, 1, 2, oldDay, now.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.PutWeather(ctx, 1, 2, newDay, now); err != nil {
		t.Fatal(err)
	}

	n, err := store.PruneWeather(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneWeather: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}

func TestYieldRecordsAndTaps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []models.YieldRecord{{Date: d1, Volume: 10}, {Date: d2, Volume: 4}, {Date: d1, Volume: 2.5}} {
		if err := store.InsertYieldEntry(ctx, "s1", r); err != nil {
			t.Fatalf("InsertYieldEntry: %v", err)
		}
	}
	if err := store.InsertYieldEntry(ctx, "other", models.YieldRecord{Date: d1, Volume: 99}); err != nil {
		t.Fatal(err)
	}

	records, err := store.YieldRecordsBySeason(ctx, "s1")
	if err != nil {
		t.Fatalf("YieldRecordsBySeason: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if !records[0].Date.Equal(d2) {
		t.Errorf("first date = %v, want %v", records[0].Date, d2)
	}

	if err := store.UpsertZone(ctx, "s1", "north", 120); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertZone(ctx, "s1", "south", 80); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertZone(ctx, "s1", "south", 30); err != nil {
		t.Fatal(err)
	}

	taps, err := store.TapCountBySeason(ctx, "s1")
	if err != nil {
		t.Fatalf("TapCountBySeason: %v", err)
	}
	if taps != 150 {
		t.Errorf("taps = %d, want 150", taps)
	}

	none, err := store.TapCountBySeason(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if none != 0 {
		t.Errorf("taps for missing season = %d, want 0", none)
	}
}
