package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	_ "modernc.org/sqlite"

	"github.com/lox/sapweather/internal/httputil"
	"github.com/lox/sapweather/internal/ingest"
	"github.com/lox/sapweather/internal/service"
	"github.com/lox/sapweather/internal/store"
	"github.com/lox/sapweather/internal/weather"
)

type Globals struct {
	DB                string        `help:"Path to SQLite database." default:"data/sapweather.db" env:"SAPWEATHER_DB" type:"path"`
	Timezone          string        `help:"Timezone that defines calendar days." default:"America/New_York" env:"SAPWEATHER_TZ"`
	ForecastURL       string        `help:"Near-term forecast API endpoint." default:"${forecast_url}" env:"SAPWEATHER_FORECAST_URL"`
	ArchiveURL        string        `help:"Historical archive API endpoint." default:"${archive_url}" env:"SAPWEATHER_ARCHIVE_URL"`
	HTTPTimeout       time.Duration `help:"Timeout for weather API requests." default:"30s" env:"SAPWEATHER_HTTP_TIMEOUT"`
	CorrelationTTL    time.Duration `help:"How long a correlation result is reused." default:"90s" env:"SAPWEATHER_CORRELATION_TTL"`
	ArchiveRetryDelay time.Duration `help:"Pause before retrying a rate-limited archive request." default:"2.5s" env:"SAPWEATHER_ARCHIVE_RETRY_DELAY"`
	Metrics           bool          `help:"Print collected metrics on exit." env:"SAPWEATHER_METRICS"`
}

type CLI struct {
	Globals

	Migrate     MigrateCmd     `cmd:"" help:"Create or upgrade the database schema."`
	Prune       PruneCmd       `cmd:"" help:"Delete cached weather older than a given age."`
	ImportYield ImportYieldCmd `cmd:"" name:"import-yield" help:"Load season collection entries from CSV."`
	Correlate   CorrelateCmd   `cmd:"" help:"Correlate temperature swing against daily volume."`
	Insights    InsightsCmd    `cmd:"" help:"Correlate every weather factor and summarise the strongest."`
	Predict     PredictCmd     `cmd:"" help:"Project the next week of sap flow by regression."`
	Baseline    BaselineCmd    `cmd:"" help:"Project the next week of sap flow by the freeze/thaw rule."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sapweather"),
		kong.Description("Correlate maple sap yield with weather and forecast upcoming flow."),
		kong.UsageOnError(),
		kong.Vars{
			"forecast_url": ingest.DefaultForecastURL,
			"archive_url":  ingest.DefaultArchiveURL,
		},
	)

	err := ctx.Run(&cli.Globals)
	if cli.Metrics {
		if merr := dumpMetrics(os.Stderr); merr != nil {
			log.Printf("metrics: %v", merr)
		}
	}
	ctx.FatalIfErrorf(err)
}

func (g *Globals) openStore() (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", g.Timezone, err)
		return time.UTC
	}
	return loc
}

func (g *Globals) newService(st *store.Store) *service.Service {
	loc := g.location()
	client := httputil.NewClient(g.HTTPTimeout)
	src := ingest.NewSource(
		ingest.NewForecastClient(g.ForecastURL, client),
		ingest.NewArchiveClient(g.ArchiveURL, client, g.ArchiveRetryDelay),
		loc,
	)
	return service.New(st, weather.NewCache(st, src, loc), g.CorrelationTTL)
}

func dumpMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "sapweather_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%.3fs\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
