package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lox/sapweather/internal/correlation"
	"github.com/lox/sapweather/internal/models"
)

// Target selects a season and the location its weather is read for.
type Target struct {
	Season string  `arg:"" help:"Season ID."`
	Lat    float64 `required:"" help:"Latitude of the sugarbush."`
	Lng    float64 `required:"" help:"Longitude of the sugarbush (use --lng=-72.5)."`
	Unit   string  `help:"Temperature unit (fahrenheit or celsius)." default:"fahrenheit" enum:"fahrenheit,celsius,f,c"`
}

func (t Target) unit() models.Unit {
	return models.ParseUnit(t.Unit)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	v, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("database at schema version %d", v)
	return nil
}

type PruneCmd struct {
	OlderThan time.Duration `help:"Delete cache rows fetched longer ago than this." default:"720h"`
}

func (c *PruneCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := st.PruneWeather(context.Background(), time.Now().Add(-c.OlderThan))
	if err != nil {
		return fmt.Errorf("prune weather cache: %w", err)
	}
	log.Printf("pruned %d cached weather rows", n)
	return nil
}

type ImportYieldCmd struct {
	File string `arg:"" help:"CSV file with season,date,volume rows." type:"existingfile"`
	Taps int    `help:"Tap count to record for each imported season." default:"0"`
	Zone string `help:"Zone the tap count is recorded under." default:"main"`
}

func (c *ImportYieldCmd) Run(g *Globals) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true

	seasons := make(map[string]int)
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("%s: %w", c.File, err)
		}
		if line == 1 && strings.EqualFold(rec[0], "season") {
			continue
		}

		date, err := models.ParseDay(rec[1])
		if err != nil {
			return fmt.Errorf("%s line %d: date %q: %w", c.File, line, rec[1], err)
		}
		volume, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return fmt.Errorf("%s line %d: volume %q: %w", c.File, line, rec[2], err)
		}
		if err := st.InsertYieldEntry(ctx, rec[0], models.YieldRecord{Date: date, Volume: volume}); err != nil {
			return fmt.Errorf("insert yield entry: %w", err)
		}
		seasons[rec[0]]++
	}

	for season, n := range seasons {
		if c.Taps > 0 {
			if err := st.UpsertZone(ctx, season, c.Zone, c.Taps); err != nil {
				return fmt.Errorf("upsert zone: %w", err)
			}
		}
		log.Printf("imported %d entries for season %s", n, season)
	}
	return nil
}

type CorrelateCmd struct {
	Target
}

func (c *CorrelateCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := g.newService(st).GetWeatherCorrelation(context.Background(), c.Season, c.Lat, c.Lng, c.unit())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tVOLUME\tPER TAP\tHIGH\tLOW\tDELTA\tIDEAL")
	for _, d := range res.Data {
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\t%s\t%v\n",
			d.Date.Format(models.DateLayout), d.Volume, fmtNull(d.VolumePerTap, 3),
			fmtNull(d.TempHigh, 1), fmtNull(d.TempLow, 1), fmtNull(d.TempDelta, 1), d.IdealConditions)
	}
	w.Flush()

	fmt.Printf("\ntemperature swing vs volume: r=%s (%s, n=%d)\n",
		fmtNull(res.Correlation.Coefficient, 2), res.Correlation.Strength, res.Correlation.SampleSize)
	fmt.Printf("days: %d  ideal days: %d  taps: %d\n", res.TotalDays, res.IdealDaysCount, res.TotalTaps)
	return nil
}

type InsightsCmd struct {
	Target
}

func (c *InsightsCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := g.newService(st).GetDetailedWeatherCorrelation(context.Background(), c.Season, c.Lat, c.Lng, c.unit())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACTOR\tR\tSTRENGTH\tN")
	for _, f := range correlation.Factors {
		fc := res.Correlations[f.Name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", f.Name, fmtNull(fc.Coefficient, 2), fc.Strength, fc.SampleSize)
	}
	w.Flush()

	fmt.Printf("\ndays: %d  ideal days: %d  taps: %d\n", res.TotalDays, res.IdealDaysCount, res.TotalTaps)
	for _, f := range res.Failed {
		fmt.Printf("missing %s weather %s..%s\n", f.Source, f.Start.Format(models.DateLayout), f.End.Format(models.DateLayout))
	}
	if len(res.Insights) > 0 {
		fmt.Println()
	}
	for _, in := range res.Insights {
		fmt.Printf("- %s (r=%.2f)\n", in.Message, in.Coefficient)
	}
	return nil
}

type PredictCmd struct {
	Target
}

func (c *PredictCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	p := g.newService(st).GetFlowPredictions(context.Background(), c.Season, c.Lat, c.Lng, c.unit(), nil)
	if p.InsufficientData {
		fmt.Printf("insufficient data for a regression model (%d days)\n", p.TotalDays)
		return nil
	}

	printPredictions(p.Predictions)
	fmt.Printf("\nmodel quality (R²): %.3f\n", p.ModelQuality)
	fmt.Printf("features: %s\n", strings.Join(p.FeaturesUsed, ", "))
	fmt.Printf("days: %d  taps: %d\n", p.TotalDays, p.TotalTaps)
	return nil
}

type BaselineCmd struct {
	Target
}

func (c *BaselineCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	b := g.newService(st).GetTraditionalFlowPredictions(context.Background(), c.Season, c.Lat, c.Lng, c.unit(), nil)
	if b.InsufficientData {
		fmt.Printf("insufficient data for the %s method (%d days)\n", b.Method, b.TotalDays)
		return nil
	}

	printPredictions(b.Predictions)
	fmt.Printf("\n%s: %s\n", b.Method, b.Description)
	fmt.Printf("average ideal-day volume: %s\n", fmtNull(b.AverageIdealVolume, 2))
	fmt.Printf("days: %d  taps: %d\n", b.TotalDays, b.TotalTaps)
	return nil
}

func printPredictions(points []models.PredictionPoint) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tVOLUME\tPER TAP\tHIGH\tLOW\tIDEAL")
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\t%v\n",
			p.Date.Format(models.DateLayout), p.PredictedVolume, fmtNull(p.PredictedVolumePerTap, 3),
			fmtNull(p.TempHigh, 1), fmtNull(p.TempLow, 1), p.IdealForSap)
	}
	w.Flush()
}

func fmtNull(v sql.NullFloat64, places int) string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatFloat(v.Float64, 'f', places, 64)
}
