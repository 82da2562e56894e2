package correlation

import (
	"database/sql"
	"math"
	"sort"

	"github.com/lox/sapweather/internal/models"
	"github.com/lox/sapweather/internal/stats"
)

const (
	FactorTempDelta        = "tempDelta"
	FactorTempHigh         = "tempHigh"
	FactorTempLow          = "tempLow"
	FactorPrecipitation    = "precipitation"
	FactorHumidity         = "humidity"
	FactorPressure         = "pressure"
	FactorWindSpeed        = "windSpeed"
	FactorSunshineHours    = "sunshineHours"
	FactorPrevDayTempDelta = "prevDayTempDelta"
	FactorPrevDayIdeal     = "prevDayIdealConditions"
)

// Factor is a weather variable evaluated against daily volume.
type Factor struct {
	Name  string
	Value func(d models.CorrelationDatum) sql.NullFloat64
}

// Factors lists every factor correlated against volume, in report order.
var Factors = []Factor{
	{FactorTempDelta, func(d models.CorrelationDatum) sql.NullFloat64 { return d.TempDelta }},
	{FactorTempHigh, func(d models.CorrelationDatum) sql.NullFloat64 { return d.TempHigh }},
	{FactorTempLow, func(d models.CorrelationDatum) sql.NullFloat64 { return d.TempLow }},
	{FactorPrecipitation, func(d models.CorrelationDatum) sql.NullFloat64 { return d.Precipitation }},
	{FactorHumidity, func(d models.CorrelationDatum) sql.NullFloat64 { return d.Humidity }},
	{FactorPressure, func(d models.CorrelationDatum) sql.NullFloat64 { return d.Pressure }},
	{FactorWindSpeed, func(d models.CorrelationDatum) sql.NullFloat64 { return d.WindSpeed }},
	{FactorSunshineHours, func(d models.CorrelationDatum) sql.NullFloat64 { return d.SunshineHours }},
	{FactorPrevDayTempDelta, func(d models.CorrelationDatum) sql.NullFloat64 { return d.PrevDayTempDelta }},
	{FactorPrevDayIdeal, func(d models.CorrelationDatum) sql.NullFloat64 { return boolAsFloat(d.PrevDayIdealConditions) }},
}

func boolAsFloat(b sql.NullBool) sql.NullFloat64 {
	if !b.Valid {
		return sql.NullFloat64{}
	}
	if b.Bool {
		return sql.NullFloat64{Float64: 1, Valid: true}
	}
	return sql.NullFloat64{Float64: 0, Valid: true}
}

// Correlate computes Pearson's r between each factor and volume.
func Correlate(data []models.CorrelationDatum) map[string]models.FactorCorrelation {
	volumes := make([]sql.NullFloat64, len(data))
	for i, d := range data {
		volumes[i] = sql.NullFloat64{Float64: d.Volume, Valid: true}
	}

	out := make(map[string]models.FactorCorrelation, len(Factors))
	for _, f := range Factors {
		xs := make([]sql.NullFloat64, len(data))
		for i, d := range data {
			xs[i] = f.Value(d)
		}
		out[f.Name] = stats.Pearson(xs, volumes)
	}
	return out
}

type insightKey struct {
	factor   string
	positive bool
}

var insightMessages = map[insightKey]string{
	{FactorTempDelta, true}:         "Larger swings between daytime highs and overnight lows bring heavier sap runs.",
	{FactorTempDelta, false}:        "Days with large temperature swings have produced less sap than steadier days.",
	{FactorTempHigh, true}:          "Warmer afternoons are associated with higher collection volumes.",
	{FactorTempHigh, false}:         "Flow tends to drop off as daytime highs climb; the season may be warming past the sweet spot.",
	{FactorTempLow, true}:           "Milder nights have coincided with better flow.",
	{FactorTempLow, false}:          "Colder nights are followed by stronger flow, consistent with a good freeze recharging the trees.",
	{FactorPrecipitation, true}:     "Wet days have tended to produce more sap.",
	{FactorPrecipitation, false}:    "Precipitation is associated with lower collection volumes.",
	{FactorHumidity, true}:          "Higher humidity lines up with stronger sap flow.",
	{FactorHumidity, false}:         "Drier air has coincided with better sap flow.",
	{FactorPressure, true}:          "Rising barometric pressure is associated with better runs, typical of clear high-pressure days.",
	{FactorPressure, false}:         "Falling barometric pressure has coincided with stronger flow, often ahead of a passing front.",
	{FactorWindSpeed, true}:         "Windier days have seen higher volumes.",
	{FactorWindSpeed, false}:        "Calm days produce more sap; wind appears to suppress flow.",
	{FactorSunshineHours, true}:     "Sunny days drive stronger flow as trunks warm.",
	{FactorSunshineHours, false}:    "Overcast days have outperformed sunny ones this season.",
	{FactorPrevDayTempDelta, true}:  "A large temperature swing the day before tends to set up a good run the next day.",
	{FactorPrevDayTempDelta, false}: "A large temperature swing the day before has been followed by weaker flow.",
	{FactorPrevDayIdeal, true}:      "A freeze/thaw day is often followed by another strong collection day.",
	{FactorPrevDayIdeal, false}:     "Flow after an ideal freeze/thaw day has tended to taper off.",
}

// Insights emits a message for every moderate or strong factor, ordered by
// descending |r|.
func Insights(correlations map[string]models.FactorCorrelation) []models.Insight {
	var out []models.Insight
	for _, f := range Factors {
		c, ok := correlations[f.Name]
		if !ok || !c.Coefficient.Valid || !c.Strength.Significant() {
			continue
		}
		msg, ok := insightMessages[insightKey{f.Name, c.Coefficient.Float64 > 0}]
		if !ok {
			continue
		}
		out = append(out, models.Insight{
			Factor:      f.Name,
			Coefficient: c.Coefficient.Float64,
			Strength:    c.Strength,
			Message:     msg,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Coefficient) > math.Abs(out[j].Coefficient)
	})
	return out
}
