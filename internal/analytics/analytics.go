// Package analytics aggregates AI call records into summaries, breakdowns and trends.
package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	"github.com/shopspring/decimal"
)

// Dimension names a breakdown grouping.
type Dimension string

// Supported breakdown dimensions.
const (
	DimensionModel    Dimension = "model"
	DimensionProvider Dimension = "provider"
	DimensionEndpoint Dimension = "endpoint"
	DimensionDate     Dimension = "date"
	DimensionStatus   Dimension = "status"
)

// Period names a trend bucket width.
type Period string

// Supported trend periods.
const (
	PeriodDaily  Period = "daily"
	PeriodHourly Period = "hourly"
)

const (
	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02 15:00"
)

var (
	// ErrUnknownDimension is returned for an unsupported breakdown dimension.
	ErrUnknownDimension = errors.New("analytics: unknown dimension")
	// ErrUnknownPeriod is returned for an unsupported trend period.
	ErrUnknownPeriod = errors.New("analytics: unknown period")
)

// Summary totals a record set.
type Summary struct {
	TotalCalls       int64
	TotalCost        decimal.Decimal
	TotalTokensIn    int64
	TotalTokensOut   int64
	AverageLatencyMS int64
}

// MarshalJSON renders decimal totals as JSON numbers.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"total_calls":        s.TotalCalls,
		"total_cost":         s.TotalCost.InexactFloat64(),
		"total_tokens_in":    s.TotalTokensIn,
		"total_tokens_out":   s.TotalTokensOut,
		"average_latency_ms": s.AverageLatencyMS,
	})
}

// Group is one breakdown bucket.
type Group struct {
	Calls  int64
	Cost   decimal.Decimal
	Tokens int64
}

// MarshalJSON renders the group with cost as a JSON number.
func (g Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"calls":  g.Calls,
		"cost":   g.Cost.InexactFloat64(),
		"tokens": g.Tokens,
	})
}

// TrendBucket is one time bucket of a trend.
type TrendBucket struct {
	Calls          int64
	Cost           decimal.Decimal
	Tokens         int64
	LatencySum     int64
	Errors         int64
	AverageLatency float64
}

// MarshalJSON renders the bucket with cost as a JSON number.
func (b TrendBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"calls":          b.Calls,
		"cost":           b.Cost.InexactFloat64(),
		"tokens":         b.Tokens,
		"latency":        b.LatencySum,
		"errors":         b.Errors,
		"averageLatency": b.AverageLatency,
	})
}

// Summarize totals records. An empty set yields zero values.
func Summarize(records []models.AICall) Summary {
	out := Summary{TotalCost: decimal.Zero}
	var latency int64
	for i := range records {
		r := &records[i]
		out.TotalCalls++
		out.TotalCost = out.TotalCost.Add(decimal.NewFromFloat(r.TotalCost))
		out.TotalTokensIn += r.TokensIn
		out.TotalTokensOut += r.TokensOut
		latency += r.LatencyMS
	}
	if out.TotalCalls > 0 {
		out.AverageLatencyMS = int64(math.Round(float64(latency) / float64(out.TotalCalls)))
	}
	return out
}

// ParseDimension validates a dimension name.
func ParseDimension(raw string) (Dimension, error) {
	switch d := Dimension(raw); d {
	case DimensionModel, DimensionProvider, DimensionEndpoint, DimensionDate, DimensionStatus:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, raw)
	}
}

// ParsePeriod validates a period name.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(raw); p {
	case PeriodDaily, PeriodHourly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, raw)
	}
}

// Breakdown groups records by dimension.
func Breakdown(records []models.AICall, dimension Dimension) (map[string]Group, error) {
	keyOf, err := dimensionKey(dimension)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Group)
	for i := range records {
		r := &records[i]
		key := keyOf(r)
		g, ok := out[key]
		if !ok {
			g.Cost = decimal.Zero
		}
		g.Calls++
		g.Cost = g.Cost.Add(decimal.NewFromFloat(r.TotalCost))
		g.Tokens += r.TotalTokens()
		out[key] = g
	}
	return out, nil
}

func dimensionKey(dimension Dimension) (func(*models.AICall) string, error) {
	switch dimension {
	case DimensionModel:
		return func(r *models.AICall) string { return r.ModelType }, nil
	case DimensionProvider:
		return func(r *models.AICall) string { return r.Provider }, nil
	case DimensionEndpoint:
		return func(r *models.AICall) string { return r.Endpoint }, nil
	case DimensionDate:
		return func(r *models.AICall) string { return r.CreatedAt.UTC().Format(dayLayout) }, nil
	case DimensionStatus:
		return func(r *models.AICall) string { return string(r.Status) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
}

// CountBy counts records per dimension value.
func CountBy(records []models.AICall, dimension Dimension) (map[string]int64, error) {
	groups, err := Breakdown(records, dimension)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(groups))
	for key, g := range groups {
		out[key] = g.Calls
	}
	return out, nil
}

// WindowStart returns the first instant included in a days-long trend ending at now.
// The window starts at UTC midnight days calendar days before now.
func WindowStart(days int, now time.Time) time.Time {
	if days < 0 {
		days = 0
	}
	today := now.UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -days)
}

// Trend buckets records from the last days calendar days by period.
// Records outside the window are ignored.
func Trend(records []models.AICall, period Period, days int, now time.Time) (map[string]TrendBucket, error) {
	var layout string
	switch period {
	case PeriodDaily:
		layout = dayLayout
	case PeriodHourly:
		layout = hourLayout
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	start := WindowStart(days, now)
	end := now.UTC()
	out := make(map[string]TrendBucket)
	for i := range records {
		r := &records[i]
		created := r.CreatedAt.UTC()
		if created.Before(start) || created.After(end) {
			continue
		}
		key := created.Format(layout)
		b, ok := out[key]
		if !ok {
			b.Cost = decimal.Zero
		}
		b.Calls++
		b.Cost = b.Cost.Add(decimal.NewFromFloat(r.TotalCost))
		b.Tokens += r.TotalTokens()
		b.LatencySum += r.LatencyMS
		if r.Status == models.AICallStatusFailure {
			b.Errors++
		}
		out[key] = b
	}
	for key, b := range out {
		b.AverageLatency = float64(b.LatencySum) / float64(b.Calls)
		out[key] = b
	}
	return out, nil
}
