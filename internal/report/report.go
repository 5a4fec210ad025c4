// Package report renders billing exports as JSON, CSV or PDF.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/analytics"
	"github.com/router-for-me/strepsil/internal/models"
	"github.com/shopspring/decimal"
)

// Format is a report output format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// AllTime labels an open date range bound.
const AllTime = "All time"

const rowDateLayout = "2006-01-02 15:04:05"

// ParseFormat maps raw to a Format. Unknown values fall back to JSON.
func ParseFormat(raw string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatPDF:
		return f
	default:
		return FormatJSON
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Filename returns "<type>-report-<YYYY-MM-DD>.<ext>" for the generation date.
func Filename(reportType string, f Format, now time.Time) string {
	return fmt.Sprintf("%s-report-%s.%s", reportType, now.UTC().Format("2006-01-02"), string(f))
}

// DateRange records the requested bounds, or AllTime when open.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewDateRange fills empty bounds with AllTime.
func NewDateRange(start, end string) DateRange {
	r := DateRange{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	if r.Start == "" {
		r.Start = AllTime
	}
	if r.End == "" {
		r.End = AllTime
	}
	return r
}

// Summary is the billing report header.
type Summary struct {
	TotalCalls     int64
	TotalCost      decimal.Decimal
	TotalTokens    int64
	AverageLatency int64
	DateRange      DateRange
}

// NewSummary derives the billing summary from records.
func NewSummary(records []models.AICall, dateRange DateRange) Summary {
	s := analytics.Summarize(records)
	return Summary{
		TotalCalls:     s.TotalCalls,
		TotalCost:      s.TotalCost,
		TotalTokens:    s.TotalTokensIn + s.TotalTokensOut,
		AverageLatency: s.AverageLatencyMS,
		DateRange:      dateRange,
	}
}

// MarshalJSON renders the total cost as a JSON number.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"total_calls":     s.TotalCalls,
		"total_cost":      s.TotalCost.InexactFloat64(),
		"total_tokens":    s.TotalTokens,
		"average_latency": s.AverageLatency,
		"date_range":      s.DateRange,
	})
}

// Row is one call as it appears in a billing export.
type Row struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Endpoint    string  `json:"endpoint"`
	TokensIn    int64   `json:"tokens_in"`
	TokensOut   int64   `json:"tokens_out"`
	TotalTokens int64   `json:"total_tokens"`
	Cost        float64 `json:"cost"`
	Latency     int64   `json:"latency"`
	Status      string  `json:"status"`
}

// NewRow projects a record into a report row.
func NewRow(r *models.AICall) Row {
	return Row{
		ID:          r.ID,
		Date:        r.CreatedAt.UTC().Format(rowDateLayout),
		Provider:    r.Provider,
		Model:       r.ModelType,
		Endpoint:    r.Endpoint,
		TokensIn:    r.TokensIn,
		TokensOut:   r.TokensOut,
		TotalTokens: r.TotalTokens(),
		Cost:        r.TotalCost,
		Latency:     r.LatencyMS,
		Status:      string(r.Status),
	}
}

// Billing is the JSON billing report body.
type Billing struct {
	Summary Summary `json:"summary"`
	Calls   []Row   `json:"calls"`
}

// BillingJSON assembles the JSON billing report.
func BillingJSON(summary Summary, records []models.AICall) Billing {
	rows := make([]Row, 0, len(records))
	for i := range records {
		rows = append(rows, NewRow(&records[i]))
	}
	return Billing{Summary: summary, Calls: rows}
}
