package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/router-for-me/strepsil/internal/cost"
	"github.com/router-for-me/strepsil/internal/models"
)

// csvHeader is the fixed column order of CSV exports.
var csvHeader = []string{
	"id", "date", "provider", "model", "endpoint",
	"tokens_in", "tokens_out", "total_tokens", "cost", "latency", "status",
}

// WriteCSV writes one header line and one line per record.
func WriteCSV(w io.Writer, records []models.AICall) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for i := range records {
		row := NewRow(&records[i])
		if err := cw.Write([]string{
			row.ID,
			row.Date,
			row.Provider,
			row.Model,
			row.Endpoint,
			strconv.FormatInt(row.TokensIn, 10),
			strconv.FormatInt(row.TokensOut, 10),
			strconv.FormatInt(row.TotalTokens, 10),
			cost.UnitCost(cost.FromFloat(row.Cost)),
			strconv.FormatInt(row.Latency, 10),
			row.Status,
		}); err != nil {
			return fmt.Errorf("report: write csv row %s: %w", row.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}
