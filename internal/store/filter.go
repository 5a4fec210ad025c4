package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	"gorm.io/gorm"
)

// CallFilter narrows AI call queries. Zero values match everything.
type CallFilter struct {
	Provider  string              // Exact provider match.
	ModelType string              // Exact model match.
	Status    models.AICallStatus // Exact status match.
	StartDate *time.Time          // Inclusive lower bound on created_at.
	EndDate   *time.Time          // Inclusive upper bound on created_at.
}

// dateLayouts are the accepted ISO-8601 forms for date filters.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseCallFilter builds a CallFilter from raw query values.
// A date-only end_date covers the whole day.
func ParseCallFilter(provider, modelType, status, startDate, endDate string) (CallFilter, error) {
	f := CallFilter{
		Provider:  strings.TrimSpace(provider),
		ModelType: strings.TrimSpace(modelType),
		Status:    models.AICallStatus(strings.TrimSpace(status)),
	}
	if f.Status != "" && !f.Status.Valid() {
		return CallFilter{}, fmt.Errorf("invalid status %q", status)
	}
	if raw := strings.TrimSpace(startDate); raw != "" {
		start, _, err := parseDate(raw)
		if err != nil {
			return CallFilter{}, fmt.Errorf("invalid start_date: %w", err)
		}
		f.StartDate = &start
	}
	if raw := strings.TrimSpace(endDate); raw != "" {
		end, dateOnly, err := parseDate(raw)
		if err != nil {
			return CallFilter{}, fmt.Errorf("invalid end_date: %w", err)
		}
		if dateOnly {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		f.EndDate = &end
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return CallFilter{}, fmt.Errorf("end_date is before start_date")
	}
	return f, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unsupported date %q", raw)
}

// apply adds the filter predicates to q.
func (f CallFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if f.ModelType != "" {
		q = q.Where("model_type = ?", f.ModelType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.StartDate != nil {
		q = q.Where("created_at >= ?", f.StartDate.UTC())
	}
	if f.EndDate != nil {
		q = q.Where("created_at <= ?", f.EndDate.UTC())
	}
	return q
}
