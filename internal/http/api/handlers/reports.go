package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/analytics"
	"github.com/router-for-me/strepsil/internal/report"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

const defaultTrendDays = 30

// ReportHandler renders billing exports, cost breakdowns and usage trends.
type ReportHandler struct {
	store *store.Store
	now   func() time.Time
}

// NewReportHandler constructs a report handler.
func NewReportHandler(s *store.Store) *ReportHandler {
	return &ReportHandler{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Billing exports the calls in the requested date range as json, csv or pdf.
func (h *ReportHandler) Billing(c *gin.Context) {
	startDate, endDate := c.Query("start_date"), c.Query("end_date")
	filter, errFilter := store.ParseCallFilter("", "", "", startDate, endDate)
	if errFilter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errFilter.Error()})
		return
	}
	records, errQuery := h.store.QueryCalls(c.Request.Context(), filter, store.MaxReportRecords, 0)
	if errQuery != nil {
		log.WithError(errQuery).Error("reports: billing query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate billing report"})
		return
	}

	now := h.now()
	summary := report.NewSummary(records, report.NewDateRange(startDate, endDate))
	format := report.ParseFormat(c.Query("format"))

	var buf bytes.Buffer
	switch format {
	case report.FormatCSV:
		if errWrite := report.WriteCSV(&buf, records); errWrite != nil {
			log.WithError(errWrite).Error("reports: csv export failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate billing report"})
			return
		}
	case report.FormatPDF:
		doc := report.Document{
			Title:       report.DefaultTitle,
			GeneratedAt: now,
			Summary:     summary,
			Records:     records,
		}
		if errWrite := report.WritePDF(&buf, doc); errWrite != nil {
			log.WithError(errWrite).Error("reports: pdf export failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate billing report"})
			return
		}
	default:
		c.JSON(http.StatusOK, report.BillingJSON(summary, records))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename("billing", format, now)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// CostBreakdown groups cost by the requested dimension.
func (h *ReportHandler) CostBreakdown(c *gin.Context) {
	groupBy := strings.TrimSpace(c.DefaultQuery("group_by", string(analytics.DimensionModel)))
	dimension, errDimension := analytics.ParseDimension(groupBy)
	if errDimension != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group_by parameter"})
		return
	}
	filter, errFilter := store.ParseCallFilter("", "", "", c.Query("start_date"), c.Query("end_date"))
	if errFilter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errFilter.Error()})
		return
	}
	records, errQuery := h.store.QueryCalls(c.Request.Context(), filter, store.MaxReportRecords, 0)
	if errQuery != nil {
		log.WithError(errQuery).Error("reports: cost breakdown query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate cost breakdown"})
		return
	}

	breakdown, errBreakdown := analytics.Breakdown(records, dimension)
	if errBreakdown != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group_by parameter"})
		return
	}
	summary := analytics.Summarize(records)
	c.JSON(http.StatusOK, gin.H{
		"group_by":    dimension,
		"breakdown":   breakdown,
		"total_calls": summary.TotalCalls,
		"total_cost":  summary.TotalCost.InexactFloat64(),
	})
}

// Trends buckets the last days of calls by day or hour.
func (h *ReportHandler) Trends(c *gin.Context) {
	period, errPeriod := analytics.ParsePeriod(strings.TrimSpace(c.DefaultQuery("period", string(analytics.PeriodDaily))))
	if errPeriod != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period parameter"})
		return
	}
	days := defaultTrendDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, errDays := strconv.Atoi(raw)
		if errDays != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
			return
		}
		days = parsed
	}

	now := h.now()
	start := analytics.WindowStart(days, now)
	records, errQuery := h.store.QueryCalls(c.Request.Context(), store.CallFilter{StartDate: &start}, store.MaxReportRecords, 0)
	if errQuery != nil {
		log.WithError(errQuery).Error("reports: trends query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate usage trends"})
		return
	}
	trends, errTrend := analytics.Trend(records, period, days, now)
	if errTrend != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period parameter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period": period,
		"days":   days,
		"trends": trends,
	})
}
