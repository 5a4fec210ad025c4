package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/router-for-me/strepsil/internal/analytics"
	"github.com/router-for-me/strepsil/internal/cost"
	"github.com/router-for-me/strepsil/internal/models"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	defaultPage  = 1
	defaultLimit = 50
)

// AICallHandler serves CRUD and analytics over recorded AI calls.
type AICallHandler struct {
	store *store.Store // Record store.
	newID func() string
}

// NewAICallHandler constructs an AI call handler.
func NewAICallHandler(s *store.Store) *AICallHandler {
	return &AICallHandler{store: s, newID: uuid.NewString}
}

// createAICallRequest captures an externally logged call.
type createAICallRequest struct {
	Provider        string          `json:"provider"`
	ModelType       string          `json:"model_type"`
	Endpoint        string          `json:"endpoint"`
	Prompt          string          `json:"prompt"`
	Response        *string         `json:"response"`
	TokensIn        int64           `json:"tokens_in"`
	TokensOut       int64           `json:"tokens_out"`
	CostPerTokenIn  float64         `json:"cost_per_token_in"`
	CostPerTokenOut float64         `json:"cost_per_token_out"`
	LatencyMS       int64           `json:"latency_ms"`
	Status          string          `json:"status"`
	ErrorMessage    *string         `json:"error_message"`
	Metadata        json.RawMessage `json:"metadata"`
}

// updateStatusRequest captures a status patch.
type updateStatusRequest struct {
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
}

// bulkDeleteRequest captures a bulk delete payload.
type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// Create records a call logged by an external client.
func (h *AICallHandler) Create(c *gin.Context) {
	var body createAICallRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.Provider = strings.TrimSpace(body.Provider)
	body.ModelType = strings.TrimSpace(body.ModelType)
	body.Endpoint = strings.TrimSpace(body.Endpoint)
	if body.Provider == "" || body.ModelType == "" || body.Endpoint == "" || body.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider, model_type, endpoint, and prompt are required"})
		return
	}

	status := models.AICallStatusSuccess
	if raw := strings.TrimSpace(body.Status); raw != "" {
		status = models.AICallStatus(raw)
	}
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	if body.LatencyMS < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latency_ms must be non-negative"})
		return
	}
	total, errCost := cost.Compute(body.TokensIn, body.TokensOut, body.CostPerTokenIn, body.CostPerTokenOut)
	if errCost != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token counts and rates must be non-negative"})
		return
	}

	call := models.AICall{
		ID:              h.newID(),
		Provider:        body.Provider,
		ModelType:       body.ModelType,
		Endpoint:        body.Endpoint,
		Prompt:          body.Prompt,
		Response:        body.Response,
		TokensIn:        body.TokensIn,
		TokensOut:       body.TokensOut,
		CostPerTokenIn:  body.CostPerTokenIn,
		CostPerTokenOut: body.CostPerTokenOut,
		TotalCost:       total.InexactFloat64(),
		LatencyMS:       body.LatencyMS,
		Status:          status,
		ErrorMessage:    body.ErrorMessage,
	}
	if len(body.Metadata) > 0 && string(body.Metadata) != "null" {
		call.Metadata = datatypes.JSON(body.Metadata)
	}

	if errInsert := h.store.InsertCall(c.Request.Context(), &call); errInsert != nil {
		if errors.Is(errInsert, store.ErrDuplicateID) {
			c.JSON(http.StatusConflict, gin.H{"error": "AI call already exists"})
			return
		}
		log.WithError(errInsert).Error("ai calls: record failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record AI call"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "AI call recorded successfully",
		"aiCall":  formatAICall(&call),
	})
}

// List returns a page of calls matching the query filters.
func (h *AICallHandler) List(c *gin.Context) {
	page := queryPositiveInt(c, "page", defaultPage)
	limit := queryPositiveInt(c, "limit", defaultLimit)
	if limit > store.MaxReportRecords {
		limit = store.MaxReportRecords
	}

	filter, errFilter := store.ParseCallFilter(
		c.Query("provider"),
		c.Query("model_type"),
		c.Query("status"),
		c.Query("start_date"),
		c.Query("end_date"),
	)
	if errFilter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errFilter.Error()})
		return
	}

	ctx := c.Request.Context()
	rows, errQuery := h.store.QueryCalls(ctx, filter, limit, (page-1)*limit)
	if errQuery != nil {
		log.WithError(errQuery).Error("ai calls: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch AI calls"})
		return
	}
	total, errCount := h.store.CountCalls(ctx, filter)
	if errCount != nil {
		log.WithError(errCount).Error("ai calls: count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch AI calls"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAICall(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"aiCalls": out,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// Get returns one call by id.
func (h *AICallHandler) Get(c *gin.Context) {
	call, errGet := h.store.GetCall(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI call not found"})
			return
		}
		log.WithError(errGet).Error("ai calls: get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch AI call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"aiCall": formatAICall(&call)})
}

// UpdateStatus overwrites the status and error message of a call.
func (h *AICallHandler) UpdateStatus(c *gin.Context) {
	var body updateStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := models.AICallStatus(strings.TrimSpace(body.Status))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	call, errUpdate := h.store.UpdateCallStatus(c.Request.Context(), c.Param("id"), status, body.ErrorMessage)
	if errUpdate != nil {
		if errors.Is(errUpdate, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI call not found"})
			return
		}
		log.WithError(errUpdate).Error("ai calls: update status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update AI call status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "AI call status updated successfully",
		"aiCall":  formatAICall(&call),
	})
}

// Delete removes a call. Unknown ids succeed.
func (h *AICallHandler) Delete(c *gin.Context) {
	if errDelete := h.store.DeleteCall(c.Request.Context(), c.Param("id")); errDelete != nil {
		log.WithError(errDelete).Error("ai calls: delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete AI call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "AI call deleted successfully"})
}

// BulkDelete removes every listed id and reports how many rows went away.
func (h *AICallHandler) BulkDelete(c *gin.Context) {
	var body bulkDeleteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Valid array of IDs is required"})
		return
	}

	deleted, errDelete := h.store.DeleteCalls(c.Request.Context(), body.IDs)
	if errDelete != nil {
		log.WithError(errDelete).WithField("deleted", deleted).Error("ai calls: bulk delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete AI calls"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("%d AI calls deleted successfully", deleted),
		"deletedCount": deleted,
	})
}

// AnalyticsSummary returns totals, count breakdowns and daily usage for the filter.
func (h *AICallHandler) AnalyticsSummary(c *gin.Context) {
	filter, errFilter := store.ParseCallFilter(
		c.Query("provider"),
		c.Query("model_type"),
		"",
		c.Query("start_date"),
		c.Query("end_date"),
	)
	if errFilter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errFilter.Error()})
		return
	}
	records, errQuery := h.store.QueryCalls(c.Request.Context(), filter, store.MaxReportRecords, 0)
	if errQuery != nil {
		log.WithError(errQuery).Error("ai calls: analytics query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}

	breakdowns := make(gin.H, len(summaryBreakdowns))
	for _, b := range summaryBreakdowns {
		counts, errCount := analytics.CountBy(records, b.dimension)
		if errCount != nil {
			log.WithError(errCount).WithField("dimension", b.dimension).Error("ai calls: analytics breakdown failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
			return
		}
		breakdowns[b.name] = counts
	}
	daily, errDaily := analytics.Breakdown(records, analytics.DimensionDate)
	if errDaily != nil {
		log.WithError(errDaily).Error("ai calls: analytics daily usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}

	// Map keys are encoded in sorted order, so days come out ascending.
	dailyUsage := make(gin.H, len(daily))
	for day, g := range daily {
		dailyUsage[day] = gin.H{"calls": g.Calls, "cost": g.Cost.InexactFloat64()}
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":    formatSummary(analytics.Summarize(records)),
		"breakdowns": breakdowns,
		"dailyUsage": dailyUsage,
	})
}

// summaryBreakdowns lists the count breakdowns of the analytics summary.
var summaryBreakdowns = []struct {
	name      string
	dimension analytics.Dimension
}{
	{name: "status", dimension: analytics.DimensionStatus},
	{name: "models", dimension: analytics.DimensionModel},
	{name: "providers", dimension: analytics.DimensionProvider},
}

// formatAICall renders a record with snake_case fields.
func formatAICall(call *models.AICall) gin.H {
	if call == nil {
		return gin.H{}
	}
	var metadata any
	if len(call.Metadata) > 0 {
		metadata = json.RawMessage(call.Metadata)
	}
	return gin.H{
		"id":                 call.ID,
		"provider":           call.Provider,
		"model_type":         call.ModelType,
		"endpoint":           call.Endpoint,
		"prompt":             call.Prompt,
		"response":           call.Response,
		"tokens_in":          call.TokensIn,
		"tokens_out":         call.TokensOut,
		"cost_per_token_in":  call.CostPerTokenIn,
		"cost_per_token_out": call.CostPerTokenOut,
		"total_cost":         call.TotalCost,
		"latency_ms":         call.LatencyMS,
		"status":             call.Status,
		"error_message":      call.ErrorMessage,
		"metadata":           metadata,
		"created_at":         call.CreatedAt,
		"updated_at":         call.UpdatedAt,
	}
}

// formatSummary renders dashboard totals with camelCase keys.
func formatSummary(s analytics.Summary) gin.H {
	return gin.H{
		"totalCalls":     s.TotalCalls,
		"totalCost":      s.TotalCost.InexactFloat64(),
		"totalTokensIn":  s.TotalTokensIn,
		"totalTokensOut": s.TotalTokensOut,
		"averageLatency": s.AverageLatencyMS,
	}
}

// queryPositiveInt reads a positive integer query value or returns fallback.
func queryPositiveInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
