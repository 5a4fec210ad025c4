package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/modelreference"
	"github.com/router-for-me/strepsil/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ModelReferenceHandler exposes synced public price references.
type ModelReferenceHandler struct {
	db *gorm.DB
}

// NewModelReferenceHandler constructs a model reference handler.
func NewModelReferenceHandler(db *gorm.DB) *ModelReferenceHandler {
	return &ModelReferenceHandler{db: db}
}

// List returns references, filtered by the provider query value when set.
func (h *ModelReferenceHandler) List(c *gin.Context) {
	rows, errList := modelreference.ListReferences(c.Request.Context(), h.db, c.Query("provider"))
	if errList != nil {
		log.WithError(errList).Error("model references: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model references"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPriceReference(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"references": out})
}

func formatPriceReference(ref *models.PriceReference) gin.H {
	var extra any
	if len(ref.Extra) > 0 {
		extra = json.RawMessage(ref.Extra)
	}
	return gin.H{
		"provider":      ref.ProviderName,
		"model":         ref.ModelName,
		"context_limit": ref.ContextLimit,
		"output_limit":  ref.OutputLimit,
		"input_price":   ref.InputPrice,
		"output_price":  ref.OutputPrice,
		"extra":         extra,
		"last_seen_at":  ref.LastSeenAt,
	}
}
