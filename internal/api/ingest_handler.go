package api

import (
	"errors"
	"net/http"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/ingest"
	"PlaceAtlas/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IngestHandler drives provider ingestion and manual corrections.
type IngestHandler struct {
	ingestor *ingest.Ingestor
	logger   *logrus.Logger
}

func NewIngestHandler(ingestor *ingest.Ingestor, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, logger: logger}
}

type ingestRequest struct {
	ExternalIDs []string `json:"external_ids" binding:"required"`
}

// SyncProvider ingests a batch of external ids from one provider. Per-item
// failures are reported in the body, not as an HTTP error.
// POST /ingest/provider/:provider  {"external_ids": ["P1", "P2"]}
func (h *IngestHandler) SyncProvider(c *gin.Context) {
	source := model.SourceType(c.Param("provider"))

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ExternalIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_ids must not be empty"})
		return
	}

	report := h.ingestor.IngestBatch(c.Request.Context(), source, req.ExternalIDs)
	c.JSON(http.StatusOK, report)
}

// ManualEdit applies an admin correction to one record: raises provenance
// to manual, appends tags, sets category fields.
// POST /api/places/:external_id/manual-edit
func (h *IngestHandler) ManualEdit(c *gin.Context) {
	externalID := c.Param("external_id")

	var edit ingest.ManualEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ingestor.ApplyManualEdit(c.Request.Context(), externalID, &edit)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, catalog.ErrMalformedInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("ManualEdit failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, rec)
}
