package api

import (
	"errors"
	"net/http"
	"strconv"

	"PlaceAtlas/internal/catalog"
	"PlaceAtlas/internal/query"
	"PlaceAtlas/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PlaceHandler serves the catalog query surface.
type PlaceHandler struct {
	engine *query.Engine
	facets *query.FacetIndex
	store  repository.PlaceStore
	logger *logrus.Logger
}

func NewPlaceHandler(engine *query.Engine, facets *query.FacetIndex, store repository.PlaceStore, logger *logrus.Logger) *PlaceHandler {
	return &PlaceHandler{engine: engine, facets: facets, store: store, logger: logger}
}

// ListPlaces answers a filtered, paged catalog query.
// GET /api/places?country=Spain&category=landmark&tag=nouveau&q=morera&page=1&page_size=20&sort=updated
func (h *PlaceHandler) ListPlaces(c *gin.Context) {
	filter := query.Filter{
		Country:  c.Query("country"),
		City:     c.Query("city"),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Name:     c.Query("q"),
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	order := repository.OrderUpdatedDesc
	if c.Query("sort") == "name" {
		order = repository.OrderNameAsc
	}

	result, err := h.engine.Query(c.Request.Context(), filter, page, pageSize, order)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("ListPlaces failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPlace returns one record by external id.
// GET /api/places/:external_id
func (h *PlaceHandler) GetPlace(c *gin.Context) {
	externalID := c.Param("external_id")
	rec, err := h.store.GetByExternalID(c.Request.Context(), externalID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("GetPlace failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetFacets lists the filter options and counts available under the current
// filters, each dimension computed with its own filter excluded.
// GET /api/places/facets?country=Spain&category=landmark
func (h *PlaceHandler) GetFacets(c *gin.Context) {
	base := query.Filter{
		Country:  c.Query("country"),
		City:     c.Query("city"),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Name:     c.Query("q"),
	}
	facets, err := h.facets.FacetsFor(c.Request.Context(), base)
	if err != nil {
		h.logger.WithError(err).Error("GetFacets failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, facets)
}
