package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatmimic/retrieval/pkg/models"
	"github.com/chatmimic/retrieval/pkg/observability"
)

// Reindexer rebuilds the vector index offline
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// AdminAPI handles the administrative endpoints: unscoped search across
// all owners and index maintenance. Mounted behind AdminRequired so a
// forgotten flag on the scoped path can never reach these.
type AdminAPI struct {
	service   RetrievalService
	reindexer Reindexer
	logger    observability.Logger
}

// NewAdminAPI creates a new admin API handler
func NewAdminAPI(service RetrievalService, reindexer Reindexer, logger observability.Logger) *AdminAPI {
	return &AdminAPI{
		service:   service,
		reindexer: reindexer,
		logger:    logger,
	}
}

// RegisterRoutes registers the administrative routes on the given group
func (a *AdminAPI) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/search", a.searchAll)
	group.POST("/reindex", a.reindex)
}

// searchAll runs a similarity query across all owners
func (a *AdminAPI) searchAll(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := a.service.QueryAll(c.Request.Context(), models.SearchRequest{
		QueryText:   req.QueryText,
		QueryVector: req.QueryVector,
		Filter:      req.Filter,
		Threshold:   req.Threshold,
		Limit:       req.Limit,
	})
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// reindex rebuilds the approximate-nearest-neighbor index; reads keep
// being served from the old index while the rebuild runs
func (a *AdminAPI) reindex(c *gin.Context) {
	if err := a.reindexer.Reindex(c.Request.Context()); err != nil {
		a.logger.Error("Reindex failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reindexed"})
}
