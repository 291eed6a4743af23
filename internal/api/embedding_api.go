package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chatmimic/retrieval/pkg/models"
	"github.com/chatmimic/retrieval/pkg/observability"
	"github.com/chatmimic/retrieval/pkg/retrieval"
)

// RetrievalService is the core contract the HTTP layer depends on
type RetrievalService interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.EmbeddingRecord, error)
	Update(ctx context.Context, id int64, req models.UpdateRequest) (*models.EmbeddingRecord, error)
	Get(ctx context.Context, ownerID string, id int64) (*models.EmbeddingRecord, error)
	Delete(ctx context.Context, ownerID string, id int64) error
	DeleteOwner(ctx context.Context, ownerID string) (int64, error)
	Query(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
	QueryAll(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

// EmbeddingAPI handles the owner-scoped embedding endpoints
type EmbeddingAPI struct {
	service RetrievalService
	logger  observability.Logger
}

// NewEmbeddingAPI creates a new embedding API handler
func NewEmbeddingAPI(service RetrievalService, logger observability.Logger) *EmbeddingAPI {
	return &EmbeddingAPI{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the owner-scoped routes on the given group
func (a *EmbeddingAPI) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/embeddings", a.ingest)
	group.GET("/embeddings/:id", a.get)
	group.PUT("/embeddings/:id", a.update)
	group.DELETE("/embeddings/:id", a.delete)
	group.DELETE("/owners/:owner_id", a.deleteOwner)
	group.POST("/search", a.search)
}

// ingestRequest is the create-embedding request body. owner_id is only
// honored for administrative credentials; normal callers are bound to
// the owner their credential maps to.
type ingestRequest struct {
	OwnerID  string                 `json:"owner_id"`
	Content  string                 `json:"content" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// searchRequest is the match-documents request body
type searchRequest struct {
	OwnerID     string                 `json:"owner_id"`
	QueryText   string                 `json:"query_text"`
	QueryVector []float32              `json:"query_vector"`
	Filter      map[string]interface{} `json:"filter"`
	Threshold   *float64               `json:"threshold"`
	Limit       int                    `json:"limit"`
}

func (a *EmbeddingAPI) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, ok := resolveOwner(c, req.OwnerID)
	if !ok {
		return
	}

	record, err := a.service.Ingest(c.Request.Context(), models.IngestRequest{
		OwnerID:  owner,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (a *EmbeddingAPI) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	owner, ok := resolveOwner(c, c.Query("owner_id"))
	if !ok {
		return
	}

	record, err := a.service.Get(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a *EmbeddingAPI) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, ok := resolveOwner(c, req.OwnerID)
	if !ok {
		return
	}

	record, err := a.service.Update(c.Request.Context(), id, models.UpdateRequest{
		OwnerID:  owner,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a *EmbeddingAPI) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	owner, ok := resolveOwner(c, c.Query("owner_id"))
	if !ok {
		return
	}

	if err := a.service.Delete(c.Request.Context(), owner, id); err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *EmbeddingAPI) deleteOwner(c *gin.Context) {
	owner, ok := resolveOwner(c, c.Param("owner_id"))
	if !ok {
		return
	}

	deleted, err := a.service.DeleteOwner(c.Request.Context(), owner)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "count": deleted})
}

func (a *EmbeddingAPI) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, ok := resolveOwner(c, req.OwnerID)
	if !ok {
		return
	}

	results, err := a.service.Query(c.Request.Context(), models.SearchRequest{
		OwnerID:     owner,
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

// resolveOwner decides which owner a request acts as. Normal
// credentials are bound to their mapped owner and may not name another
// one; administrative credentials must name the owner explicitly.
func resolveOwner(c *gin.Context, requested string) (string, bool) {
	authOwner := c.GetString(ctxKeyOwnerID)

	if c.GetBool(ctxKeyAdmin) {
		if requested == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required for administrative credentials"})
			return "", false
		}
		return requested, true
	}

	if authOwner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no owner bound to credentials"})
		return "", false
	}

	if requested != "" && requested != authOwner {
		c.JSON(http.StatusForbidden, gin.H{"error": "credentials may not act for the requested owner"})
		return "", false
	}

	return authOwner, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return 0, false
	}
	return id, true
}

// respondError maps the retrieval error taxonomy onto HTTP statuses
func respondError(c *gin.Context, logger observability.Logger, err error) {
	kind := retrieval.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case retrieval.KindValidation:
		status = http.StatusBadRequest
	case retrieval.KindDimensionMismatch:
		status = http.StatusUnprocessableEntity
	case retrieval.KindNotFound:
		status = http.StatusNotFound
	case retrieval.KindProvider:
		status = http.StatusBadGateway
	case retrieval.KindTimeout:
		status = http.StatusGatewayTimeout
	case retrieval.KindStorage:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", map[string]interface{}{
			"error":      err.Error(),
			"kind":       string(kind),
			"request_id": c.GetString(ctxKeyRequestID),
		})
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}
