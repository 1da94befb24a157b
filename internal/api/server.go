// Package api exposes the indexed documents over HTTP: paginated
// listing, full-text search, reply suggestion, and operational
// endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailsift/mailsift/internal/classify"
	"github.com/mailsift/mailsift/internal/model"
	"github.com/mailsift/mailsift/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse is the JSON error body for every failing request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// EmailPage is one page of documents plus the total match count.
type EmailPage struct {
	Total   int                   `json:"total"`
	Results []model.EmailDocument `json:"results"`
}

// SuggestReplyRequest carries the message to answer and optional
// context snippets (a booking link found in one is reused).
type SuggestReplyRequest struct {
	Body     string   `json:"body" binding:"required"`
	Contexts []string `json:"contexts"`
}

// SuggestReplyResponse carries the drafted reply.
type SuggestReplyResponse struct {
	Reply string `json:"reply"`
}

// EmailHandler handles document listing and search requests.
type EmailHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewEmailHandler creates a handler over the given document store.
func NewEmailHandler(st store.Store, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{store: st, logger: logger}
}

// ListEmails returns indexed documents newest first, paginated with
// from/size query parameters and optional account/folder filters.
func (h *EmailHandler) ListEmails(c *gin.Context) {
	h.search(c, "")
}

// SearchEmails runs a full-text query over subject and body. The q
// parameter is required; account and folder narrow the match set.
func (h *EmailHandler) SearchEmails(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing query parameter q"})
		return
	}
	h.search(c, q)
}

// GetEmail returns a single document by id.
func (h *EmailHandler) GetEmail(c *gin.Context) {
	doc, err := h.store.GetDocumentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "email not found"})
			return
		}
		h.logger.Error("fetching email", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch email"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// SuggestReply drafts a reply for the posted message body.
func (h *EmailHandler) SuggestReply(c *gin.Context) {
	var req SuggestReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuggestReplyResponse{
		Reply: classify.SuggestReply(req.Body, req.Contexts),
	})
}

func (h *EmailHandler) search(c *gin.Context, query string) {
	filter := store.SearchFilter{
		Query:  query,
		Limit:  intQuery(c, "size", defaultPageSize),
		Offset: intQuery(c, "from", 0),
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if account := c.Query("account"); account != "" {
		filter.AccountID = &account
	}
	if folder := c.Query("folder"); folder != "" {
		filter.Folder = &folder
	}

	result, err := h.store.SearchDocuments(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("searching emails", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to search emails"})
		return
	}

	page := EmailPage{Total: result.Total, Results: result.Documents}
	if page.Results == nil {
		page.Results = []model.EmailDocument{}
	}
	c.JSON(http.StatusOK, page)
}

// intQuery reads a non-negative integer query parameter, falling back
// to def when absent or malformed.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// NewRouter wires the full HTTP surface. registry may be nil to skip
// the metrics endpoint.
func NewRouter(st store.Store, registry *prometheus.Registry, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	// Document ids contain slashes, so /api/emails/:id only matches when
	// the id arrives percent-encoded.
	router.UseRawPath = true

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewEmailHandler(st, logger)
	emails := router.Group("/api/emails")
	{
		emails.GET("", h.ListEmails)
		emails.GET("/search", h.SearchEmails)
		emails.POST("/suggest-reply", h.SuggestReply)
		emails.GET("/:id", h.GetEmail)
	}

	if registry != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		))
	}

	return router
}
