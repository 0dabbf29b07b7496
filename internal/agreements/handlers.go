package agreements

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for agreement onboarding and lookup.
type Handler struct {
	registry *Registry
}

// NewHandler creates a new agreements handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes sets up agreement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/agreements", h.Register)
	r.GET("/agreements/:id", h.Get)
	r.POST("/agreements/:id/terminate", h.Terminate)
	r.GET("/agents/:address/agreements", h.ListByAgent)
}

// Register handles POST /v1/agreements
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	a, err := h.registry.Register(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "register_failed"
		if errors.Is(err, ErrInvalidAgreement) {
			status = http.StatusBadRequest
			code = "invalid_agreement"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, a)
}

// Get handles GET /v1/agreements/:id
func (h *Handler) Get(c *gin.Context) {
	a, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAgreementNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agreement not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// Terminate handles POST /v1/agreements/:id/terminate
func (h *Handler) Terminate(c *gin.Context) {
	a, err := h.registry.Terminate(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "terminate_failed"
		switch {
		case errors.Is(err, ErrAgreementNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotActive):
			status = http.StatusConflict
			code = "not_active"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// ListByAgent handles GET /v1/agents/:address/agreements
func (h *Handler) ListByAgent(c *gin.Context) {
	list, err := h.registry.ListByAgent(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "message": err.Error()})
		return
	}
	if list == nil {
		list = []*Agreement{}
	}
	c.JSON(http.StatusOK, gin.H{"agreements": list, "count": len(list)})
}
