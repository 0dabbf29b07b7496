package settlement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/splitpay/internal/fees"
	"github.com/mbd888/splitpay/internal/money"
)

// CallerHeader carries the caller identity set by the deployment's edge
// (gateway signature verification or relayer mTLS). The service re-checks
// roles against it on every gated operation.
const CallerHeader = "X-Caller-Address"

// Handler provides HTTP endpoints for the settlement ledger.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new settlement handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up settlement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/plans", h.CreatePlan)
	r.GET("/plans", h.ListPlans)
	r.GET("/plans/:id", h.GetPlan)
	r.POST("/plans/:id/active", h.SetPlanActive)
	r.GET("/plans/:id/executions", h.ListExecutions)

	r.POST("/execute", h.ExecuteSplit)
	r.POST("/claim", h.ClaimAll)
	r.GET("/balances/:address", h.GetBalance)

	r.POST("/admin/pause", h.Pause)
	r.POST("/admin/unpause", h.Unpause)
	r.POST("/admin/relayer", h.SetRelayer)
	r.POST("/admin/operator", h.SetOperator)
	r.POST("/admin/treasury", h.SetTreasury)
}

func caller(c *gin.Context) string {
	return c.GetHeader(CallerHeader)
}

// errorResponse maps the error taxonomy onto HTTP statuses.
func errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrInvalidPlan), errors.Is(err, ErrInvalidAmount):
		status = http.StatusBadRequest
		code = "validation_failed"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotRelayer):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrPlanNotFound):
		status = http.StatusNotFound
		code = "plan_not_found"
	case errors.Is(err, ErrPlanInactive):
		status = http.StatusConflict
		code = "plan_inactive"
	case errors.Is(err, ErrPaused):
		status = http.StatusConflict
		code = "paused"
	case errors.Is(err, ErrDuplicateSession):
		status = http.StatusConflict
		code = "duplicate_session"
	case errors.Is(err, ErrNothingToClaim):
		status = http.StatusConflict
		code = "nothing_to_claim"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

// CreatePlan handles POST /v1/plans
func (h *Handler) CreatePlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	plan, err := h.ledger.CreateSplitPlan(c.Request.Context(), req, caller(c))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// ListPlans handles GET /v1/plans
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.ledger.ListSplitPlans(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	if plans == nil {
		plans = []*SplitPlan{}
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

// GetPlan handles GET /v1/plans/:id
func (h *Handler) GetPlan(c *gin.Context) {
	plan, err := h.ledger.GetSplitPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// SetPlanActive handles POST /v1/plans/:id/active
func (h *Handler) SetPlanActive(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	plan, err := h.ledger.SetSplitPlanActive(c.Request.Context(), c.Param("id"), req.Active, caller(c))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// ExecuteRequest is the request body for POST /v1/execute.
type ExecuteRequest struct {
	PlanID    string `json:"planId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Mode      string `json:"mode" binding:"required"`
}

// ExecuteSplit handles POST /v1/execute
func (h *Handler) ExecuteSplit(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount, ok := money.Parse(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a decimal string",
		})
		return
	}
	mode, err := fees.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode", "message": err.Error()})
		return
	}

	rec, err := h.ledger.ExecuteSplit(c.Request.Context(), req.PlanID, req.SessionID, amount, mode, caller(c))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ClaimAll handles POST /v1/claim
func (h *Handler) ClaimAll(c *gin.Context) {
	result, err := h.ledger.ClaimAll(c.Request.Context(), caller(c))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"txHash": result.TxHash,
		"to":     result.To,
		"amount": result.Amount,
	})
}

// GetBalance handles GET /v1/balances/:address
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.GetPendingBalance(c.Request.Context(), c.Param("address"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": c.Param("address"),
		"pending": money.Format(balance),
	})
}

// ListExecutions handles GET /v1/plans/:id/executions
func (h *Handler) ListExecutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, err := h.ledger.ListExecutions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		errorResponse(c, err)
		return
	}
	if recs == nil {
		recs = []*ExecutionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": recs, "count": len(recs)})
}

// Pause handles POST /v1/admin/pause
func (h *Handler) Pause(c *gin.Context) {
	if err := h.ledger.Pause(caller(c)); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Unpause handles POST /v1/admin/unpause
func (h *Handler) Unpause(c *gin.Context) {
	if err := h.ledger.Unpause(caller(c)); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

// SetRelayer handles POST /v1/admin/relayer
func (h *Handler) SetRelayer(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.ledger.SetRelayer(caller(c), req.Address); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relayer": req.Address})
}

// SetOperator handles POST /v1/admin/operator
func (h *Handler) SetOperator(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.ledger.SetOperator(caller(c), req.Address); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operator": req.Address})
}

// SetTreasury handles POST /v1/admin/treasury
func (h *Handler) SetTreasury(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if err := h.ledger.SetPlatformTreasury(caller(c), req.Address); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treasury": req.Address})
}
