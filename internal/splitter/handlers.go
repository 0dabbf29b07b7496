package splitter

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/validation"
)

// Handler provides HTTP endpoints for split previews and chain management.
// Previews compute and validate configurations without touching balances.
type Handler struct {
	builder *Builder
}

// NewHandler creates a new splitter handler.
func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

// RegisterRoutes sets up split computation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/split/preview", h.PreviewSplit)
	r.POST("/split/multihop/preview", h.PreviewMultiHop)
	r.POST("/split/validate", h.ValidateConfig)
	r.POST("/split/chains", h.RegisterChain)
	r.GET("/split/chains/:rootAgentId", h.GetChain)
}

// PreviewRequest is the request body for POST /v1/split/preview.
type PreviewRequest struct {
	Amount         string `json:"amount" binding:"required"`
	MerchantWallet string `json:"merchantWallet" binding:"required"`
	Intent         Intent `json:"intent"`
	ProductType    string `json:"productType"`
	IsX402         bool   `json:"isX402"`
}

// PreviewSplit handles POST /v1/split/preview
func (h *Handler) PreviewSplit(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount, ok := money.Parse(req.Amount)
	if !ok || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal string",
		})
		return
	}
	if !validation.IsValidAddress(validation.SanitizeAddress(req.MerchantWallet)) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Invalid merchant wallet address",
		})
		return
	}
	productType, err := ParseProductType(req.ProductType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_product_type", "message": err.Error()})
		return
	}

	result, err := h.builder.BuildSplitTree(c.Request.Context(), amount,
		validation.SanitizeAddress(req.MerchantWallet), req.Intent, productType, req.IsX402)
	if err != nil {
		status := http.StatusInternalServerError
		code := "preview_failed"
		if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidProductType) {
			status = http.StatusBadRequest
			code = "invalid_request"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	validationResult := Validate(result.FlatConfig, result.TotalAmount)
	c.JSON(http.StatusOK, gin.H{
		"result":     result,
		"validation": validationResult,
	})
}

// MultiHopPreviewRequest is the request body for POST /v1/split/multihop/preview.
type MultiHopPreviewRequest struct {
	Amount         string `json:"amount" binding:"required"`
	MerchantWallet string `json:"merchantWallet" binding:"required"`
	RootAgentID    string `json:"rootAgentId" binding:"required"`
	ProductType    string `json:"productType"`
}

// PreviewMultiHop handles POST /v1/split/multihop/preview
func (h *Handler) PreviewMultiHop(c *gin.Context) {
	var req MultiHopPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount, ok := money.Parse(req.Amount)
	if !ok || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal string",
		})
		return
	}

	productType, err := ParseProductType(req.ProductType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_product_type", "message": err.Error()})
		return
	}

	result, err := h.builder.BuildMultiHopSplitTree(c.Request.Context(), amount,
		validation.SanitizeAddress(req.MerchantWallet), req.RootAgentID, productType)
	if err != nil {
		status := http.StatusInternalServerError
		code := "preview_failed"
		switch {
		case errors.Is(err, ErrChainNotFound):
			status = http.StatusNotFound
			code = "chain_not_found"
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidProductType):
			status = http.StatusBadRequest
			code = "invalid_request"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ValidateRequest is the request body for POST /v1/split/validate.
type ValidateRequest struct {
	Config      wireConfig `json:"config" binding:"required"`
	TotalAmount string     `json:"totalAmount" binding:"required"`
}

// wireConfig is SplitConfig with amounts as decimal strings.
type wireConfig struct {
	MerchantWallet  string `json:"merchantWallet"`
	MerchantAmount  string `json:"merchantAmount"`
	ReferralWallet  string `json:"referralWallet"`
	ReferralFee     string `json:"referralFee"`
	ExecutionWallet string `json:"executionWallet"`
	ExecutionFee    string `json:"executionFee"`
	PlatformWallet  string `json:"platformWallet"`
	PlatformFee     string `json:"platformFee"`
	ChannelWallet   string `json:"channelWallet"`
	ChannelFee      string `json:"channelFee"`
	FundWallet      string `json:"fundWallet"`
	FundAmount      string `json:"fundAmount"`
}

// ValidateConfig handles POST /v1/split/validate
func (h *Handler) ValidateConfig(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	total, ok := money.Parse(req.TotalAmount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "totalAmount must be a decimal string",
		})
		return
	}
	cfg, ok := req.Config.toConfig()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Config amounts must be decimal strings",
		})
		return
	}

	result := Validate(cfg, total)
	c.JSON(http.StatusOK, gin.H{
		"validation": result,
		"hash":       Hash(cfg),
	})
}

func (w wireConfig) toConfig() (SplitConfig, bool) {
	parse := func(s string, dst **big.Int, ok *bool) {
		v, valid := money.Parse(s)
		if !valid {
			*ok = false
			return
		}
		*dst = v
	}
	cfg := SplitConfig{
		MerchantWallet:  w.MerchantWallet,
		ReferralWallet:  w.ReferralWallet,
		ExecutionWallet: w.ExecutionWallet,
		PlatformWallet:  w.PlatformWallet,
		ChannelWallet:   w.ChannelWallet,
		FundWallet:      w.FundWallet,
	}
	ok := true
	parse(w.MerchantAmount, &cfg.MerchantAmount, &ok)
	parse(w.ReferralFee, &cfg.ReferralFee, &ok)
	parse(w.ExecutionFee, &cfg.ExecutionFee, &ok)
	parse(w.PlatformFee, &cfg.PlatformFee, &ok)
	parse(w.ChannelFee, &cfg.ChannelFee, &ok)
	parse(w.FundAmount, &cfg.FundAmount, &ok)
	return cfg, ok
}

// ChainRequest is the request body for POST /v1/split/chains.
type ChainRequest struct {
	RootAgentID string       `json:"rootAgentId" binding:"required"`
	Chain       []*ChainNode `json:"chain" binding:"required"`
}

// RegisterChain handles POST /v1/split/chains
func (h *Handler) RegisterChain(c *gin.Context) {
	var req ChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := h.builder.RegisterChain(c.Request.Context(), req.RootAgentID, req.Chain); err != nil {
		status := http.StatusInternalServerError
		code := "register_failed"
		if errors.Is(err, ErrInvalidChain) {
			status = http.StatusBadRequest
			code = "invalid_chain"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"rootAgentId": req.RootAgentID,
		"nodes":       len(req.Chain),
	})
}

// GetChain handles GET /v1/split/chains/:rootAgentId
func (h *Handler) GetChain(c *gin.Context) {
	chain, err := h.builder.chains.GetChain(c.Request.Context(), c.Param("rootAgentId"))
	if err != nil {
		if errors.Is(err, ErrChainNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "chain_not_found",
				"message": "No chain registered for this agent",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rootAgentId": c.Param("rootAgentId"), "chain": chain})
}
