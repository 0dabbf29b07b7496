package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SplitpayClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SplitpayClient) *Handlers {
	return &Handlers{client: client}
}

// HandlePreviewSplit computes a split preview.
func (h *Handlers) HandlePreviewSplit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}
	merchant := req.GetString("merchant", "")
	if merchant == "" {
		return mcp.NewToolResultError("merchant is required"), nil
	}
	productType := req.GetString("product_type", "service")
	isX402 := req.GetBool("is_x402", false)
	executor := req.GetString("executor", "")
	referrer := req.GetString("referrer", "")

	raw, err := h.client.PreviewSplit(ctx, amount, merchant, productType, isX402, executor, referrer)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to preview split: %v", err)), nil
	}

	text, err := formatSplitPreview(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse preview: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandlePreviewMultiHop computes a multi-hop split preview.
func (h *Handlers) HandlePreviewMultiHop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}
	merchant := req.GetString("merchant", "")
	if merchant == "" {
		return mcp.NewToolResultError("merchant is required"), nil
	}
	rootAgentID := req.GetString("root_agent_id", "")
	if rootAgentID == "" {
		return mcp.NewToolResultError("root_agent_id is required"), nil
	}
	productType := req.GetString("product_type", "service")

	raw, err := h.client.PreviewMultiHop(ctx, amount, merchant, rootAgentID, productType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to preview multi-hop split: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleGetPendingBalance returns an address's pending balance.
func (h *Handlers) HandleGetPendingBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", h.client.cfg.CallerAddress)
	if address == "" {
		return mcp.NewToolResultError("address is required (none configured)"), nil
	}

	raw, err := h.client.GetPendingBalance(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Pending balance for %s: %s USDC",
		getString(resp, "address"), getString(resp, "pending"))), nil
}

// HandleGetSplitPlan fetches one split plan.
func (h *Handlers) HandleGetSplitPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	planID := req.GetString("plan_id", "")
	if planID == "" {
		return mcp.NewToolResultError("plan_id is required"), nil
	}

	raw, err := h.client.GetSplitPlan(ctx, planID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get plan: %v", err)), nil
	}

	text, err := formatPlan(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse plan: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListSplitPlans lists all split plans.
func (h *Handlers) HandleListSplitPlans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListSplitPlans(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list plans: %v", err)), nil
	}

	text, err := formatPlanList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse plans: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListAgreements lists agreements for an agent.
func (h *Handlers) HandleListAgreements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", h.client.cfg.CallerAddress)
	if address == "" {
		return mcp.NewToolResultError("address is required (none configured)"), nil
	}

	raw, err := h.client.ListAgreements(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agreements: %v", err)), nil
	}

	text, err := formatAgreementList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agreements: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleClaimBalance claims the caller's entire pending balance.
func (h *Handlers) HandleClaimBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ClaimAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Claim failed: %v", err)), nil
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse claim result: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Claimed %s USDC to %s\nTransaction: %s",
		getString(resp, "amount"), getString(resp, "to"), getString(resp, "txHash"))), nil
}

// --- Formatting helpers ---

func formatSplitPreview(raw json.RawMessage) (string, error) {
	var resp struct {
		Result struct {
			TotalAmount string `json:"totalAmount"`
			Hash        string `json:"hash"`
			FlatConfig  struct {
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
			} `json:"flatConfig"`
		} `json:"result"`
		Validation struct {
			Valid  bool     `json:"valid"`
			Errors []string `json:"errors"`
		} `json:"validation"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	cfg := resp.Result.FlatConfig
	var sb strings.Builder
	fmt.Fprintf(&sb, "Split of %s USDC:\n", resp.Result.TotalAmount)
	writeLeg := func(role, wallet, amount string) {
		if amount == "" || amount == "0.000000" {
			return
		}
		fmt.Fprintf(&sb, "  %-9s %s USDC -> %s\n", role+":", amount, wallet)
	}
	writeLeg("merchant", cfg.MerchantWallet, cfg.MerchantAmount)
	writeLeg("executor", cfg.ExecutionWallet, cfg.ExecutionFee)
	writeLeg("referrer", cfg.ReferralWallet, cfg.ReferralFee)
	writeLeg("platform", cfg.PlatformWallet, cfg.PlatformFee)
	writeLeg("channel", cfg.ChannelWallet, cfg.ChannelFee)
	writeLeg("fund", cfg.FundWallet, cfg.FundAmount)

	if resp.Validation.Valid {
		sb.WriteString("Validation: passed\n")
	} else {
		fmt.Fprintf(&sb, "Validation: FAILED (%s)\n", strings.Join(resp.Validation.Errors, "; "))
	}
	fmt.Fprintf(&sb, "Config hash: %s", resp.Result.Hash)

	return sb.String(), nil
}

func formatPlan(raw json.RawMessage) (string, error) {
	var plan struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Recipients []string `json:"recipients"`
		ShareBps   []int    `json:"shareBps"`
		Roles      []string `json:"roles"`
		Active     bool     `json:"active"`
	}
	if err := json.Unmarshal(raw, &plan); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan %s (%s)\n", plan.ID, plan.Name)
	if plan.Active {
		sb.WriteString("Status: active\n")
	} else {
		sb.WriteString("Status: inactive\n")
	}
	for i, r := range plan.Recipients {
		share := 0
		if i < len(plan.ShareBps) {
			share = plan.ShareBps[i]
		}
		role := ""
		if i < len(plan.Roles) {
			role = plan.Roles[i]
		}
		fmt.Fprintf(&sb, "  %s: %.2f%% (%s)\n", r, float64(share)/100, role)
	}
	return sb.String(), nil
}

func formatPlanList(raw json.RawMessage) (string, error) {
	var resp struct {
		Plans []map[string]any `json:"plans"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected plans response format")
	}
	if len(resp.Plans) == 0 {
		return "No split plans found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d plan(s):\n\n", len(resp.Plans))
	for i, p := range resp.Plans {
		status := "inactive"
		if v, ok := p["active"].(bool); ok && v {
			status = "active"
		}
		fmt.Fprintf(&sb, "%d. %s (%s) - %s\n", i+1, getString(p, "name"), getString(p, "id"), status)
	}
	return sb.String(), nil
}

func formatAgreementList(raw json.RawMessage) (string, error) {
	var resp struct {
		Agreements []map[string]any `json:"agreements"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected agreements response format")
	}
	if len(resp.Agreements) == 0 {
		return "No agreements found for this address.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d agreement(s):\n\n", len(resp.Agreements))
	for i, a := range resp.Agreements {
		fmt.Fprintf(&sb, "%d. %s (%s, %s)\n", i+1, getString(a, "id"), getString(a, "type"), getString(a, "status"))
		fmt.Fprintf(&sb, "   %s <-> %s\n", getString(a, "primaryAgent"), getString(a, "secondaryAgent"))
		if terms, ok := a["terms"].(map[string]any); ok {
			if fee := getString(terms, "fixedFee"); fee != "" {
				fmt.Fprintf(&sb, "   Fixed fee: %s USDC\n", fee)
			} else if bps, ok := getFloat(terms, "revenueShareBps"); ok && bps > 0 {
				fmt.Fprintf(&sb, "   Revenue share: %.2f%%\n", bps/100)
			}
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
