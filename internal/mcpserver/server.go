package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all splitpay tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("splitpay", "1.0.0")
	client := NewSplitpayClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolPreviewSplit, h.HandlePreviewSplit)
	s.AddTool(ToolPreviewMultiHop, h.HandlePreviewMultiHop)
	s.AddTool(ToolGetPendingBalance, h.HandleGetPendingBalance)
	s.AddTool(ToolGetSplitPlan, h.HandleGetSplitPlan)
	s.AddTool(ToolListSplitPlans, h.HandleListSplitPlans)
	s.AddTool(ToolListAgreements, h.HandleListAgreements)
	s.AddTool(ToolClaimBalance, h.HandleClaimBalance)

	return s
}
