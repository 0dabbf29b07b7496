package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the splitpay MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolPreviewSplit = mcp.NewTool("preview_split",
	mcp.WithDescription(
		"Compute how a payment would be split between merchant, executor, referrer "+
			"and platform without settling anything. Returns every leg with its amount "+
			"in USDC, plus a validation verdict and the configuration hash."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Payment amount in USDC (e.g. '10.50')")),
	mcp.WithString("merchant",
		mcp.Required(),
		mcp.Description("Merchant wallet address receiving the main leg (e.g. '0x1234...')")),
	mcp.WithString("product_type",
		mcp.Description("Product category affecting fee rates: 'physical', 'service', 'virtual' or 'nft'. Defaults to 'service'."),
		mcp.Enum("physical", "service", "virtual", "nft")),
	mcp.WithBoolean("is_x402",
		mcp.Description("Whether the payment arrives over an x402 channel (adds a channel fee leg)")),
	mcp.WithString("executor",
		mcp.Description("Executing agent's address, paid from the incentive pool")),
	mcp.WithString("referrer",
		mcp.Description("Referring agent's address, paid from the incentive pool")),
)

var ToolPreviewMultiHop = mcp.NewTool("preview_multihop_split",
	mcp.WithDescription(
		"Compute a multi-hop split for a registered delegation chain. "+
			"Shows every hop's share, the merged per-address payouts, the batch "+
			"transfer call data and the estimated gas saving from merging."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Payment amount in USDC (e.g. '100')")),
	mcp.WithString("merchant",
		mcp.Required(),
		mcp.Description("Merchant wallet address (e.g. '0x1234...')")),
	mcp.WithString("root_agent_id",
		mcp.Required(),
		mcp.Description("The agent ID whose registered chain should be applied")),
	mcp.WithString("product_type",
		mcp.Description("Product category: 'physical', 'service', 'virtual' or 'nft'"),
		mcp.Enum("physical", "service", "virtual", "nft")),
)

var ToolGetPendingBalance = mcp.NewTool("get_pending_balance",
	mcp.WithDescription(
		"Check the pending (unclaimed) USDC settlement balance for any address. "+
			"Pending balances accumulate from executed splits until claimed."),
	mcp.WithString("address",
		mcp.Description("Address to check. Defaults to your configured address.")),
)

var ToolGetSplitPlan = mcp.NewTool("get_split_plan",
	mcp.WithDescription(
		"Fetch a split plan by ID: its recipients, share percentages, roles, "+
			"fee configuration and whether it is active."),
	mcp.WithString("plan_id",
		mcp.Required(),
		mcp.Description("The plan ID (e.g. 'plan_abc123')")),
)

var ToolListSplitPlans = mcp.NewTool("list_split_plans",
	mcp.WithDescription(
		"List all split plans on the platform with their recipients and status."),
)

var ToolListAgreements = mcp.NewTool("list_agreements",
	mcp.WithDescription(
		"List revenue-share agreements touching an agent address. "+
			"Agreements override the default executor/referrer split when a "+
			"payment's participants match."),
	mcp.WithString("address",
		mcp.Description("Agent address. Defaults to your configured address.")),
)

var ToolClaimBalance = mcp.NewTool("claim_balance",
	mcp.WithDescription(
		"Claim your entire pending USDC balance. The platform transfers the full "+
			"amount to your address and zeroes the pending balance."),
)
