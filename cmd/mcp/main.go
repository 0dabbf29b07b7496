// Splitpay MCP Server - Exposes splitpay capabilities as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/splitpay/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:        envOrDefault("SPLITPAY_API_URL", "http://localhost:8080"),
		CallerAddress: os.Getenv("SPLITPAY_CALLER_ADDRESS"),
	}

	if cfg.CallerAddress == "" {
		fmt.Fprintln(os.Stderr, "SPLITPAY_CALLER_ADDRESS is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
