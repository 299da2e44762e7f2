// Package mcpserver exposes benchmark validation as Model Context Protocol
// tools, so a generating agent can check its own sections before handing
// them over.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the benchmark tools registered.
// list_runs is only registered when the service has run history.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "benchcheck",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_packs",
		Description: "List every benchmark pack with its expected sections and rule count. Packs that fail to load are reported under broken.",
	}, svc.ListPacks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_rules",
		Description: "Return the expected sections and the per-section benchmark rules (word bounds, headings, phrases, format) of a pack.",
	}, svc.GetRules)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_section",
		Description: "Validate one markdown section against its benchmark rule. Returns PASS, PASS_WITH_WARNINGS or FAIL with itemized issues.",
	}, svc.ValidateSection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_pack",
		Description: "Validate all sections of a report against a pack. Sections not on the pack whitelist fail. Returns markdown feedback for any failure.",
	}, svc.ValidatePack)

	if svc.runs != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "list_runs",
			Description: "List recent enforcement runs, newest first, optionally filtered by pack.",
		}, svc.ListRuns)
	}

	return server
}

// Run serves the tools over stdio until ctx is cancelled or the client
// disconnects.
func Run(ctx context.Context, svc *Service) error {
	return NewServer(svc).Run(ctx, &mcp.StdioTransport{})
}
