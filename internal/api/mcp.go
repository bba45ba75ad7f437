package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

const (
	defaultRecentEvents = 20
	maxEventText        = 200
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Wardrobe WardrobeStore
	Events   EventLog // optional; if nil, recent_events returns an error
	Version  string
}

// NewMCPServer creates an MCP server exposing the wardrobe and the event log.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"stylebot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("stylebot: wardrobes of the Telegram stylist bot's users and its event log."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_wardrobe",
			mcp.WithDescription("List a user's wardrobe grouped by category."),
			mcp.WithString("user_id", mcp.Description("Telegram user id"), mcp.Required()),
		),
		mcpListWardrobe(deps),
	)

	s.AddTool(
		mcp.NewTool("add_wardrobe_items",
			mcp.WithDescription("Add clothing items to a user's wardrobe."),
			mcp.WithString("user_id", mcp.Description("Telegram user id"), mcp.Required()),
			mcp.WithArray("items",
				mcp.Description("Items to add"),
				mcp.Required(),
				mcp.Items(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":  map[string]any{"type": "string", "description": "Category, e.g. ФУТБОЛКА"},
						"name":  map[string]any{"type": "string"},
						"color": map[string]any{"type": "string"},
						"size":  map[string]any{"type": "string"},
					},
					"required": []string{"type", "name"},
				}),
			),
		),
		mcpAddWardrobeItems(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_events",
			mcp.WithDescription("Return the most recent bot events, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 20)")),
			mcp.WithString("user_id", mcp.Description("Only events of this Telegram user id")),
			mcp.WithString("kind", mcp.Description("Only events of this kind, e.g. ERROR")),
		),
		mcpRecentEvents(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"wardrobe://categories",
			"Wardrobe Categories",
			mcp.WithResourceDescription("Categories the photo classifier chooses from"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCategories,
	)

	return s
}

func mcpListWardrobe(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || !validUserID(userID) {
			return mcpError("user_id must be an integer"), nil
		}

		b, err := json.Marshal(WardrobeResponse{UserID: userID, Items: deps.Wardrobe.UserItems(userID)})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal wardrobe: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddWardrobeItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			UserID string              `json:"user_id"`
			Items  []wardrobe.BulkItem `json:"items"`
		}
		if err := req.BindArguments(&args); err != nil {
			return mcpError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if !validUserID(args.UserID) {
			return mcpError("user_id must be an integer"), nil
		}
		if len(args.Items) == 0 {
			return mcpError("items is required"), nil
		}

		res, err := deps.Wardrobe.BulkAdd(args.UserID, args.Items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add items: %v", err)), nil
		}
		return mcpText(res.Message), nil
	}
}

func mcpRecentEvents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Events == nil {
			return mcpError("event log is not available"), nil
		}

		limit := req.GetInt("limit", defaultRecentEvents)
		if limit <= 0 {
			limit = defaultRecentEvents
		}
		f := storage.EventFilter{Limit: min(limit, maxEventLimit), Kind: req.GetString("kind", "")}
		if v := req.GetString("user_id", ""); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return mcpError("user_id must be an integer"), nil
			}
			f.UserID = &id
		}

		events, err := deps.Events.ListEvents(f)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list events: %v", err)), nil
		}
		for i := range events {
			events[i].Text = truncateRunes(events[i].Text, maxEventText)
		}

		b, err := json.Marshal(events)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal events: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCategories(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(wardrobe.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func validUserID(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
