package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sigamony/DataViz/internal/pipeline"
	"github.com/sigamony/DataViz/internal/sandbox"
	"github.com/sigamony/DataViz/internal/suggest"
)

// DatasetsURI lists stored datasets as a resource.
const DatasetsURI = "dataviz://datasets"

// NewMCPServer exposes datasets and the chart pipeline as MCP tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"dataviz",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dataviz answers questions about uploaded tables and draws charts from them. Start with list_datasets, then ask_dataset."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription("List uploaded datasets, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of datasets (default 20)")),
		),
		mcpListDatasets(deps),
	)

	s.AddTool(
		mcp.NewTool("describe_dataset",
			mcp.WithDescription("Return the profile of a dataset: columns, types, row count, sample rows and numeric summary."),
			mcp.WithString("file_id", mcp.Description("Dataset id"), mcp.Required()),
		),
		mcpDescribeDataset(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_charts",
			mcp.WithDescription("Propose starter chart requests for a dataset."),
			mcp.WithString("file_id", mcp.Description("Dataset id"), mcp.Required()),
		),
		mcpSuggestCharts(deps),
	)

	s.AddTool(
		mcp.NewTool("start_session",
			mcp.WithDescription("Start a conversation so follow-up questions see earlier ones."),
			mcp.WithString("profile_tag", mcp.Description("Optional caller label")),
		),
		mcpStartSession(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_dataset",
			mcp.WithDescription("Ask a question about a dataset. Returns a text answer or a PNG chart with the script that drew it."),
			mcp.WithString("file_id", mcp.Description("Dataset id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Question or chart request"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation to continue")),
		),
		mcpAskDataset(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_conversation",
			mcp.WithDescription("Forget the conversation about one dataset within a session."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithString("file_id", mcp.Description("Dataset id"), mcp.Required()),
		),
		mcpClearConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			DatasetsURI,
			"Datasets",
			mcp.WithResourceDescription("Uploaded datasets with their profiles"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDatasets(deps),
	)

	return s
}

func mcpListDatasets(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 || limit > defaultListLimit {
			limit = defaultListLimit
		}
		ds, err := deps.Datasets.ListDatasets(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing datasets failed: %v", err)), nil
		}
		type entry struct {
			FileID   string   `json:"file_id"`
			Filename string   `json:"filename"`
			Rows     int      `json:"row_count"`
			Columns  []string `json:"columns"`
		}
		out := make([]entry, len(ds))
		for i, d := range ds {
			out[i] = entry{FileID: d.ID, Filename: d.Filename, Rows: d.Profile.RowCount, Columns: d.Profile.Columns}
		}
		return mcpJSON(out)
	}
}

func mcpDescribeDataset(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("file_id")
		if err != nil {
			return mcpError("file_id is required"), nil
		}
		d, err := lookupDataset(ctx, deps, id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(viewOf(d, false))
	}
}

func mcpSuggestCharts(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("file_id")
		if err != nil {
			return mcpError("file_id is required"), nil
		}
		d, err := lookupDataset(ctx, deps, id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(suggest.For(d.Profile))
	}
}

func mcpStartSession(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := deps.Memory.CreateSession(ctx, req.GetString("profile_tag", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("starting session failed: %v", err)), nil
		}
		return mcpText(id), nil
	}
}

func mcpAskDataset(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("file_id")
		if err != nil {
			return mcpError("file_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Asker.Handle(ctx, pipeline.Request{
			SessionID: req.GetString("session_id", ""),
			DatasetID: id,
			Query:     query,
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}

		a := res.Artifact
		switch a.Kind {
		case sandbox.KindChart:
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.ImageContent{Type: "image", Data: base64.StdEncoding.EncodeToString(a.Image), MIMEType: "image/png"},
					mcp.TextContent{Type: "text", Text: a.Code},
				},
			}, nil
		case sandbox.KindError:
			msg := a.ErrorMessage
			if a.Code != "" {
				msg += "\n\n" + a.Code
			}
			return mcpError(msg), nil
		}
		return mcpText(a.Message), nil
	}
}

func mcpClearConversation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sid, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		did, err := req.RequireString("file_id")
		if err != nil {
			return mcpError("file_id is required"), nil
		}
		if err := deps.Memory.Clear(ctx, sid, did); err != nil {
			return mcpError(fmt.Sprintf("clearing conversation failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Cleared conversation for %s in session %s", did, sid)), nil
	}
}

func mcpResourceDatasets(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ds, err := deps.Datasets.ListDatasets(ctx, defaultListLimit)
		if err != nil {
			return nil, fmt.Errorf("listing datasets: %w", err)
		}
		views := make([]DatasetView, len(ds))
		for i, d := range ds {
			views[i] = viewOf(d, false)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("marshaling datasets: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("marshaling result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
