package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/pipeline"
	"github.com/sigamony/DataViz/internal/sandbox"
	"github.com/sigamony/DataViz/internal/storage"
)

func seedDataset(t *testing.T, deps Deps) storage.Dataset {
	t.Helper()
	d, err := ImportDataset(context.Background(), deps.Datasets, deps.UploadDir, "sales.csv", strings.NewReader(salesCSV))
	if err != nil {
		t.Fatalf("importing dataset: %v", err)
	}
	return d
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_ListDatasets(t *testing.T) {
	deps, _ := newTestDeps(t)
	d := seedDataset(t, deps)

	result, err := mcpListDatasets(deps)(context.Background(), makeCallToolRequest("list_datasets", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	var out []struct {
		FileID  string   `json:"file_id"`
		Rows    int      `json:"row_count"`
		Columns []string `json:"columns"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(out) != 1 || out[0].FileID != d.ID || out[0].Rows != 3 || len(out[0].Columns) != 3 {
		t.Errorf("datasets = %+v", out)
	}
}

func TestMCPTool_DescribeDataset(t *testing.T) {
	deps, _ := newTestDeps(t)
	d := seedDataset(t, deps)

	result, err := mcpDescribeDataset(deps)(context.Background(), makeCallToolRequest("describe_dataset", map[string]any{"file_id": d.ID}))
	if err != nil {
		t.Fatal(err)
	}
	var v DatasetView
	if err := json.Unmarshal([]byte(toolText(t, result)), &v); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if v.Filename != "sales.csv" || v.Profile.RowCount != 3 {
		t.Errorf("view = %+v", v)
	}

	missing, _ := mcpDescribeDataset(deps)(context.Background(), makeCallToolRequest("describe_dataset", map[string]any{"file_id": "nope"}))
	if !missing.IsError || !strings.Contains(toolText(t, missing), dataset.ErrNotFound.Error()) {
		t.Errorf("missing dataset: %+v", missing)
	}

	noArg, _ := mcpDescribeDataset(deps)(context.Background(), makeCallToolRequest("describe_dataset", nil))
	if !noArg.IsError {
		t.Error("expected error without file_id")
	}
}

func TestMCPTool_SuggestCharts(t *testing.T) {
	deps, _ := newTestDeps(t)
	d := seedDataset(t, deps)

	result, err := mcpSuggestCharts(deps)(context.Background(), makeCallToolRequest("suggest_charts", map[string]any{"file_id": d.ID}))
	if err != nil {
		t.Fatal(err)
	}
	text := toolText(t, result)
	if !strings.Contains(text, `"type":"trend"`) {
		t.Errorf("suggestions = %s", text)
	}
}

func TestMCPTool_AskDataset_Chart(t *testing.T) {
	deps, asker := newTestDeps(t)
	asker.res = pipeline.Result{
		State:    pipeline.StateChart,
		Artifact: sandbox.Artifact{Kind: sandbox.KindChart, Image: pngStub, Code: "plt.bar(['a'], [1])"},
	}

	result, err := mcpAskDataset(deps)(context.Background(), makeCallToolRequest("ask_dataset", map[string]any{
		"file_id": "d1", "query": "bar chart", "session_id": "s1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError || len(result.Content) != 2 {
		t.Fatalf("result = %+v", result)
	}
	img, ok := result.Content[0].(mcp.ImageContent)
	if !ok {
		t.Fatalf("first content is %T", result.Content[0])
	}
	if img.MIMEType != "image/png" || img.Data != base64.StdEncoding.EncodeToString(pngStub) {
		t.Errorf("image = %+v", img)
	}
	if code := result.Content[1].(mcp.TextContent).Text; code != "plt.bar(['a'], [1])" {
		t.Errorf("code = %q", code)
	}
	if asker.reqs[0].SessionID != "s1" {
		t.Errorf("session not forwarded: %+v", asker.reqs[0])
	}
}

func TestMCPTool_AskDataset_TextAndErrors(t *testing.T) {
	deps, asker := newTestDeps(t)
	handler := mcpAskDataset(deps)
	args := map[string]any{"file_id": "d1", "query": "how many rows?"}

	asker.res = pipeline.Result{State: pipeline.StateAnswer, Artifact: sandbox.TextArtifact("There are 3 rows.")}
	result, _ := handler(context.Background(), makeCallToolRequest("ask_dataset", args))
	if result.IsError || toolText(t, result) != "There are 3 rows." {
		t.Errorf("answer = %+v", result)
	}

	asker.res = pipeline.Result{
		State:    pipeline.StateRenderError,
		Artifact: sandbox.Artifact{Kind: sandbox.KindError, ErrorMessage: "Execution error: boom", Code: "throw new Error('boom')"},
	}
	result, _ = handler(context.Background(), makeCallToolRequest("ask_dataset", args))
	if !result.IsError || !strings.HasPrefix(toolText(t, result), "Execution error: boom") {
		t.Errorf("render error = %+v", result)
	}

	asker.err = memory.ErrSessionExpired
	result, _ = handler(context.Background(), makeCallToolRequest("ask_dataset", args))
	if !result.IsError || toolText(t, result) != memory.ErrSessionExpired.Error() {
		t.Errorf("pipeline error = %+v", result)
	}
}

func TestMCPTool_SessionAndClear(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()

	result, err := mcpStartSession(deps)(ctx, makeCallToolRequest("start_session", nil))
	if err != nil || result.IsError {
		t.Fatalf("start_session: %v %+v", err, result)
	}
	sid := toolText(t, result)
	if err := deps.Memory.AppendTurn(ctx, sid, "d1", memory.RoleUser, "hi"); err != nil {
		t.Fatal(err)
	}

	cleared, _ := mcpClearConversation(deps)(ctx, makeCallToolRequest("clear_conversation", map[string]any{"session_id": sid, "file_id": "d1"}))
	if cleared.IsError {
		t.Fatalf("clear: %s", toolText(t, cleared))
	}
	n, err := deps.Memory.TurnCount(ctx, sid, "d1")
	if err != nil || n != 0 {
		t.Errorf("turns after clear = %d, %v", n, err)
	}

	unknown, _ := mcpClearConversation(deps)(ctx, makeCallToolRequest("clear_conversation", map[string]any{"session_id": "nope", "file_id": "d1"}))
	if !unknown.IsError {
		t.Error("expected error for unknown session")
	}
}

func TestMCPResource_Datasets(t *testing.T) {
	deps, _ := newTestDeps(t)
	d := seedDataset(t, deps)

	contents, err := mcpResourceDatasets(deps)(context.Background(), makeReadResourceRequest(DatasetsURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T", contents[0])
	}
	if tc.URI != DatasetsURI || tc.MIMEType != "application/json" || !strings.Contains(tc.Text, d.ID) {
		t.Errorf("resource = %+v", tc)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, asker := newTestDeps(t)
	asker.res = pipeline.Result{State: pipeline.StateAnswer, Artifact: sandbox.TextArtifact("ok")}
	d := seedDataset(t, deps)
	_ = NewMCPServer(deps, "test")

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r, _ := mcpAskDataset(deps)(context.Background(), makeCallToolRequest("ask_dataset", map[string]any{"file_id": d.ID, "query": "q"}))
			if r.IsError {
				errs <- "ask_dataset failed"
			}
		}()
		go func() {
			defer wg.Done()
			r, _ := mcpDescribeDataset(deps)(context.Background(), makeCallToolRequest("describe_dataset", map[string]any{"file_id": d.ID}))
			if r.IsError {
				errs <- "describe_dataset failed"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if len(asker.reqs) != 10 {
		t.Errorf("pipeline saw %d requests, want 10", len(asker.reqs))
	}
}
