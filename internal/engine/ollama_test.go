package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ollamaStub answers /api/chat with reply, /api/tags with models and
// /api/pull with a two-line stream. The last chat body is stored in *body.
func ollamaStub(t *testing.T, reply string, body *map[string]any, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		switch r.URL.Path {
		case "/api/chat":
			if body != nil {
				json.NewDecoder(r.Body).Decode(body)
			}
			enc.Encode(map[string]any{"message": map[string]string{"role": RoleAssistant, "content": reply}})
		case "/api/tags":
			list := make([]map[string]string, 0, len(models))
			for _, m := range models {
				list = append(list, map[string]string{"name": m})
			}
			enc.Encode(map[string]any{"models": list})
		case "/api/pull":
			enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 500})
			enc.Encode(map[string]any{"status": "success"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEngine_ChatOptions(t *testing.T) {
	var body map[string]any
	srv := ollamaStub(t, "Sales rose 12% in Q2.", &body)

	e := NewOllamaEngine(srv.URL, 0.1, 4096)
	got, err := e.Chat(context.Background(), "llama3.1", []Message{{Role: RoleUser, Content: "summarise"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Sales rose 12% in Q2." {
		t.Errorf("reply = %q", got)
	}
	opts, _ := body["options"].(map[string]any)
	if opts["temperature"] != 0.1 {
		t.Errorf("temperature = %v, want 0.1", opts["temperature"])
	}
	if opts["num_ctx"] != float64(4096+replyHeadroom) {
		t.Errorf("num_ctx = %v, want %d", opts["num_ctx"], 4096+replyHeadroom)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["role"] != RoleUser {
		t.Errorf("messages = %v", body["messages"])
	}
}

func TestOllamaEngine_DefaultsSendNoOptions(t *testing.T) {
	var body map[string]any
	srv := ollamaStub(t, "ok", &body)

	if _, err := NewOllamaEngine(srv.URL, -1, 0).Chat(context.Background(), "llama3.1", nil, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := body["options"]; ok {
		t.Errorf("options = %v, want omitted", body["options"])
	}
}

func TestOllamaEngine_SchemaIsClosed(t *testing.T) {
	var body map[string]any
	srv := ollamaStub(t, `{"is_related":true}`, &body)

	schema := &Schema{
		Name: "decision",
		Type: "object",
		Properties: map[string]SchemaProperty{
			"is_related": {Type: "boolean", Description: "about this dataset"},
			"kind":       {Type: "string", Enum: []string{"bar", "line"}},
		},
		Required: []string{"is_related"},
	}
	if _, err := NewOllamaEngine(srv.URL, -1, 0).Chat(context.Background(), "llama3.1", nil, schema); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	format, _ := body["format"].(map[string]any)
	if format["additionalProperties"] != false {
		t.Errorf("format = %v, want additionalProperties false", format)
	}
	if _, ok := format["name"]; ok {
		t.Error("schema name leaked into the format document")
	}
	props, _ := format["properties"].(map[string]any)
	kind, _ := props["kind"].(map[string]any)
	if enum, _ := kind["enum"].([]any); len(enum) != 2 {
		t.Errorf("kind = %v, want enum carried over", kind)
	}
}

func TestOllamaEngine_Models(t *testing.T) {
	srv := ollamaStub(t, "", nil, "llama3.1:latest", "qwen2.5-coder:7b")
	e := NewOllamaEngine(srv.URL, -1, 0)

	if !e.IsRunning(context.Background()) {
		t.Fatal("IsRunning() = false")
	}
	models, err := e.ListModels(context.Background())
	if err != nil || len(models) != 2 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
	if !e.HasModel(context.Background(), "llama3.1") {
		t.Error("HasModel(llama3.1) = false")
	}
	if e.HasModel(context.Background(), "mistral") {
		t.Error("HasModel(mistral) = true")
	}
}

func TestOllamaEngine_IsRunningDown(t *testing.T) {
	srv := ollamaStub(t, "", nil)
	srv.Close()
	if NewOllamaEngine(srv.URL, -1, 0).IsRunning(context.Background()) {
		t.Error("IsRunning() = true for a closed server")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	srv := ollamaStub(t, "", nil)

	var seen []PullProgress
	err := NewOllamaEngine(srv.URL, -1, 0).PullModel(context.Background(), "llama3.1", func(p PullProgress) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(seen) != 2 || seen[0].Percent() != 50 || seen[1].Status != "success" {
		t.Errorf("progress = %+v", seen)
	}

	if err := NewOllamaEngine(srv.URL, -1, 0).PullModel(context.Background(), "llama3.1", nil); err != nil {
		t.Errorf("PullModel with nil callback: %v", err)
	}
}
