package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sigamony/DataViz/internal/pipeline"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"dataset not found: nope","type":"dataset_not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points CLI commands at ts for the duration of the test.
func (ts *testServer) useClient(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestClient_SendsBearerToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]string
	if err := decodeJSON(resp, &out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q", out["status"])
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q", ts.requests[0].Auth)
	}
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{}`})
	c := ts.client()
	c.token = ""
	resp, err := c.get(ctx, "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want none", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_APIError(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/datasets/nope")
	if err != nil {
		t.Fatal(err)
	}
	err = decodeJSON(resp, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isErrorType(err, "dataset_not_found") {
		t.Errorf("err = %v, want dataset_not_found", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %q, want status code", err.Error())
	}
}

func TestClient_CallSendsJSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /sessions": `{"session_id":"s1"}`})

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := ts.client().call(ctx, http.MethodPost, "/sessions", map[string]string{"profile_tag": "demo"}, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.SessionID != "s1" {
		t.Errorf("session_id = %q", out.SessionID)
	}
	r := ts.requests[0]
	if r.ContentType != "application/json" || !strings.Contains(r.Body, `"profile_tag":"demo"`) {
		t.Errorf("request = %+v", r)
	}
}

func TestClient_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestClient_UploadMultipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /datasets": `{"file_id":"d1"}`})
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var created struct {
		FileID string `json:"file_id"`
	}
	if err := ts.client().upload(ctx, path, &created); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if created.FileID != "d1" {
		t.Errorf("file_id = %q", created.FileID)
	}

	r := ts.requests[0]
	mediaType, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q, err = %v", r.ContentType, err)
	}
	part, err := multipart.NewReader(strings.NewReader(r.Body), params["boundary"]).NextPart()
	if err != nil {
		t.Fatalf("reading part: %v", err)
	}
	if part.FormName() != "file" || part.FileName() != "sales.csv" {
		t.Errorf("part = %s/%s", part.FormName(), part.FileName())
	}
	data, _ := io.ReadAll(part)
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("content = %q", data)
	}
}

func TestAskCommand_WritesChart(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	n := 2
	body, _ := json.Marshal(pipeline.Response{
		Type:         pipeline.TypeImage,
		Success:      true,
		Image:        base64.StdEncoding.EncodeToString(png),
		Code:         "plt.plot([1, 2])",
		MessageCount: &n,
	})
	ts := newTestServer(t, map[string]string{"POST /generate": string(body)})
	ts.useClient(t)

	out := filepath.Join(t.TempDir(), "chart.png")
	if err := execute(t, "--no-color", "ask", "d1", "plot", "sales", "--session", "s1", "--out", out); err != nil {
		t.Fatalf("ask: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading chart: %v", err)
	}
	if !bytes.Equal(got, png) {
		t.Errorf("chart bytes = %q", got)
	}

	var sent map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["file_id"] != "d1" || sent["query"] != "plot sales" || sent["session_id"] != "s1" {
		t.Errorf("request body = %v", sent)
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	err := execute(t, "ask", "d1")
	if err == nil {
		t.Fatal("expected error for missing question")
	}
	if !strings.Contains(err.Error(), "requires at least 2 arg(s)") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestPrintResponse_Error(t *testing.T) {
	r := pipeline.Response{Type: pipeline.TypeError, Error: "Execution error: boom", Code: "throw 1"}
	if err := printResponse(r, filepath.Join(t.TempDir(), "x.png"), false); err != nil {
		t.Fatalf("render errors are reported, not returned: %v", err)
	}
}

func TestPrintResponse_BadImage(t *testing.T) {
	r := pipeline.Response{Type: pipeline.TypeImage, Image: "%%%"}
	if err := printResponse(r, filepath.Join(t.TempDir(), "x.png"), false); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestHistoryPath_Escapes(t *testing.T) {
	got := historyPath("s 1", "d/2")
	want := "/sessions/s%201/datasets/d%2F2/history"
	if got != want {
		t.Errorf("historyPath = %q, want %q", got, want)
	}
}

func TestClearCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{"DELETE /sessions/s1/datasets/d1/history": `{"cleared":true}`})
	ts.useClient(t)

	if err := execute(t, "clear", "s1", "d1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ts.requests[0].Method != http.MethodDelete {
		t.Errorf("method = %s", ts.requests[0].Method)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(3, 50); got != "3" {
		t.Errorf("countLabel(3) = %q", got)
	}
	if got := countLabel(50, 50); got != "50+" {
		t.Errorf("countLabel(50) = %q", got)
	}
}

func TestPrintHelpers_WriteToStatusOut(t *testing.T) {
	var status, data bytes.Buffer
	oldStatus, oldData, oldColor := statusOut, dataOut, noColor
	statusOut, dataOut, noColor = &status, &data, true
	defer func() { statusOut, dataOut, noColor = oldStatus, oldData, oldColor }()

	printSuccess("saved %s", "chart.png")
	printStatus("Rows", "%d", 3)
	printCode("chart.bar(x, y)")

	if got := status.String(); got != "✓ saved chart.png\n  Rows: 3\n" {
		t.Errorf("status = %q", got)
	}
	if data.String() != "chart.bar(x, y)\n" {
		t.Errorf("data = %q", data.String())
	}
}
