package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/woofstack/platform/functions"
	"github.com/woofstack/platform/log"
	"github.com/woofstack/platform/metrics"
)

const echoHandlerSource = `
local M = {}
function M.handler(event)
  return event
end
return M
`

const constHandlerSource = `
local M = {}
function M.handler(event)
  return { v = 42 }
end
return M
`

func newLambdaServer(t *testing.T) *httptest.Server {
	t.Helper()

	base := t.TempDir()
	manager, err := functions.NewManager(functions.Config{
		MetadataDir:    filepath.Join(base, "metadata"),
		ZipsDir:        filepath.Join(base, "zips"),
		InstallDir:     filepath.Join(base, "installs"),
		CallWoofElSize: 8192,
		InvokeTimeout:  10 * time.Second,
	}, &functions.InProcessSpawner{}, log.Nop(), metrics.NewCollector("test"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(manager.Shutdown)

	ts := httptest.NewServer(Wrap(NewLambdaHandler(manager, log.Nop()), log.Nop()))
	t.Cleanup(ts.Close)
	return ts
}

func b64Zip(t *testing.T, source string) string {
	t.Helper()
	data, err := functions.ZipBundle(map[string]string{"main.lua": source})
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func createFunction(t *testing.T, ts *httptest.Server, name, source string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"FunctionName": name,
		"Handler":      "main.handler",
		"Code":         map[string]string{"ZipFile": b64Zip(t, source)},
	})
	resp, err := http.Post(ts.URL+"/2015-03-31/functions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func do(t *testing.T, method, url string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// S1: create a function and invoke it with a response.
func TestLambda_CreateAndInvoke(t *testing.T) {
	ts := newLambdaServer(t)

	resp := createFunction(t, ts, "echo", echoHandlerSource)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	meta := decodeJSON(t, resp)
	if meta["CodeSha256"] == "" || meta["CodeSha256"] == nil {
		t.Error("create response missing CodeSha256")
	}
	if _, ok := meta["Code"]; ok {
		t.Error("create response must not echo the Code field")
	}
	if meta["FunctionName"] != "echo" {
		t.Errorf("FunctionName = %v", meta["FunctionName"])
	}

	resp = do(t, http.MethodPost, ts.URL+"/2015-03-31/functions/echo/invocations",
		[]byte(`{"x":1}`), map[string]string{"X-Amz-Invocation-Type": "RequestResponse"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invoke status = %d", resp.StatusCode)
	}
	result := decodeJSON(t, resp)
	if result["x"] != float64(1) {
		t.Errorf("invoke result = %v, want {x:1}", result)
	}
}

// S2: update code, subsequent invoke returns the new result.
func TestLambda_UpdateCode(t *testing.T) {
	ts := newLambdaServer(t)
	resp := createFunction(t, ts, "echo", echoHandlerSource)
	resp.Body.Close()

	body, _ := json.Marshal(map[string]string{"ZipFile": b64Zip(t, constHandlerSource)})
	resp = do(t, http.MethodPut, ts.URL+"/2015-03-31/functions/echo/code", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPost, ts.URL+"/2015-03-31/functions/echo/invocations", []byte(`{"x":1}`), nil)
	result := decodeJSON(t, resp)
	if result["v"] != float64(42) {
		t.Errorf("result after update = %v, want {v:42}", result)
	}
}

func TestLambda_UpdateCodeUnknown(t *testing.T) {
	ts := newLambdaServer(t)
	body, _ := json.Marshal(map[string]string{"ZipFile": b64Zip(t, echoHandlerSource)})
	resp := do(t, http.MethodPut, ts.URL+"/2015-03-31/functions/ghost/code", body, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	errBody := decodeJSON(t, resp)
	if errBody["errorType"] != "ResourceNotFoundException" {
		t.Errorf("errorType = %v", errBody["errorType"])
	}
}

// S3: delete, then invoke returns 404.
func TestLambda_DeleteThenInvoke(t *testing.T) {
	ts := newLambdaServer(t)
	resp := createFunction(t, ts, "echo", echoHandlerSource)
	resp.Body.Close()

	resp = do(t, http.MethodDelete, ts.URL+"/2015-03-31/functions/echo", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPost, ts.URL+"/2015-03-31/functions/echo/invocations", []byte(`{}`), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("invoke after delete status = %d, want 404", resp.StatusCode)
	}
	errBody := decodeJSON(t, resp)
	if errBody["errorType"] != "ResourceNotFoundException" {
		t.Errorf("errorType = %v", errBody["errorType"])
	}
}

// S6: an oversized payload is rejected with 413.
func TestLambda_RequestTooLarge(t *testing.T) {
	ts := newLambdaServer(t)
	resp := createFunction(t, ts, "echo", echoHandlerSource)
	resp.Body.Close()

	payload := []byte(`{"data":"` + strings.Repeat("a", 16384) + `"}`)
	resp = do(t, http.MethodPost, ts.URL+"/2015-03-31/functions/echo/invocations", payload, nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	errBody := decodeJSON(t, resp)
	if errBody["errorType"] != "RequestTooLargeException" {
		t.Errorf("errorType = %v", errBody["errorType"])
	}
}

func TestLambda_CreateValidation(t *testing.T) {
	ts := newLambdaServer(t)

	post := func(body map[string]any) *http.Response {
		data, _ := json.Marshal(body)
		resp, err := http.Post(ts.URL+"/2015-03-31/functions", "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	zip := b64Zip(t, echoHandlerSource)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad function name", map[string]any{"FunctionName": "my.fn", "Handler": "main.handler", "Code": map[string]string{"ZipFile": zip}}},
		{"handler without dot", map[string]any{"FunctionName": "fn", "Handler": "handler", "Code": map[string]string{"ZipFile": zip}}},
		{"missing zip", map[string]any{"FunctionName": "fn", "Handler": "main.handler"}},
		{"invalid base64", map[string]any{"FunctionName": "fn", "Handler": "main.handler", "Code": map[string]string{"ZipFile": "!!!"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestLambda_CreateConflict(t *testing.T) {
	ts := newLambdaServer(t)

	resp := createFunction(t, ts, "dup", echoHandlerSource)
	resp.Body.Close()

	resp = createFunction(t, ts, "dup", echoHandlerSource)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", resp.StatusCode)
	}
	errBody := decodeJSON(t, resp)
	if errBody["errorType"] != "ResourceConflictException" {
		t.Errorf("errorType = %v", errBody["errorType"])
	}
}

func TestLambda_EventInvocation(t *testing.T) {
	ts := newLambdaServer(t)
	resp := createFunction(t, ts, "echo", echoHandlerSource)
	resp.Body.Close()

	resp = do(t, http.MethodPost, ts.URL+"/2015-03-31/functions/echo/invocations",
		[]byte(`{"x":1}`), map[string]string{"X-Amz-Invocation-Type": "Event"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("event invoke status = %d, want 202", resp.StatusCode)
	}
}

func TestLambda_GetAndList(t *testing.T) {
	ts := newLambdaServer(t)
	resp := createFunction(t, ts, "one", echoHandlerSource)
	resp.Body.Close()

	resp = do(t, http.MethodGet, ts.URL+"/2015-03-31/functions/one", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	meta := decodeJSON(t, resp)
	if meta["Handler"] != "main.handler" {
		t.Errorf("Handler = %v", meta["Handler"])
	}

	resp = do(t, http.MethodGet, ts.URL+"/2015-03-31/functions", nil, nil)
	list := decodeJSON(t, resp)
	fns, ok := list["Functions"].([]any)
	if !ok || len(fns) != 1 {
		t.Errorf("Functions = %v", list["Functions"])
	}
}

func TestLambda_StatsEndpoint(t *testing.T) {
	ts := newLambdaServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/_woofstack/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	snap := decodeJSON(t, resp)
	if snap["Service"] != "test" {
		t.Errorf("Service = %v", snap["Service"])
	}
}
