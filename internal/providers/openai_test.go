package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func newTestProvider(baseURL string) *OpenAIProvider {
	return NewOpenAIProvider("openai", "test-key", baseURL, "gpt-4o-mini", 10*time.Second, 0)
}

func writeTempAudio(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "audio_*.ogg")
	if err != nil {
		t.Fatalf("create temp audio file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp audio file: %v", err)
	}
	f.Close()
	return f.Name()
}

// --- Chat ---

func TestChat_FinalContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization: %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"Olá!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Olá!" {
		t.Errorf("expected content Olá!, got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish_reason stop, got %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 13 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChat_ToolCallsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","function":{"name":"buscar_conhecimento","arguments":"{\"query\":\"drywall\"}"}}]},"finish_reason":"tool_calls"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "quanto custa?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "buscar_conhecimento" {
		t.Errorf("unexpected tool name: %q", tc.Name)
	}
	if tc.Arguments["query"] != "drywall" {
		t.Errorf("unexpected arguments: %v", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("expected finish_reason tool_calls, got %q", resp.FinishReason)
	}
}

func TestChat_WireFormat(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "t", Arguments: map[string]interface{}{"a": "b"}}}},
			{Role: "tool", Content: "resultado", ToolCallID: "c1"},
		},
		Tools:       []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{Name: "t"}}},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := got["messages"].([]interface{})
	asst := msgs[1].(map[string]interface{})
	if _, hasContent := asst["content"]; hasContent {
		t.Error("assistant message with tool_calls should omit empty content")
	}
	tcs := asst["tool_calls"].([]interface{})
	fn := tcs[0].(map[string]interface{})["function"].(map[string]interface{})
	if _, isString := fn["arguments"].(string); !isString {
		t.Error("tool call arguments must be a JSON string on the wire")
	}
	toolMsg := msgs[2].(map[string]interface{})
	if toolMsg["tool_call_id"] != "c1" {
		t.Errorf("expected tool_call_id c1, got %v", toolMsg["tool_call_id"])
	}
	if got["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", got["tool_choice"])
	}
	if got["max_tokens"].(float64) != 512 {
		t.Errorf("expected max_tokens 512, got %v", got["max_tokens"])
	}
}

func TestChat_VisionImagesAsDataURL(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"uma foto"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{
			Role:    "user",
			Content: "descreva",
			Images:  []ImageContent{{MimeType: "image/jpeg", Data: "aGVsbG8="}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := got["messages"].([]interface{})
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("expected image + text parts, got %d", len(parts))
	}
	img := parts[0].(map[string]interface{})
	url := img["image_url"].(map[string]interface{})["url"].(string)
	if url != "data:image/jpeg;base64,aGVsbG8=" {
		t.Errorf("unexpected data URL: %q", url)
	}
}

func TestChat_HTTPErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "oi"}}})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if httpErr.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", httpErr.Status)
	}
	if httpErr.Retryable() {
		t.Error("400 must not be retryable")
	}
}

// --- Transcribe ---

func TestTranscribe_Success(t *testing.T) {
	audioFile := writeTempAudio(t, "fake-ogg-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected 'file' field: %v", err)
		}
		if lang := r.FormValue("language"); lang != "pt" {
			t.Errorf("expected language pt, got %q", lang)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", model)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transcribeResponse{Text: "quero um orçamento"})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	text, err := p.Transcribe(context.Background(), audioFile, "pt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "quero um orçamento" {
		t.Errorf("unexpected transcript: %q", text)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected HTTP call for missing file")
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	if _, err := p.Transcribe(context.Background(), "/nonexistent/file.ogg", "pt"); err == nil {
		t.Fatal("expected an error for missing file")
	}
}

func TestTranscribe_UpstreamError(t *testing.T) {
	audioFile := writeTempAudio(t, "fake-ogg-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	if _, err := p.Transcribe(context.Background(), audioFile, "pt"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

// --- Embed ---

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	vec, err := p.Embed(context.Background(), "drywall")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
}

func TestEmbed_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty embedding data")
	}
}

// --- Retry ---

func TestRetryDo_RetriesOn429(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	result, err := RetryDo(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{Status: 429, Body: "slow down"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("expected success on 3rd call, got %q after %d calls", result, calls)
	}
}

func TestRetryDo_NoRetryOn400(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		calls++
		return "", &HTTPError{Status: 400, Body: "bad"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("400 must not be retried, got %d calls", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter("5"); d != 5*time.Second {
		t.Errorf("expected 5s, got %v", d)
	}
	if d := ParseRetryAfter(""); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
	if d := ParseRetryAfter("garbage"); d != 0 {
		t.Errorf("expected 0 for garbage, got %v", d)
	}
}
