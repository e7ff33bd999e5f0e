package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&Config{})
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("NewClient() error = %v, want %v", err, ErrAPIKeyRequired)
	}
}

func TestClient_GenerateContent(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(&Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	resp, err := client.GenerateContent(context.Background(), "strategy-model", &Request{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "Topic: 东京咖啡馆"}}}},
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	if gotPath != "/models/strategy-model:generateContent" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}

	text, err := ExtractText(resp)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("ExtractText() = %q, want %q", text, "hello")
	}
}

func TestClient_GenerateContent_StructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"status":"PERMISSION_DENIED","message":"key lacks model access"}}`)
	}))
	defer srv.Close()

	client, _ := NewClient(&Config{APIKey: "k", BaseURL: srv.URL})
	_, err := client.GenerateContent(context.Background(), "m", &Request{})
	if err == nil {
		t.Fatal("GenerateContent() error = nil, want APIError")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not *APIError", err)
	}
	if !apiErr.Unavailable() {
		t.Error("403 PERMISSION_DENIED should classify as unavailable")
	}
	if apiErr.Retryable() {
		t.Error("403 should not classify as retryable")
	}
	if got := ExtractMessage(err); got != "key lacks model access" {
		t.Errorf("ExtractMessage() = %q", got)
	}
}

func TestClient_GenerateContent_PlainBodyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "upstream overloaded")
	}))
	defer srv.Close()

	client, _ := NewClient(&Config{APIKey: "k", BaseURL: srv.URL})
	_, err := client.GenerateContent(context.Background(), "m", &Request{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not *APIError", err)
	}
	if !apiErr.Retryable() {
		t.Error("503 should classify as retryable")
	}
	if apiErr.Unavailable() {
		t.Error("503 should not trigger tier fallback")
	}
}

func TestAPIError_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         APIError
		unavailable bool
		retryable   bool
	}{
		{"permission denied", APIError{Code: 403, Status: "PERMISSION_DENIED"}, true, false},
		{"not found", APIError{HTTPStatus: 404}, true, false},
		{"rate limited", APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, false, true},
		{"server error", APIError{HTTPStatus: 500}, false, true},
		{"bad request", APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Unavailable(); got != tt.unavailable {
				t.Errorf("Unavailable() = %v, want %v", got, tt.unavailable)
			}
			if got := tt.err.Retryable(); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestExtractImage(t *testing.T) {
	resp := &Response{}
	resp.Candidates = append(resp.Candidates, struct {
		Content Content `json:"content"`
	}{Content: Content{Parts: []Part{
		{Text: "here is your cover"},
		{InlineData: &Blob{MimeType: "image/png", Data: "aW1hZ2U="}},
	}}})

	data, mime, err := ExtractImage(resp)
	if err != nil {
		t.Fatalf("ExtractImage() error = %v", err)
	}
	if data != "aW1hZ2U=" || mime != "image/png" {
		t.Errorf("ExtractImage() = (%q, %q)", data, mime)
	}

	if _, _, err := ExtractImage(&Response{}); err == nil {
		t.Error("ExtractImage() on empty response should error")
	}
}
