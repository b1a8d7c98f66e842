package assist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatWithoutUpstreamDegradesToTestReply(t *testing.T) {
	c := New("", "", time.Second)

	reply, err := c.Chat(context.Background(), "p1", "what next?", nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply.Message != "Test reply to: what next?" {
		t.Fatalf("reply = %q", reply.Message)
	}
	if len(reply.Suggestions.Nodes) == 0 {
		t.Fatal("canned reply must still carry a suggestion for the panel")
	}
}

func TestChatRelaysAndAuthenticates(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		io.WriteString(w, `{"message":"Consider a lighthouse","suggestions":{"nodes":[{"title":"Lighthouse"}]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token", time.Second)
	reply, err := c.Chat(context.Background(), "p1", "what next?", json.RawMessage(`{"space":"material"}`))
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["projectId"] != "p1" || gotBody["message"] != "what next?" {
		t.Errorf("body = %v", gotBody)
	}
	if reply.Message != "Consider a lighthouse" || len(reply.Suggestions.Nodes) != 1 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestChatUpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	if _, err := c.Chat(context.Background(), "p1", "hello", nil); err == nil {
		t.Fatal("expected upstream error")
	}
}

func TestGenerateImagesDecodesBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// "png-bytes" base64-encoded.
		io.WriteString(w, `{"images":[{"b64":"cG5nLWJ5dGVz","contentType":"image/png"},{"b64":"cG5nLWJ5dGVz"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	images, err := c.GenerateImages(context.Background(), "p1", "a harbor", 2, nil, false)
	if err != nil {
		t.Fatalf("GenerateImages failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("images = %d, want 2", len(images))
	}
	if string(images[0].Data) != "png-bytes" {
		t.Errorf("decoded data = %q", images[0].Data)
	}
	if images[1].ContentType != "image/png" {
		t.Errorf("missing content type must default to png, got %q", images[1].ContentType)
	}
}

func TestGenerateImagesUnconfigured(t *testing.T) {
	c := New("", "", time.Second)
	if _, err := c.GenerateImages(context.Background(), "p1", "a harbor", 1, nil, false); err == nil {
		t.Fatal("expected error without an upstream")
	}
}
