package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVeoClient_Generate(t *testing.T) {
	var got veoGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc123"}}`))
	}))
	defer srv.Close()

	c := NewVeoClient(srv.URL, "secret", "veo3_fast", "9:16", "https://example.com/cb")
	taskID, err := c.Generate(context.Background(), "a cat surfing")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if taskID != "abc123" {
		t.Fatalf("expected abc123, got %q", taskID)
	}
	if got.Prompt != "a cat surfing" || got.Model != "veo3_fast" || got.AspectRatio != "9:16" || got.CallBackURL != "https://example.com/cb" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestVeoClient_Generate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"missing task id", http.StatusOK, `{"code":402,"msg":"insufficient credits","data":null}`},
		{"server error", http.StatusBadGateway, `oops`},
		{"invalid json", http.StatusOK, `not json`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewVeoClient(srv.URL, "secret", "veo3_fast", "9:16", "")
			_, err := c.Generate(context.Background(), "prompt")

			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
		})
	}
}
