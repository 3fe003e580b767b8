package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptlens/promptlens-backend/pkg/config"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/rs/zerolog"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Timeout: 2 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(config.OpenAIConfig{}, testLogger()); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewClient(config.OpenAIConfig{APIKey: "k"}, nil); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestDescribeImageReturnsPromptText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model %q", req.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  a cinematic portrait, soft light  "}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	prompt, err := client.DescribeImage(context.Background(), "data:image/png;base64,abc", "cinematic")
	if err != nil {
		t.Fatalf("describe image: %v", err)
	}
	if prompt != "a cinematic portrait, soft light" {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}

func TestDescribeImageMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode pkgerrors.Code
	}{
		{"unauthorized", http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{"rate limited", http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{"bad request", http.StatusBadRequest, pkgerrors.CodeValidation},
		{"server error", http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.DescribeImage(context.Background(), "data:image/png;base64,abc", "")
			if err == nil {
				t.Fatal("expected error")
			}
			domainErr := pkgerrors.As(err)
			if domainErr == nil {
				t.Fatalf("expected domain error, got %v", err)
			}
			if domainErr.Code() != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, domainErr.Code())
			}
		})
	}
}

func TestDescribeImageRejectsEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.DescribeImage(context.Background(), "data:image/png;base64,abc", ""); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestDescribeImageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.DescribeImage(context.Background(), "data:image/png;base64,abc", "")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	domainErr := pkgerrors.As(err)
	if domainErr == nil {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Code() != pkgerrors.CodeTimeout {
		t.Fatalf("expected timeout code, got %s", domainErr.Code())
	}
}
