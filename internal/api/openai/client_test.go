package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/testutil"
)

func apiKeyForReplay() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return "test-key"
}

func TestClient_CreateChatCompletion(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("VCR_MODE") == "record" {
		t.Skip("Skipping test: OPENAI_API_KEY not set")
	}

	recorder, cleanup := testutil.NewVCRRecorder(t, "openai_chat")
	defer cleanup()

	c := NewClient(apiKeyForReplay(), WithHTTPClient(testutil.VCRHTTPClient(recorder)))

	resp, err := c.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatCompletionMessage{{Role: "user", Content: "Say hello"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}

	if len(resp.Choices) == 0 {
		t.Fatal("Expected at least one choice")
	}
	if resp.Choices[0].Message.Content == "" {
		t.Error("Expected content in response")
	}
}

func TestClient_ListModels(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("VCR_MODE") == "record" {
		t.Skip("Skipping test: OPENAI_API_KEY not set")
	}

	recorder, cleanup := testutil.NewVCRRecorder(t, "openai_models")
	defer cleanup()

	c := NewClient(apiKeyForReplay(), WithHTTPClient(testutil.VCRHTTPClient(recorder)))

	list, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(list.Data) == 0 {
		t.Fatal("Expected at least one model")
	}
	if list.Data[0].ID == "" {
		t.Error("Expected model id")
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
		wantMsg  string
	}{
		{
			name:     "invalid key",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantType: domain.ErrorTypeAuthentication,
			wantMsg:  "Incorrect API key provided",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantType: domain.ErrorTypeRateLimit,
			wantMsg:  "Rate limit reached",
		},
		{
			name:     "plain text failure",
			status:   http.StatusBadGateway,
			body:     "upstream unavailable",
			wantType: domain.ErrorTypeServer,
			wantMsg:  "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer sk-x" {
					t.Errorf("Authorization = %q", got)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("sk-x", WithBaseURL(srv.URL+"/"))
			_, err := c.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "m"})
			if err == nil {
				t.Fatal("expected error")
			}

			apiErr := domain.AsAPIError(err)
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", apiErr.Type, tt.wantType)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestWithBaseURL_TrimsSlash(t *testing.T) {
	c := NewClient("k", WithBaseURL("http://localhost:11434/v1/"))
	if c.BaseURL() != "http://localhost:11434/v1" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}

	c = NewClient("k", WithBaseURL(""))
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("empty base URL should keep default, got %q", c.BaseURL())
	}
}
