package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestNewHTTPValidation(t *testing.T) {
	if _, err := NewHTTP(HTTPConfig{}); err == nil {
		t.Fatalf("expected error when url is missing")
	}
}

func TestHTTPClassify(t *testing.T) {
	var captured analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"ok","intent":"swap","parameters":{"amount":0.5,"fromToken":"USDC","toToken":null}}`))
	}))
	defer srv.Close()

	c, err := NewHTTP(HTTPConfig{URL: srv.URL + "/analyze", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Classify(context.Background(), "swap half a usdc", "99")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if captured.Message != "swap half a usdc" || captured.ChatID != "99" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if got.Intent != "swap" || got.Response != "ok" {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.Parameters["amount"] != "0.5" || got.Parameters["fromToken"] != "USDC" {
		t.Fatalf("unexpected parameters: %+v", got.Parameters)
	}
	if _, ok := got.Parameters["toToken"]; ok {
		t.Fatalf("null parameter should be dropped")
	}
}

func TestHTTPClassifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"No message provided"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewHTTP(HTTPConfig{URL: srv.URL, Timeout: time.Second})
	if _, err := c.Classify(context.Background(), "x", "1"); err == nil {
		t.Fatalf("expected error for 400")
	}
}

func TestHTTPClassifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewHTTP(HTTPConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})
	started := time.Now()
	if _, err := c.Classify(context.Background(), "x", "1"); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(started) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

type fakeCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
	}}}
}

func TestNewOpenAIValidation(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestOpenAIClassify(t *testing.T) {
	fc := &fakeCompleter{resp: completion(`{"intent":"send","parameters":{"amount":"2","token":"USDC","recipient":null},"response":""}`)}
	c := NewOpenAIWithClient(fc, "", time.Second)

	got, err := c.Classify(context.Background(), "send 2 usdc", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Intent != "send" || got.Parameters["amount"] != "2" || got.Parameters["token"] != "USDC" {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if fc.req.Model != defaultModelName {
		t.Fatalf("unexpected model %q", fc.req.Model)
	}
	if fc.req.ResponseFormat == nil || fc.req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("json mode not requested")
	}
	if len(fc.req.Messages) != 2 || fc.req.Messages[1].Content != "send 2 usdc" {
		t.Fatalf("unexpected messages: %+v", fc.req.Messages)
	}
}

func TestOpenAIClassifyFailures(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"transport": {err: errors.New("boom")},
		"empty":     {resp: openai.ChatCompletionResponse{}},
		"not json":  {resp: completion("sure, swapping now")},
	}
	for name, fc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewOpenAIWithClient(fc, "m", time.Second).Classify(context.Background(), "x", "1"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
