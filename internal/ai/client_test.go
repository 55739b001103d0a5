package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// testServerSequence answers with statuses[i] on the i-th call, repeating
// the last status once the list runs out. It reports the call count.
func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) (*ipv4Server, *int32) {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		if st >= 200 && st < 300 {
			w.WriteHeader(st)
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		w.WriteHeader(st)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	})), &idx
}

func okResponse(text string) GenerateResponse {
	return GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: text}}},
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func hi() []Message { return []Message{{Role: "user", Content: "hi"}} }

func TestGenerateIsSingleAttempt(t *testing.T) {
	srv, calls := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"2"}}, {}}, okResponse("ok"))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "test-model", Messages: hi(), MaxTokens: 1})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 2*time.Second {
		t.Fatalf("expected Retry-After of 2s, got %v", rl.RetryAfter)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv, _ := testServerSequence(t, []int{200}, []http.Header{{"X-Request-Id": {"req_ok"}}}, okResponse("ok"))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "test-model", Messages: hi()})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text() != "ok" || resp.Usage.TotalTokens != 15 || resp.RequestID != "req_ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "test-model", Messages: hi(), MaxTokens: 1})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
	var bad *BadRequestError
	if !errors.As(err, &bad) {
		t.Fatalf("expected BadRequestError, got %T", err)
	}
}

func TestClassifyAPIErrorStatuses(t *testing.T) {
	cases := []struct {
		status int
		code   string
		msg    string
		check  func(error) bool
	}{
		{401, "", "nope", func(e error) bool { var x *AuthError; return errors.As(e, &x) }},
		{403, "", "nope", func(e error) bool { var x *AuthError; return errors.As(e, &x) }},
		{404, "model_not_found", "", func(e error) bool { var x *ModelNotFoundError; return errors.As(e, &x) }},
		{400, "context_length_exceeded", "too long", func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{400, "", "This model's maximum context length is 8192 tokens", func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{400, "", "invalid field", func(e error) bool { var x *BadRequestError; return errors.As(e, &x) }},
		{402, "", "insufficient credits", func(e error) bool { var x *QuotaExceededError; return errors.As(e, &x) }},
		{429, "insufficient_quota", "You exceeded your current quota", func(e error) bool { var x *QuotaExceededError; return errors.As(e, &x) }},
		{429, "", "slow down", func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{503, "", "overloaded", func(e error) bool { var x *ServerError; return errors.As(e, &x) }},
	}
	for _, tc := range cases {
		err := classifyAPIError(&APIError{StatusCode: tc.status, Code: tc.code, Message: tc.msg}, http.Header{})
		if !tc.check(err) {
			t.Fatalf("status %d code %q: unexpected classification %T (%v)", tc.status, tc.code, err, err)
		}
	}
}

func TestGenerateMissingKey(t *testing.T) {
	c := NewClient("", time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hi()})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected env var hint, got %v", err)
	}
}

func TestGenerateEmptyChoicesIsRetryable(t *testing.T) {
	srv, _ := testServerSequence(t, []int{200}, nil, GenerateResponse{})
	defer srv.Close()
	c := NewClientWithBaseURL("test", 2*time.Second, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hi()})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if retry, _ := Classify(err); !retry {
		t.Fatalf("empty response should be retryable")
	}
}
