package agentcall

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigfan007/ai-workmate/internal/models"
)

func newTestBridge(deepSeekEndpoint string) *Bridge {
	b := New(deepSeekEndpoint, 5*time.Second)
	b.waits = []time.Duration{0, 0, 0}
	return b
}

func difyAgent(endpoint string) *models.AIAgent {
	return &models.AIAgent{
		Name:            "writer",
		IntegrationType: models.IntegrationAPI,
		APIEndpoint:     endpoint,
		APIKey:          "app-key",
	}
}

func TestReply_DifySuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"hello there"}`))
	}))
	defer srv.Close()

	b := newTestBridge("")
	answer, err := b.Reply(context.Background(), difyAgent(srv.URL), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", answer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReply_DeepSeekSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	}))
	defer srv.Close()

	b := newTestBridge(srv.URL)
	agent := &models.AIAgent{
		Name:            "analyst",
		IntegrationType: models.IntegrationDeepSeek,
		DeepSeekAPIKey:  "sk-test",
		SystemPrompt:    "be terse",
	}
	answer, err := b.Reply(context.Background(), agent, "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

func TestReply_Persistent5xxAttemptsFourTimes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := newTestBridge("")
	_, err := b.Reply(context.Background(), difyAgent(srv.URL), "hi")
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Contains(t, err.Error(), "Dify API call failed")
	assert.Contains(t, err.Error(), "HTTP 502")
}

type refusingTransport struct {
	calls atomic.Int32
}

func (t *refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return nil, syscall.ECONNREFUSED
}

func TestReply_ConnectionRefusedDoesNotRetry(t *testing.T) {
	b := newTestBridge("")
	rt := &refusingTransport{}
	b.Client = &http.Client{Transport: rt}

	_, err := b.Reply(context.Background(), difyAgent("http://127.0.0.1:1"), "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), rt.calls.Load())
	assert.Contains(t, err.Error(), "refused the connection")
}

func TestReply_4xxDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := newTestBridge(srv.URL)
	agent := &models.AIAgent{
		Name:            "analyst",
		IntegrationType: models.IntegrationDeepSeek,
		DeepSeekAPIKey:  "sk-bad",
	}
	_, err := b.Reply(context.Background(), agent, "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "API key is invalid or expired")
}

func TestReply_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"finally"}`))
	}))
	defer srv.Close()

	b := newTestBridge("")
	answer, err := b.Reply(context.Background(), difyAgent(srv.URL), "hi")
	require.NoError(t, err)
	assert.Equal(t, "finally", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReply_MissingConfig(t *testing.T) {
	b := newTestBridge("")

	_, err := b.Reply(context.Background(), &models.AIAgent{
		Name:            "ghost",
		IntegrationType: models.IntegrationAPI,
	}, "hi")
	assert.Error(t, err)

	_, err = b.Reply(context.Background(), &models.AIAgent{
		Name:            "widget",
		IntegrationType: models.IntegrationIframe,
		ChatbotURL:      "https://embed.example.com/bot",
	}, "hi")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"refused", syscall.ECONNREFUSED, false},
		{"reset", syscall.ECONNRESET, true},
		{"server error", &statusError{Code: 503}, true},
		{"client error", &statusError{Code: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, classify(tc.err).retryable)
		})
	}
}
