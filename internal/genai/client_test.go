// internal/genai/client_test.go
package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ t testing.TB }

func (l testLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO %s %v", msg, fields) }
func (l testLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN %s %v", msg, fields) }
func (l testLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR %s %v", msg, fields) }
func (l testLogger) With(fields map[string]interface{}) Logger       { return l }

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		MaxRetries: maxRetries,
	}, testLogger{t})
}

func TestGenerateSuccess(t *testing.T) {
	var gotAuth string
	var gotReq Request

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"text": "generated answer"})
	}, 0)

	text, err := client.Generate(context.Background(), Request{
		Prompt:      "classify this",
		MaxTokens:   256,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "classify this", gotReq.Prompt)
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "ok after retries"})
	}, 2)

	text, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok after retries", text)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGenerateExhaustsRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, 1)

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGenerateEmptyText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "   "})
	}, 0)

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}, 0)

	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateContextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"text": "too late"})
	}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationTimeout)
}

func TestGenerateContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Generate(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationTimeout)
}
