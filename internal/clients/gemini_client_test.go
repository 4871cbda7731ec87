package clients

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

func geminiBody(text string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": text}},
				},
			},
		},
	})
	return string(payload)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(&GeminiConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		DefaultModel: "gemini-test",
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestInvokeSendsWireRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		fmt.Fprint(w, geminiBody(`{"annee_scolaire": "2024-2025", "source_tags": ["E2"]}`))
	})

	out, err := client.Invoke(context.Background(), &InvokeRequest{
		Instructions: "Extract the school year.",
		Payload:      "[E2] Année 2024-2025",
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "Extract the school year."+PayloadSeparator+"[E2] Année 2024-2025", gotBody.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMimeType)
	assert.JSONEq(t, `{"annee_scolaire": "2024-2025", "source_tags": ["E2"]}`, string(out))
}

func TestInvokeRecoversWrappedJSON(t *testing.T) {
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiBody(`Here is the JSON: {"ecole_unifie": "Lycée X", "source_tags": ["E1"]}`))
	})

	out, err := client.Invoke(context.Background(), &InvokeRequest{Instructions: "i", Payload: "p"})
	require.NoError(t, err)

	var got struct {
		School string   `json:"ecole_unifie"`
		Tags   []string `json:"source_tags"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "Lycée X", got.School)
	assert.Equal(t, []string{"E1"}, got.Tags)
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	var calls int32
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case 2:
			fmt.Fprint(w, geminiBody("I cannot answer that."))
		default:
			fmt.Fprint(w, geminiBody(`[1, 2]`))
		}
	})

	out, err := client.Invoke(context.Background(), &InvokeRequest{Instructions: "i", Payload: "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2]`, string(out))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestInvokeReturnsModelUnavailableAfterRetries(t *testing.T) {
	var calls int32
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	out, err := client.Invoke(context.Background(), &InvokeRequest{Instructions: "i", Payload: "p", MaxRetries: 2})

	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrModelUnavailable))
	assert.True(t, stderrors.Is(err, apperrors.ErrTransportFailure))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestLinearBackoff(t *testing.T) {
	delay := linearBackoff(5 * time.Second)
	assert.Equal(t, 5*time.Second, delay(1, nil, nil))
	assert.Equal(t, 10*time.Second, delay(2, nil, nil))
	assert.Equal(t, 15*time.Second, delay(3, nil, nil))
}

func TestInvokeWaitsLinearlyBetweenAttempts(t *testing.T) {
	const baseDelay = 60 * time.Millisecond

	var mu sync.Mutex
	var calls []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(&GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 4,
		BaseDelay:  baseDelay,
	})
	require.NoError(t, err)
	var logs strings.Builder
	client.logger = logging.NewLoggerWithWriter("ModelGateway", &logs)

	_, err = client.Invoke(context.Background(), &InvokeRequest{Model: "gemini-test"})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 4)
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		want := baseDelay * time.Duration(i)
		assert.GreaterOrEqual(t, gap, want, "gap %d", i)
		assert.Less(t, gap, want+baseDelay, "gap %d", i)
	}

	// three retries follow four attempts; the last failure is not announced as a retry
	assert.Equal(t, 3, strings.Count(logs.String(), "retrying"))
	assert.NotContains(t, logs.String(), "attempt=4 maxAttempts=4")
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "API key not valid", http.StatusBadRequest)
	})

	_, err := client.Invoke(context.Background(), &InvokeRequest{Instructions: "i", Payload: "p"})

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrModelUnavailable))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestInvokeRetriesWhenValidationFails(t *testing.T) {
	var calls int32
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, geminiBody(`{"unexpected": true}`))
			return
		}
		fmt.Fprint(w, geminiBody(`{"ecole_unifie": null, "source_tags": []}`))
	})

	schema := MustCompileSchema("school", `{
		"type": "object",
		"required": ["ecole_unifie", "source_tags"]
	}`)

	out, err := client.Invoke(context.Background(), &InvokeRequest{
		Instructions: "i",
		Payload:      "p",
		Validate:     schema.Validate,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "ecole_unifie"))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(&GeminiConfig{})
	assert.Error(t, err)
}
