package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vector(seed float32) []float32 {
	v := make([]float32, voyageDimensions)
	for i := range v {
		v[i] = seed
	}
	return v
}

func TestGenerateEmbeddingBatchOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer vk", r.Header.Get("Authorization"))

		var req VoyageEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, voyageModel, req.Model)

		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": vector(2)},
				{"index": 0, "embedding": vector(1)},
			},
			"usage": map[string]int{"total_tokens": 8},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewEmbeddingClientWithURL("vk", server.URL)
	require.NoError(t, err)

	got, err := client.GenerateEmbeddingBatch(context.Background(), []string{"Pixel CM2", "Lecture Facile"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float32(1), got[0][0])
	assert.Equal(t, float32(2), got[1][0])
}

func TestGenerateEmbeddingRejectsWrongDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer server.Close()

	client, err := NewEmbeddingClientWithURL("vk", server.URL)
	require.NoError(t, err)

	_, err = client.GenerateEmbedding(context.Background(), "x")
	assert.ErrorContains(t, err, "dimensions")
}

func TestGenerateEmbeddingRequiresText(t *testing.T) {
	client, err := NewEmbeddingClient("vk")
	require.NoError(t, err)

	_, err = client.GenerateEmbedding(context.Background(), "")
	assert.Error(t, err)
}
