package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_SendsImagesAndJSONFormat(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: `{"category":"furniture"}`},
			Done:    true,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llava")
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "user", Content: "describe", Images: []llm.Image{{Data: []byte("jpegbytes"), MimeType: "image/jpeg"}}},
	}, llm.WithJSON(), llm.WithTemperature(0))
	require.NoError(t, err)

	assert.Equal(t, `{"category":"furniture"}`, out)
	assert.Equal(t, "llava", got.Model)
	assert.Equal(t, "json", got.Format)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Images, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpegbytes")), got.Messages[0].Images[0])
	assert.Equal(t, float64(0), got.Options.Temperature)
}

func TestChat_ModelOverride(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "ok"}})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
	_, err := p.Generate(context.Background(), "hi", llm.WithModel("qwen2.5"))
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", got.Model)
}

func TestChat_StatusClassification(t *testing.T) {
	status := http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llava")

	_, err := p.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, apperrors.IsInput(err), "400 is a payload problem")

	status = http.StatusServiceUnavailable
	_, err = p.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.False(t, apperrors.IsInput(err), "503 must stay retryable")
}
