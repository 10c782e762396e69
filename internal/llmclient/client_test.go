// File: internal/llmclient/client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"))
}

func testModelConfig(endpoint string) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:      config.ProviderOpenAI,
		Model:         "autoglm-phone",
		APIKey:        "test-key",
		Endpoint:      endpoint,
		APITimeout:    5 * time.Second,
		RatePerSecond: 1000, // tests should never wait on the limiter
	}
}

func chatResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q},"finish_reason":"stop"}],"usage":{"total_tokens":10}}`, content)
}

func TestOpenAIGenerate(t *testing.T) {
	var gotAuth string
	var gotPayload chatRequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, chatResponse(`{"action":"TAP"}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "you are a phone agent",
		UserPrompt:   "tap the thing",
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"TAP"}`, out)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "autoglm-phone", gotPayload.Model)
	require.Len(t, gotPayload.Messages, 2)
	assert.Equal(t, "system", gotPayload.Messages[0].Role)
	assert.Equal(t, "user", gotPayload.Messages[1].Role)
	require.NotNil(t, gotPayload.ResponseFmt)
	assert.Equal(t, "json_object", gotPayload.ResponseFmt.Type)
}

func TestOpenAIGenerateAttachesImages(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, chatResponse("ok"))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{
		UserPrompt: "what do you see",
		Images:     [][]byte{{0x89, 0x50, 0x4e, 0x47}},
	})
	require.NoError(t, err)

	messages := raw["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[0].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.Contains(t, url, "data:image/png;base64,")
}

func TestOpenAIGenerateRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatResponse("eventually"))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "eventually", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIGenerateDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, IsModelCallError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"think\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ing...\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	var chunks []string
	out, err := client.GenerateStream(context.Background(), schemas.GenerationRequest{UserPrompt: "x"},
		func(chunk string) { chunks = append(chunks, chunk) })
	require.NoError(t, err)
	assert.Equal(t, "thinking...", out)
	assert.Equal(t, []string{"think", "ing..."}, chunks)
}

func TestOpenAIClientRequiresEndpoint(t *testing.T) {
	cfg := testModelConfig("")
	_, err := NewOpenAIClient(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

// tierEcho answers with its own name so routing is observable.
type tierEcho string

func (c tierEcho) Generate(context.Context, schemas.GenerationRequest) (string, error) {
	return string(c), nil
}
func (c tierEcho) GenerateStream(_ context.Context, _ schemas.GenerationRequest, onChunk schemas.StreamHandler) (string, error) {
	if onChunk != nil {
		onChunk(string(c))
	}
	return string(c), nil
}

func TestRouterDispatchesByTier(t *testing.T) {
	router, err := NewRouter(zaptest.NewLogger(t), tierEcho("fast"), tierEcho("powerful"))
	require.NoError(t, err)

	cases := []struct {
		tier schemas.ModelTier
		want string
	}{
		{schemas.TierFast, "fast"},
		{schemas.TierPowerful, "powerful"},
		{"", "powerful"}, // unset tier defaults to the strongest model
	}
	for _, tc := range cases {
		out, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: tc.tier})
		require.NoError(t, err)
		assert.Equal(t, tc.want, out)
	}
}

func TestRouterRejectsUnknownTier(t *testing.T) {
	router, err := NewRouter(zaptest.NewLogger(t), tierEcho("fast"), tierEcho("powerful"))
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: "psychic"})
	require.Error(t, err)
}

func TestRouterRequiresBothClients(t *testing.T) {
	_, err := NewRouter(zaptest.NewLogger(t), nil, tierEcho("powerful"))
	require.Error(t, err)
}

func TestNewRouterFromConfig(t *testing.T) {
	cfg := config.LLMRouterConfig{
		FastModel:     "small",
		PowerfulModel: "big",
		VisionModel:   "small",
		Models: map[string]config.LLMModelConfig{
			"small": {Provider: config.ProviderOpenAI, Endpoint: "http://127.0.0.1:1", Model: "m1"},
			"big":   {Provider: config.ProviderOpenAI, Endpoint: "http://127.0.0.1:1", Model: "m2"},
		},
	}
	router, err := NewRouterFromConfig(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, router)

	vision, err := NewVisionClientFromConfig(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, vision)
}

func TestNewRouterFromConfigUnknownModel(t *testing.T) {
	cfg := config.LLMRouterConfig{
		FastModel:     "missing",
		PowerfulModel: "missing",
		Models:        map[string]config.LLMModelConfig{},
	}
	_, err := NewRouterFromConfig(cfg, zaptest.NewLogger(t))
	require.Error(t, err)

	_, err = NewVisionClientFromConfig(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := newClient(config.LLMModelConfig{Provider: "carrier-pigeon"}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestModelCallErrorClassification(t *testing.T) {
	base := errors.New("connection refused")
	err := NewModelCallError("openai", "autoglm-phone", base)

	assert.True(t, IsModelCallError(err))
	assert.True(t, IsModelCallError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsModelCallError(base))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "openai/autoglm-phone")
}
