// File: api/schemas/schemas.go
// Central, dependency-free types shared across package boundaries. Keeping them
// here prevents import cycles between the orchestrator, the decision agent and
// the perception layer.
package schemas

import "context"

// ModelTier selects which class of model backend serves a request.
type ModelTier string

const (
	// TierFast routes to the low latency model. Used by Responsive mode and
	// for cheap auxiliary calls (humanize, recognition post-processing).
	TierFast ModelTier = "fast"
	// TierPowerful routes to the strongest configured model. Used by
	// Deliberate mode and for batch planning / re-planning.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single model call.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
}

// GenerationRequest is the provider-agnostic request each model backend accepts.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Images       [][]byte          `json:"-"` // raw PNG payloads attached to the user turn
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// StreamHandler receives intermediate text chunks during a streaming generation.
// Implementations must be fast; the client calls it inline while reading the wire.
type StreamHandler func(chunk string)

// LLMClient is the contract every model backend satisfies. GenerateStream falls
// back to a single final chunk for backends without token streaming.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	GenerateStream(ctx context.Context, req GenerationRequest, onChunk StreamHandler) (string, error)
}
