// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
)

// Router implements schemas.LLMClient and dispatches on the request's Tier.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// Statically assert that Router satisfies the client contract.
var _ schemas.LLMClient = (*Router)(nil)

// NewRouter creates a router with the given clients per tier.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

func (r *Router) resolve(tier schemas.ModelTier) (schemas.LLMClient, error) {
	if tier == "" {
		tier = schemas.TierPowerful
	}
	client, ok := r.clients[tier]
	if !ok {
		return nil, fmt.Errorf("no model client configured for tier: %s", tier)
	}
	r.logger.Debug("Routing model request", zap.String("tier", string(tier)))
	return client, nil
}

// Generate selects the appropriate client based on the request's tier.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	client, err := r.resolve(req.Tier)
	if err != nil {
		return "", err
	}
	return client.Generate(ctx, req)
}

// GenerateStream selects the appropriate client based on the request's tier.
func (r *Router) GenerateStream(ctx context.Context, req schemas.GenerationRequest, onChunk schemas.StreamHandler) (string, error) {
	client, err := r.resolve(req.Tier)
	if err != nil {
		return "", err
	}
	return client.GenerateStream(ctx, req, onChunk)
}
