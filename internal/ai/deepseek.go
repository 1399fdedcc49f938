package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/logger"
)

// DeepSeekReasoner asks an OpenAI-compatible chat endpoint for a proposal.
type DeepSeekReasoner struct {
	client *openai.Client
	model  string
	cfg    *config.Config
	logger *logger.Logger
}

func NewDeepSeekReasoner(cfg *config.Config, log *logger.Logger) *DeepSeekReasoner {
	ocfg := openai.DefaultConfig(cfg.DeepSeek.APIKey)
	ocfg.BaseURL = cfg.DeepSeek.BaseURL

	return &DeepSeekReasoner{
		client: openai.NewClientWithConfig(ocfg),
		model:  cfg.DeepSeek.Model,
		cfg:    cfg,
		logger: log,
	}
}

func (d *DeepSeekReasoner) Reason(ctx context.Context, p decision.Prompt) (*decision.Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeepSeekTimeout())
	defer cancel()

	userPrompt := BuildUserPrompt(p)

	d.logger.Info("sending decision request to DeepSeek",
		"asset", p.AssetID,
		"regime", p.Regime)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("deepseek API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek returned no choices")
	}

	rawResponse := resp.Choices[0].Message.Content
	d.logger.Debug("AI raw response", "asset", p.AssetID, "content", rawResponse)

	proposal, err := ParseProposal(rawResponse)
	if err != nil {
		return nil, fmt.Errorf("parse AI response: %w", err)
	}
	return proposal, nil
}
