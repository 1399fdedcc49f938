package ai

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/market"
)

var thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes DeepSeek R1 reasoning tags from the response.
func StripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
}

// rawProposal is the wire shape the model is asked to produce.
type rawProposal struct {
	Action     string  `json:"action"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	StrategyID string  `json:"strategy_id"`
	Strategy   string  `json:"strategy"`
	RiskLevel  string  `json:"risk_level"`
}

// ParseProposal turns a model reply into a proposal.
// Handles think tags, markdown fences, an array of proposals (the first one
// wins), prose around the JSON and malformed JSON that jsonrepair can fix.
func ParseProposal(text string) (*decision.Proposal, error) {
	cleaned := StripThinkTags(text)

	// Remove markdown code fences
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, fmt.Errorf("empty AI response")
	}

	var lastErr error
	for _, candidate := range jsonCandidates(cleaned) {
		raw, err := decodeProposal(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return raw.toProposal()
	}
	return nil, lastErr
}

func decodeProposal(text string) (rawProposal, error) {
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return rawProposal{}, fmt.Errorf("repair AI response: %w", err)
	}

	var raw rawProposal
	if strings.HasPrefix(strings.TrimSpace(repaired), "[") {
		var list []rawProposal
		if err := json.Unmarshal([]byte(repaired), &list); err != nil || len(list) == 0 {
			return raw, fmt.Errorf("failed to parse AI response as JSON array: %.200s", text)
		}
		return list[0], nil
	}
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return raw, fmt.Errorf("failed to parse AI response as JSON: %.200s", text)
	}
	return raw, nil
}

// jsonCandidates cuts the outermost array and object out of surrounding
// prose. The array comes first when its bracket precedes the first brace.
func jsonCandidates(text string) []string {
	var out []string
	obj := strings.Index(text, "{")
	arr := strings.Index(text, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		if end := strings.LastIndex(text, "]"); end > arr {
			out = append(out, text[arr:end+1])
		}
	}
	if obj >= 0 {
		if end := strings.LastIndex(text, "}"); end > obj {
			out = append(out, text[obj:end+1])
		}
	}
	if len(out) == 0 {
		out = append(out, text)
	}
	return out
}

func (r rawProposal) toProposal() (*decision.Proposal, error) {
	action, ok := market.ParseAction(r.Action)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", r.Action)
	}

	confidence := r.Confidence
	// The model sometimes answers on a 0-100 scale.
	if confidence > 1 {
		confidence /= 100
	}
	confidence = min(max(confidence, 0), 1)

	strategyID := r.StrategyID
	if strategyID == "" {
		strategyID = r.Strategy
	}

	return &decision.Proposal{
		Action:     action,
		Amount:     max(r.Amount, 0),
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(r.Reasoning),
		StrategyID: strategyID,
		RiskLevel:  market.ParseRiskLevel(r.RiskLevel),
	}, nil
}
