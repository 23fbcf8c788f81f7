// Package knowledgebase repurposes the teacher's OpenAI-backed service
// from semantic search over support articles into an optional
// narrative augmenter: one chat completion that turns a deterministic
// explanation into a prose sentence. Grounded on
// internal/knowledgebase/service.go's openai.NewClient/CreateChatCompletion
// usage; everything vector-search/article-specific is dropped, since
// only the chat-completion call has a home in this domain.
package knowledgebase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// NarrativeAugmenter implements risk.NarrativeAugmenter over go-openai.
type NarrativeAugmenter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewNarrativeAugmenter(apiKey string) *NarrativeAugmenter {
	return &NarrativeAugmenter{
		client:  openai.NewClient(apiKey),
		model:   openai.GPT3Dot5Turbo,
		timeout: 2 * time.Second,
	}
}

// Narrate asks the model for a single sentence summarizing why the
// transaction landed in its category. Never used to derive
// Category/Recommendation; failures or timeouts just mean no narrative.
func (n *NarrativeAugmenter) Narrate(ctx context.Context, exp risk.Explanation) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	prompt := buildPrompt(exp)
	resp, err := n.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You summarize fraud risk assessments in one short, plain sentence for a fraud analyst. Never invent facts not given."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   80,
		Temperature: 0.2,
	})
	if err != nil || len(resp.Choices) == 0 {
		return "", false
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", false
	}
	return text, true
}

func buildPrompt(exp risk.Explanation) string {
	var rules []string
	for _, r := range exp.RulesTriggered {
		rules = append(rules, r.Description)
	}
	return fmt.Sprintf(
		"Risk score %.2f (%s, recommend %s). Triggered rules: %s. Propagation depth: %d.",
		exp.RiskScore, exp.Category, exp.Recommendation, strings.Join(rules, "; "), exp.PropagationDepth)
}
