// Package routing provides RoutingPolicy implementations.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
)

var (
	ErrEmptyResponse     = errors.New("model returned no choices")
	ErrMalformedDecision = errors.New("malformed routing decision")
)

// LLMPolicy asks a language model for the next node.
type LLMPolicy struct {
	model       llms.Model
	logger      *zap.Logger
	temperature float64
	callOpts    []llms.CallOption
}

var _ engine.RoutingPolicy = (*LLMPolicy)(nil)

type LLMOption func(*LLMPolicy)

func WithLogger(l *zap.Logger) LLMOption {
	return func(p *LLMPolicy) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithTemperature(t float64) LLMOption {
	return func(p *LLMPolicy) {
		p.temperature = t
	}
}

// WithCallOptions appends model call options to every request.
func WithCallOptions(opts ...llms.CallOption) LLMOption {
	return func(p *LLMPolicy) {
		p.callOpts = append(p.callOpts, opts...)
	}
}

func NewLLMPolicy(model llms.Model, opts ...LLMOption) *LLMPolicy {
	p := &LLMPolicy{
		model:  model,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With(zap.String("component", "routing"))
	return p
}

func (p *LLMPolicy) Decide(ctx context.Context, msgs []conversation.Message, wf *graph.Workflow) (engine.Decision, error) {
	system, err := SupervisorPrompt(wf, msgs)
	if err != nil {
		return engine.Decision{}, err
	}

	content := make([]llms.MessageContent, 0, len(msgs)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	content = append(content, conversation.ToLLM(msgs)...)

	opts := append([]llms.CallOption{
		llms.WithJSONMode(),
		llms.WithTemperature(p.temperature),
	}, p.callOpts...)

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return engine.Decision{}, fmt.Errorf("generate routing decision: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return engine.Decision{}, ErrEmptyResponse
	}

	d, err := ParseDecision(resp.Choices[0].Content)
	if err != nil {
		return engine.Decision{}, err
	}
	p.logger.Debug("routing decision",
		zap.String("workflow", wf.Name),
		zap.String("next_node", d.Target),
		zap.String("reasoning", d.Reasoning),
	)
	return d, nil
}

// ParseDecision extracts a decision from model output. Surrounding prose and
// markdown code fences are ignored.
func ParseDecision(text string) (engine.Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return engine.Decision{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedDecision, truncate(text, 80))
	}

	var raw struct {
		NextNode       string  `json:"next_node"`
		Reasoning      string  `json:"reasoning"`
		Instructions   string  `json:"instructions"`
		DirectResponse *string `json:"direct_response"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return engine.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	target := strings.TrimSpace(raw.NextNode)
	if target == "" {
		return engine.Decision{}, fmt.Errorf("%w: next_node is missing", ErrMalformedDecision)
	}
	if strings.EqualFold(target, graph.Finish) {
		target = graph.Finish
	}

	d := engine.Decision{
		Target:       target,
		Reasoning:    raw.Reasoning,
		Instructions: raw.Instructions,
	}
	if raw.DirectResponse != nil {
		d.DirectResponse = *raw.DirectResponse
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
