package workflow

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"github.com/avi3tal/agentgraph/internal/agents"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
	"github.com/avi3tal/agentgraph/internal/routing"
	"github.com/avi3tal/agentgraph/internal/toolbox"
)

// LLMPolicy routes every run with a supervisor prompt sent to model.
func LLMPolicy(model llms.Model, opts ...routing.LLMOption) PolicyFactory {
	policy := routing.NewLLMPolicy(model, opts...)
	return func(context.Context, *graph.Workflow) (engine.RoutingPolicy, error) {
		return policy, nil
	}
}

// LLMExecutor answers for nodes with model, giving each agent the tools
// mapped to it. Tool kinds are looked up in registry.
func LLMExecutor(model llms.Model, registry *toolbox.Registry, opts ...agents.Option) ExecutorFactory {
	return func(_ context.Context, as []graph.Agent, ts []graph.Tool) (engine.NodeExecutor, error) {
		resolver := toolbox.NewResolver(registry, ts)
		return agents.NewExecutor(model, as, resolver, opts...), nil
	}
}

// StaticPolicy uses the same policy for every run.
func StaticPolicy(p engine.RoutingPolicy) PolicyFactory {
	return func(context.Context, *graph.Workflow) (engine.RoutingPolicy, error) {
		return p, nil
	}
}

// StaticExecutor uses the same executor for every run.
func StaticExecutor(x engine.NodeExecutor) ExecutorFactory {
	return func(context.Context, []graph.Agent, []graph.Tool) (engine.NodeExecutor, error) {
		return x, nil
	}
}
