// Package builder assembles workflows interactively from registered agents.
package builder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/graph"
)

var (
	ErrEmptyName       = errors.New("workflow name is required")
	ErrTooManyAttempts = errors.New("too many invalid answers")
)

const (
	LabelName        = "Enter workflow name: "
	LabelDescription = "Enter workflow description: "
	LabelSelection   = "Enter comma-separated agent reference IDs to include in the workflow: "
	LabelConnects    = "Enter connected agent reference IDs (comma-separated) or press Enter for none: "
)

// Request carries the answers known up front. Blank fields are prompted for.
type Request struct {
	Name        string
	Description string
	// Agents are the registered agents, in listing order.
	Agents []graph.Agent
	// Selection is the raw comma-separated list of reference IDs.
	Selection string
}

// Builder turns a selection and per-agent connect lists into a Workflow.
type Builder struct {
	prompter    Prompter
	logger      *zap.Logger
	maxAttempts int
}

type Option func(*Builder)

func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMaxAttempts bounds how often a single agent's connects are re-prompted.
// Zero, the default, re-prompts until the prompter runs out of input.
func WithMaxAttempts(n int) Option {
	return func(b *Builder) {
		b.maxAttempts = n
	}
}

func New(p Prompter, opts ...Option) *Builder {
	b := &Builder{
		prompter: p,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With(zap.String("component", "builder"))
	return b
}

// Build runs one build session. Connect answers that violate the graph rules
// are reported and asked again; anything else aborts the whole build.
func (b *Builder) Build(ctx context.Context, req Request) (*graph.Workflow, error) {
	if len(req.Agents) == 0 {
		return nil, ErrNoAgents
	}
	listing := NewListing(req.Agents)
	b.prompter.Notify(listing.String())

	name, err := b.answer(ctx, req.Name, LabelName)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	description, err := b.answer(ctx, req.Description, LabelDescription)
	if err != nil {
		return nil, err
	}
	rawSelection, err := b.answer(ctx, req.Selection, LabelSelection)
	if err != nil {
		return nil, err
	}

	selected, err := selection(listing, rawSelection)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid agent selection")
	}

	b.prompter.Notify("Now, define the connections between the selected agents.")
	edges := make(map[int][]int, len(selected))
	for _, ref := range selected {
		refs, err := b.connects(ctx, listing, ref, selected)
		if err != nil {
			return nil, err
		}
		edges[ref] = refs
	}

	// Reference numbers end here; everything below uses agent ids.
	nodes := make([]graph.Node, 0, len(selected))
	for _, ref := range selected {
		agent, _ := listing.Agent(ref)
		ids := make([]string, 0, len(edges[ref]))
		for _, target := range edges[ref] {
			id, _ := listing.ID(target)
			ids = append(ids, id)
		}
		nodes = append(nodes, graph.NewNode(agent, ids))
	}

	wf := &graph.Workflow{
		Name:        name,
		Description: description,
		Nodes:       nodes,
	}
	if err := wf.Validate(); err != nil {
		return nil, pkgerrors.Wrapf(err, "workflow %q", name)
	}

	b.logger.Info("workflow built",
		zap.String("workflow", name),
		zap.Int("nodes", len(nodes)),
	)
	return wf, nil
}

func (b *Builder) answer(ctx context.Context, given, label string) (string, error) {
	if s := strings.TrimSpace(given); s != "" {
		return s, nil
	}
	in, err := b.prompter.Prompt(ctx, label)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "prompt %q", strings.TrimSpace(label))
	}
	return strings.TrimSpace(in), nil
}

// connects prompts for ref's outgoing edges until the answer is acceptable.
func (b *Builder) connects(ctx context.Context, listing Listing, ref int, selected []int) ([]int, error) {
	agent, _ := listing.Agent(ref)
	for attempt := 1; ; attempt++ {
		b.prompter.Notify(fmt.Sprintf("Agent %d - %s", ref, agent.Name))
		in, err := b.prompter.Prompt(ctx, LabelConnects)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "connects of agent %q", agent.Name)
		}

		refs, err := parseConnects(in, ref, selected)
		if err == nil {
			return refs, nil
		}

		b.logger.Debug("rejected connects",
			zap.String("agent", agent.ID),
			zap.String("input", in),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		b.prompter.Notify(explain(err))
		if b.maxAttempts > 0 && attempt >= b.maxAttempts {
			return nil, fmt.Errorf("connects of agent %q: %w: %w", agent.Name, ErrTooManyAttempts, err)
		}
	}
}

// selection resolves the raw selection to reference numbers in listing order.
func selection(listing Listing, raw string) ([]int, error) {
	refs, err := ParseRefs(raw)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, ErrEmptySelection
	}
	seen := make(map[int]struct{}, len(refs))
	for _, r := range refs {
		if _, ok := listing.Agent(r); !ok {
			return nil, fmt.Errorf("%d: %w", r, ErrUnknownReference)
		}
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("%d: %w", r, ErrDuplicateReference)
		}
		seen[r] = struct{}{}
	}
	slices.Sort(refs)
	return refs, nil
}

// parseConnects validates one connects answer. Repeated targets collapse.
func parseConnects(in string, self int, selected []int) ([]int, error) {
	refs, err := ParseRefs(in)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(refs))
	for _, r := range refs {
		if r == self {
			return nil, graph.NewValidationError("connects", strconv.Itoa(self), strconv.Itoa(r), graph.ErrSelfLoop)
		}
		if !slices.Contains(selected, r) {
			return nil, fmt.Errorf("%d: %w", r, ErrUnselectedAgent)
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func explain(err error) string {
	switch {
	case errors.Is(err, ErrUnparseableInput):
		return "Invalid input. Please enter only numeric agent reference IDs."
	case errors.Is(err, graph.ErrSelfLoop):
		return "An agent cannot connect to itself. Please try again."
	default:
		return "One or more agent reference IDs are invalid or not in the selected workflow. Please try again."
	}
}
