package builder

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/avi3tal/agentgraph/internal/graph"
)

var (
	ErrUnparseableInput   = errors.New("input must be comma-separated numeric reference IDs")
	ErrUnknownReference   = errors.New("reference ID is not listed")
	ErrUnselectedAgent    = errors.New("reference ID is not part of the selected workflow")
	ErrDuplicateReference = errors.New("reference ID is repeated")
	ErrEmptySelection     = errors.New("no agents selected")
	ErrNoAgents           = errors.New("no agents registered")
)

// Listing numbers agents 1..n for one build session. Reference numbers are
// only meaningful against the listing that produced them.
type Listing struct {
	agents []graph.Agent
}

// NewListing numbers agents in the given order.
func NewListing(agents []graph.Agent) Listing {
	l := Listing{agents: make([]graph.Agent, len(agents))}
	for i, a := range agents {
		l.agents[i] = a.Clone()
	}
	return l
}

func (l Listing) Len() int {
	return len(l.agents)
}

// Agent returns the agent listed under ref.
func (l Listing) Agent(ref int) (graph.Agent, bool) {
	if ref < 1 || ref > len(l.agents) {
		return graph.Agent{}, false
	}
	return l.agents[ref-1], true
}

// ID translates a reference number into the agent's stable identifier.
func (l Listing) ID(ref int) (string, bool) {
	a, ok := l.Agent(ref)
	return a.ID, ok
}

// Print writes one line per agent.
func (l Listing) Print(w io.Writer) {
	for i, a := range l.agents {
		if a.Description != "" {
			fmt.Fprintf(w, "%d. %s - %s\n", i+1, a.Name, a.Description)
			continue
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, a.Name)
	}
}

func (l Listing) String() string {
	var sb strings.Builder
	l.Print(&sb)
	return strings.TrimRight(sb.String(), "\n")
}

// ParseRefs parses comma-separated reference numbers. Blank input yields no
// references.
func ParseRefs(input string) ([]int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	parts := strings.Split(input, ",")
	refs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", strings.TrimSpace(p), ErrUnparseableInput)
		}
		refs = append(refs, n)
	}
	return refs, nil
}
