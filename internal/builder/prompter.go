package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputExhausted is returned when the prompter has no more input.
var ErrInputExhausted = errors.New("no more input")

// Prompter is the interactive surface of a build.
type Prompter interface {
	// Prompt shows label and returns one line of input.
	Prompt(ctx context.Context, label string) (string, error)
	// Notify reports a message to the user.
	Notify(msg string)
}

// LinePrompter reads answers line by line, e.g. from a terminal.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, label)

	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", ErrInputExhausted
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *LinePrompter) Notify(msg string) {
	fmt.Fprintln(p.out, msg)
}

// ScriptedPrompter answers prompts from a fixed list and records what it
// was shown.
type ScriptedPrompter struct {
	mu      sync.Mutex
	inputs  []string
	labels  []string
	notices []string
}

func NewScriptedPrompter(inputs ...string) *ScriptedPrompter {
	return &ScriptedPrompter{inputs: inputs}
}

func (p *ScriptedPrompter) Prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.labels = append(p.labels, label)
	if len(p.inputs) == 0 {
		return "", ErrInputExhausted
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	return in, nil
}

func (p *ScriptedPrompter) Notify(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

// Labels returns the prompts shown so far.
func (p *ScriptedPrompter) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.labels...)
}

// Notices returns the messages reported so far.
func (p *ScriptedPrompter) Notices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

// Remaining returns the number of unused inputs.
func (p *ScriptedPrompter) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inputs)
}
