package engine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/conversation"
)

const (
	DefaultMaxSteps       = 20
	DefaultPolicyTimeout  = 60 * time.Second
	DefaultNodeTimeout    = 2 * time.Minute
	DefaultSupervisorName = "supervisor"
	DefaultUserName       = "user"
	CompletionNotice      = "Workflow complete."
)

// RetryPolicy bounds how often a failed routing call is retried
type RetryPolicy struct {
	MaxRetries   int           // retries after the first attempt; 0 disables retrying
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper bound for a single delay
	Multiplier   float64       // growth factor between consecutive delays
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < retry; i++ {
		delay *= mult
		if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Config represents runtime configuration for workflow execution
type Config struct {
	MaxSteps       int           // Maximum dispatches per run; 0 means unlimited
	PolicyTimeout  time.Duration // Bound for a single routing call; 0 means none
	NodeTimeout    time.Duration // Bound for a single node call; 0 means none
	Retry          RetryPolicy   // Retry policy for routing calls
	LenientRouting bool          // Accept any known agent, ignoring edges
	SupervisorName string        // Author name of routing-authority messages
	Logger         *zap.Logger
	Recorder       Recorder
}

// NewConfig returns the default configuration with opts applied
func NewConfig(opts ...Option) Config {
	cfg := Config{
		MaxSteps:       DefaultMaxSteps,
		PolicyTimeout:  DefaultPolicyTimeout,
		NodeTimeout:    DefaultNodeTimeout,
		Retry:          DefaultRetryPolicy(),
		SupervisorName: DefaultSupervisorName,
		Logger:         zap.NewNop(),
		Recorder:       nopRecorder{},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

type Option func(*Config)

// WithMaxSteps sets the maximum number of dispatches in a run
func WithMaxSteps(steps int) Option {
	return func(c *Config) {
		c.MaxSteps = steps
	}
}

// WithPolicyTimeout bounds each routing call
func WithPolicyTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PolicyTimeout = d
	}
}

// WithNodeTimeout bounds each node call
func WithNodeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.NodeTimeout = d
	}
}

// WithRetryPolicy replaces the routing retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Config) {
		c.Retry = p
	}
}

// WithPolicyRetries sets only the retry budget of the routing retry policy
func WithPolicyRetries(n int) Option {
	return func(c *Config) {
		c.Retry.MaxRetries = n
	}
}

// WithLenientRouting accepts any known agent as a target, regardless of the
// active node's connects. This mirrors older supervisors that only checked
// membership; it is off by default.
func WithLenientRouting(lenient bool) Option {
	return func(c *Config) {
		c.LenientRouting = lenient
	}
}

// WithSupervisorName sets the author name of routing-authority messages
func WithSupervisorName(name string) Option {
	return func(c *Config) {
		c.SupervisorName = name
	}
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithRecorder sets the telemetry sink
func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		if r != nil {
			c.Recorder = r
		}
	}
}

type runConfig struct {
	runID    string
	userName string
	observer conversation.Observer
}

// RunOption configures a single run
type RunOption func(*runConfig)

// WithRunID sets the run identifier; a random one is generated otherwise
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithUserName sets the author name of the seed message
func WithUserName(name string) RunOption {
	return func(c *runConfig) {
		c.userName = name
	}
}

// WithMessageHandler streams every appended message to fn as it is stored
func WithMessageHandler(fn conversation.Observer) RunOption {
	return func(c *runConfig) {
		c.observer = fn
	}
}

func newRunConfig(opts ...RunOption) runConfig {
	rc := runConfig{
		runID:    uuid.New().String(),
		userName: DefaultUserName,
	}
	for _, o := range opts {
		o(&rc)
	}
	return rc
}
