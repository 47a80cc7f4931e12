// Package config loads agentgraph settings from defaults, an optional YAML
// file and AGENTGRAPH_* environment variables, in that order.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentgraph.yaml").
//	    Load()
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "AGENTGRAPH"

type Config struct {
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Store   StoreConfig   `yaml:"store" env:"STORE"`
	LLM     LLMConfig     `yaml:"llm" env:"LLM"`
	Engine  EngineConfig  `yaml:"engine" env:"ENGINE"`
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format string `yaml:"format" env:"FORMAT"`
}

type StoreConfig struct {
	// memory, sqlite or mongo
	Driver string `yaml:"driver" env:"DRIVER"`
	// SQLite database file
	Path string `yaml:"path" env:"PATH"`
	// MongoDB connection string
	URI string `yaml:"uri" env:"URI"`
	// MongoDB database name
	Database string `yaml:"database" env:"DATABASE"`
}

type LLMConfig struct {
	// openai or ollama
	Provider string `yaml:"provider" env:"PROVIDER"`
	Model    string `yaml:"model" env:"MODEL"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	// Sampling temperature of routing calls
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// Model calls allowed for one node answer, tool calls included
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
}

type EngineConfig struct {
	MaxSteps       int           `yaml:"max_steps" env:"MAX_STEPS"`
	PolicyTimeout  time.Duration `yaml:"policy_timeout" env:"POLICY_TIMEOUT"`
	NodeTimeout    time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	PolicyRetries  int           `yaml:"policy_retries" env:"POLICY_RETRIES"`
	RetryDelay     time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	LenientRouting bool          `yaml:"lenient_routing" env:"LENIENT_ROUTING"`
	// Concurrent runs served by workflow.App.Serve
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Listen address of the /metrics endpoint
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			Path:     "agentgraph.db",
			URI:      "mongodb://localhost:27017",
			Database: "agentgraph",
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxIterations: 8,
		},
		Engine: EngineConfig{
			MaxSteps:      20,
			PolicyTimeout: 60 * time.Second,
			NodeTimeout:   2 * time.Minute,
			PolicyRetries: 3,
			RetryDelay:    500 * time.Millisecond,
			RetryMaxDelay: 5 * time.Second,
			Concurrency:   4,
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Namespace: "agentgraph",
		},
	}
}

// Validate checks values the loader cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite", "mongo":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for sqlite"))
	}
	if c.Store.Driver == "mongo" && (c.Store.URI == "" || c.Store.Database == "") {
		errs = append(errs, errors.New("store.uri and store.database are required for mongo"))
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unsupported provider %q", c.LLM.Provider))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, errors.New("engine.max_steps must not be negative"))
	}
	if c.Engine.PolicyRetries < 0 {
		errs = append(errs, errors.New("engine.policy_retries must not be negative"))
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, errors.New("engine.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

// Loader builds a Config.
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookupEnv replaces the environment lookup, mainly for tests.
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
