package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Roles accepted in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

var (
	// ErrNoProvider means no provider key is configured.
	ErrNoProvider = errors.New("no llm provider configured")
	// ErrEmptyReply is returned when a provider answers with no text.
	ErrEmptyReply = errors.New("empty reply")
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client completes a conversation given a system instruction.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Provider is a named Client.
type Provider struct {
	Name   string
	Client Client
}

// Chain tries providers in order and returns the first non-empty reply.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChain returns a Chain. A zero timeout leaves deadlines to the caller.
func NewChain(timeout time.Duration, logger *slog.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, timeout: timeout, logger: logger}
}

// Names lists the configured providers in try order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Complete implements Client. When every provider fails the errors are joined.
func (c *Chain) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProvider
	}

	var errs []error
	for _, p := range c.providers {
		reply, err := c.try(ctx, p, system, messages)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("llm provider failed", "provider", p.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return "", errors.Join(errs...)
}

func (c *Chain) try(ctx context.Context, p Provider, system string, messages []Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := p.Client.Complete(ctx, system, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	c.logger.Debug("llm reply", "provider", p.Name, "duration", time.Since(start), "chars", len(reply))
	return reply, nil
}

// Config selects providers by key. Providers without a key are skipped.
type Config struct {
	GroqKey         string
	GroqModel       string
	PerplexityKey   string
	PerplexityModel string
	GeminiKey       string
	GeminiModel     string
	Timeout         time.Duration
}

// New builds the provider chain in the order groq, perplexity, gemini.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Chain, error) {
	var providers []Provider
	if cfg.GroqKey != "" {
		providers = append(providers, Provider{Name: "groq", Client: NewGroq(cfg.GroqKey, cfg.GroqModel)})
	}
	if cfg.PerplexityKey != "" {
		providers = append(providers, Provider{Name: "perplexity", Client: NewPerplexity(cfg.PerplexityKey, cfg.PerplexityModel)})
	}
	if cfg.GeminiKey != "" {
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, "")
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		providers = append(providers, Provider{Name: "gemini", Client: g})
	}
	return NewChain(cfg.Timeout, logger, providers...), nil
}
