// Package config handles configuration loading, saving, and schema definition.
package config

import (
	"fmt"
	"strings"

	"github.com/kyralis/chatrelay-go/internal/discord"
)

// Config is the top-level chatrelay configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	WebhookURL string         `json:"webhookUrl"`
	Listen     ListenConfig   `json:"listen"`
	Queue      QueueConfig    `json:"queue"`
	Delivery   DeliveryConfig `json:"delivery"`
}

// ListenConfig holds the ingress listener settings.
type ListenConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// QueueConfig holds the delivery queue settings.
type QueueConfig struct {
	Capacity int `json:"capacity"`
}

// DeliveryConfig holds the outbound rate-limit and retry policy.
// Durations are milliseconds.
type DeliveryConfig struct {
	RateLimit       int `json:"rateLimit"`       // sends per window
	RateWindowMs    int `json:"rateWindowMs"`    // window length
	MaxAttempts     int `json:"maxAttempts"`     // failed attempts before drop
	BackoffBaseMs   int `json:"backoffBaseMs"`   // first retry delay, doubles per attempt
	BackoffCapMs    int `json:"backoffCapMs"`    // retry delay ceiling
	TimeoutMs       int `json:"timeoutMs"`       // per-request timeout
	ShutdownGraceMs int `json:"shutdownGraceMs"` // in-flight grace on shutdown
}

// DefaultConfig returns the documented defaults: Discord webhooks allow
// roughly 5 sends per 2 seconds, and the retry policy backs off from 1s to
// a 30s ceiling across 5 attempts.
func DefaultConfig() Config {
	return Config{
		Listen: ListenConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Queue: QueueConfig{
			Capacity: 500,
		},
		Delivery: DeliveryConfig{
			RateLimit:       5,
			RateWindowMs:    2000,
			MaxAttempts:     5,
			BackoffBaseMs:   1000,
			BackoffCapMs:    30000,
			TimeoutMs:       10000,
			ShutdownGraceMs: 5000,
		},
	}
}

// WebhookConfigured reports whether a plausible destination URL is set.
func (c Config) WebhookConfigured() bool {
	return strings.HasPrefix(c.WebhookURL, discord.WebhookPrefix)
}

// Validate rejects configurations the relay cannot run with.
func (c Config) Validate() error {
	if !c.WebhookConfigured() {
		return fmt.Errorf("webhookUrl must start with %s", discord.WebhookPrefix)
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive")
	}
	return nil
}
