package esl

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/retry"
)

// VusionConfig holds configuration for the VUSION label cloud API
type VusionConfig struct {
	// BaseURL is the API root, e.g. https://api-us.vusion.io/vlink-pro/v1
	BaseURL string
	// SubscriptionKey is sent in the Ocp-Apim-Subscription-Key header
	SubscriptionKey string
	// TimeoutSeconds bounds a single HTTP request
	TimeoutSeconds int
	// MaxItemsPerBatch and MaxBytesPerBatch bound one request body
	MaxItemsPerBatch int
	MaxBytesPerBatch int
	// MaxErrorBodyBytes bounds how much of a response body is read and logged
	MaxErrorBodyBytes int64
	// Retry is the per-batch retry schedule
	Retry retry.Policy
	// RateLimitQPS caps outbound requests per second across all stores; 0 disables the limit
	RateLimitQPS float64
	// RateLimitBurst is the number of requests allowed above the steady rate
	RateLimitBurst int
}

const (
	// DefaultVusionBaseURL is the US production endpoint
	DefaultVusionBaseURL = "https://api-us.vusion.io/vlink-pro/v1"
	// DefaultTimeoutSeconds bounds one request, including the response body
	DefaultTimeoutSeconds = 60
	// DefaultMaxErrorBodyBytes limits logged response bodies to 64 KiB
	DefaultMaxErrorBodyBytes = 64 * 1024
)

// Errors for VUSION configuration
var (
	ErrVusionConfigMissingSubscriptionKey = errors.New("vusion: subscription key is required")
	ErrVusionConfigInvalidBaseURL         = errors.New("vusion: base URL must be an absolute http(s) URL")
)

// NewVusionConfig creates a configuration with defaults for the given key
func NewVusionConfig(subscriptionKey string) *VusionConfig {
	return &VusionConfig{
		BaseURL:           DefaultVusionBaseURL,
		SubscriptionKey:   subscriptionKey,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		MaxItemsPerBatch:  DefaultMaxItemsPerBatch,
		MaxBytesPerBatch:  DefaultMaxBytesPerBatch,
		MaxErrorBodyBytes: DefaultMaxErrorBodyBytes,
		Retry:             retry.DefaultPolicy(),
	}
}

// Validate checks required fields and fills in defaults for the rest
func (c *VusionConfig) Validate() error {
	if strings.TrimSpace(c.SubscriptionKey) == "" {
		return ErrVusionConfigMissingSubscriptionKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultVusionBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrVusionConfigInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MaxItemsPerBatch <= 0 {
		c.MaxItemsPerBatch = DefaultMaxItemsPerBatch
	}
	if c.MaxBytesPerBatch <= 0 {
		c.MaxBytesPerBatch = DefaultMaxBytesPerBatch
	}
	if c.MaxErrorBodyBytes <= 0 {
		c.MaxErrorBodyBytes = DefaultMaxErrorBodyBytes
	}
	if c.RateLimitQPS > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	return nil
}

// ItemsURL returns the items endpoint of a store
func (c *VusionConfig) ItemsURL(storeID string) string {
	return c.BaseURL + "/stores/" + url.PathEscape(storeID) + "/items"
}
