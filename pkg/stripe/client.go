// Package stripe configures the process-wide Stripe SDK backend and exposes
// the call policy the payment gateway applies around it.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout = 10 * time.Second
)

// keyPrefixes lists the secret and restricted key prefixes each environment
// accepts. A live key in a test deployment is refused at boot.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe: api key is required")
	errSecretRequired   = errors.New("stripe: webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe: environment must be %q or %q", testEnv, liveEnv)
)

// RetryPolicy is applied by the gateway. SDK network retries are off so
// there is exactly one retry loop per call.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
}

type Client struct {
	environment   string
	signingSecret string
	timeout       time.Duration
	retry         RetryPolicy
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, key); err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	c := &Client{
		environment:   env,
		signingSecret: secret,
		timeout:       cfg.RequestTimeout,
		retry:         RetryPolicy{MaxRetries: cfg.MaxRetries, Base: cfg.RetryBase},
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "orderflow-backend"})
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: c.timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}))

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":  env,
			"timeout_ms":  c.timeout.Milliseconds(),
			"max_retries": c.retry.MaxRetries,
		}), "stripe configured")
	}
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret verifies webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Timeout bounds each gateway call.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

func (c *Client) Retry() RetryPolicy {
	if c == nil {
		return RetryPolicy{}
	}
	return c.retry
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func validateAPIKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	if slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(key, p) }) {
		return nil
	}
	return fmt.Errorf("stripe: %s environment requires one of %s keys", env, strings.Join(prefixes, ", "))
}
