package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const (
	opCreateIntent = "create_intent"
	opGetIntent    = "get_intent"
	opCancelIntent = "cancel_intent"
	opRefund       = "refund"
)

// stripeAPI is the subset of stripe-go resource calls the adapter needs.
type stripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type sdkAPI struct{}

func (sdkAPI) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (sdkAPI) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

func (sdkAPI) CancelPaymentIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

func (sdkAPI) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(params)
}

// StripeGateway implements Gateway on Stripe payment intents and refunds.
type StripeGateway struct {
	api     stripeAPI
	timeout time.Duration
	policy  pkgstripe.RetryPolicy
	metrics *metrics.GatewayMetrics
	logg    *logger.Logger
}

func NewStripeGateway(client *pkgstripe.Client, m *metrics.GatewayMetrics, logg *logger.Logger) (*StripeGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return newStripeGateway(sdkAPI{}, client.Timeout(), client.Retry(), m, logg), nil
}

func newStripeGateway(api stripeAPI, timeout time.Duration, policy pkgstripe.RetryPolicy, m *metrics.GatewayMetrics, logg *logger.Logger) *StripeGateway {
	if logg == nil {
		logg = logger.Nop()
	}
	if policy.Base <= 0 {
		policy.Base = 200 * time.Millisecond
	}
	return &StripeGateway{api: api, timeout: timeout, policy: policy, metrics: m, logg: logg}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	if in.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency key required")
	}

	var out *stripe.PaymentIntent
	err := g.call(ctx, opCreateIntent, func(attemptCtx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(in.AmountCents),
			Currency: stripe.String(strings.ToLower(in.Currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = attemptCtx
		params.SetIdempotencyKey(in.IdempotencyKey)
		for k, v := range in.Metadata {
			params.AddMetadata(k, v)
		}
		pi, err := g.api.NewPaymentIntent(params)
		if err != nil {
			return err
		}
		out = pi
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toIntent(out), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, gatewayIntentID string) (*Intent, error) {
	if strings.TrimSpace(gatewayIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	var out *stripe.PaymentIntent
	err := g.call(ctx, opGetIntent, func(attemptCtx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = attemptCtx
		pi, err := g.api.GetPaymentIntent(gatewayIntentID, params)
		if err != nil {
			return err
		}
		out = pi
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toIntent(out), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, gatewayIntentID, idempotencyKey string) (*Intent, error) {
	if strings.TrimSpace(gatewayIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	var out *stripe.PaymentIntent
	err := g.call(ctx, opCancelIntent, func(attemptCtx context.Context) error {
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String("abandoned"),
		}
		params.Context = attemptCtx
		if idempotencyKey != "" {
			params.SetIdempotencyKey(idempotencyKey)
		}
		pi, err := g.api.CancelPaymentIntent(gatewayIntentID, params)
		if err != nil {
			return err
		}
		out = pi
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toIntent(out), nil
}

func (g *StripeGateway) Refund(ctx context.Context, in RefundInput) (*RefundResult, error) {
	if strings.TrimSpace(in.GatewayIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	if in.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency key required")
	}

	var out *stripe.Refund
	err := g.call(ctx, opRefund, func(attemptCtx context.Context) error {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(in.GatewayIntentID)}
		if in.AmountCents > 0 {
			params.Amount = stripe.Int64(in.AmountCents)
		}
		if in.Reason != "" {
			params.AddMetadata("reason", in.Reason)
		}
		for k, v := range in.Metadata {
			params.AddMetadata(k, v)
		}
		params.Context = attemptCtx
		params.SetIdempotencyKey(in.IdempotencyKey)
		r, err := g.api.NewRefund(params)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{ID: out.ID, Status: RefundStatusFromStripe(out.Status), AmountCents: out.Amount}, nil
}

// call runs fn with a per-attempt deadline and retries transient failures
// with jittered exponential backoff. Exhausted or permanent failures are
// returned as CodeDependency, so callers leave their state untouched.
func (g *StripeGateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	backoff := retry.NewExponential(g.policy.Base)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(g.policy.MaxRetries, backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			g.metrics.IncRetry(op)
		}
		attemptCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err != nil && isTransient(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if err == nil {
		g.metrics.Observe(op, "success", time.Since(start))
		return nil
	}

	g.metrics.Observe(op, "failure", time.Since(start))
	logCtx := g.logg.WithFields(ctx, map[string]any{
		"gateway_op": op,
		"attempts":   attempts,
	})
	g.logg.Error(logCtx, "payment gateway call failed", err)
	return classify(op, err)
}

// isTransient reports whether another attempt could succeed: network
// errors, per-attempt timeouts, rate limits and 5xx responses.
func isTransient(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payment gateway unavailable (%s)", op))
		case se.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment was declined")
		case se.HTTPStatusCode == http.StatusNotFound:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payment gateway %s failed", op))
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	return &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         IntentStatusFromStripe(pi.Status),
		AmountCents:    pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       strings.ToUpper(string(pi.Currency)),
		Metadata:       pi.Metadata,
	}
}

// IntentStatusFromStripe collapses Stripe's intent states onto ours.
func IntentStatusFromStripe(status stripe.PaymentIntentStatus) enums.IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return enums.IntentCanceled
	default:
		return enums.IntentRequiresPayment
	}
}

// RefundStatusFromStripe collapses Stripe's refund states onto ours.
func RefundStatusFromStripe(status stripe.RefundStatus) enums.RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return enums.RefundSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return enums.RefundFailed
	default:
		return enums.RefundPending
	}
}
