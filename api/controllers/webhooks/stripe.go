package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	stripewebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const maxWebhookBytes = 1 << 16

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

// StripeWebhookGuard is the Redis fast path for redelivered events.
type StripeWebhookGuard interface {
	Seen(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type StripeClient interface {
	SigningSecret() string
}

type webhookResponse struct {
	EventID string                `json:"eventId"`
	Outcome stripewebhook.Outcome `json:"outcome"`
}

// StripeWebhook verifies and applies payment intent events. Every verified
// delivery is acknowledged with 200 unless processing failed in a way a
// redelivery could fix.
func StripeWebhook(svc StripeWebhookService, client StripeClient, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if guard != nil {
			seen, err := guard.Seen(ctx, event.ID, string(event.Type))
			if err != nil {
				// The event log still deduplicates; Redis is only the fast path.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "event_id", event.ID), "webhook guard unavailable")
				}
			} else if seen {
				responses.WriteSuccess(w, webhookResponse{EventID: event.ID, Outcome: stripewebhook.OutcomeDuplicate})
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if guard != nil {
				if err := guard.Forget(ctx, event.ID); err != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "event_id", event.ID), "webhook guard release failed")
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookResponse{EventID: event.ID, Outcome: outcome})
	}
}
