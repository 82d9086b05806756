package payments

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// Intents opens and invalidates gateway intents and keeps the local rows
// in step with them.
type Intents struct {
	gateway Gateway
	repo    Repository
	logg    *logger.Logger
	now     func() time.Time
}

func NewIntents(gateway Gateway, repo Repository, logg *logger.Logger) (*Intents, error) {
	if gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Intents{gateway: gateway, repo: repo, logg: logg, now: time.Now}, nil
}

func (s *Intents) Repository() Repository {
	return s.repo
}

// Open creates a gateway intent for exactly amountCents and records it
// against the order's current snapshot version. It must not run inside a
// transaction that holds row locks the webhook path needs.
func (s *Intents) Open(ctx context.Context, order *models.Order, purpose enums.IntentPurpose, amountCents int64) (*models.PaymentIntent, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if !purpose.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid intent purpose %q", purpose)
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}

	attempt, err := s.repo.NextAttempt(ctx, order.ID, purpose)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "next intent attempt")
	}

	gi, err := s.gateway.CreateIntent(ctx, CreateIntentInput{
		AmountCents: amountCents,
		Currency:    order.Currency,
		Metadata: map[string]string{
			"order_id":         order.ID.String(),
			"purpose":          purpose.String(),
			"snapshot_version": strconv.Itoa(order.SnapshotVersion),
		},
		IdempotencyKey: IntentKey(order.ID, purpose, attempt),
	})
	if err != nil {
		return nil, err
	}

	row := &models.PaymentIntent{
		OrderID:         order.ID,
		Purpose:         purpose,
		Attempt:         attempt,
		GatewayIntentID: gi.ID,
		ClientSecret:    gi.ClientSecret,
		AmountCents:     amountCents,
		Currency:        order.Currency,
		Status:          enums.IntentRequiresPayment,
		SnapshotVersion: order.SnapshotVersion,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment intent")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"gateway_intent_id": gi.ID,
		"purpose":           purpose.String(),
		"amount_cents":      amountCents,
	})
	s.logg.Info(logCtx, "payment intent opened")
	return row, nil
}

// EnsureOpen returns the unconfirmed intent already issued for this purpose,
// snapshot version and amount, or opens a new one.
func (s *Intents) EnsureOpen(ctx context.Context, order *models.Order, purpose enums.IntentPurpose, amountCents int64) (*models.PaymentIntent, error) {
	open, err := s.repo.ListOpen(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open intents")
	}
	for i := range open {
		intent := &open[i]
		if intent.Purpose == purpose && intent.SnapshotVersion == order.SnapshotVersion && intent.AmountCents == amountCents {
			return intent, nil
		}
	}
	return s.Open(ctx, order, purpose, amountCents)
}

// CancelOpen invalidates every unconfirmed intent of the order inside tx.
// If the gateway reports one of them already succeeded, the caller's change
// is rejected with CodeConflict so a stale amount is never silently kept.
func (s *Intents) CancelOpen(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.PaymentIntent, error) {
	repo := s.repo.WithTx(tx)
	open, err := repo.ListOpen(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open intents")
	}

	for i := range open {
		intent := &open[i]
		status, err := s.cancelAtGateway(ctx, intent)
		if err != nil {
			return nil, err
		}
		if status == enums.IntentSucceeded {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a payment for the current amount already went through").
				WithDetails(map[string]any{"paymentIntentId": intent.ID})
		}
		if err := repo.MarkStatus(ctx, intent.ID, enums.IntentCanceled, s.now().UTC()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent canceled")
		}
		intent.Status = enums.IntentCanceled
	}
	return open, nil
}

// Invalidate cancels a single unconfirmed intent inside tx. It reports
// CodeConflict when the gateway already captured it.
func (s *Intents) Invalidate(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error {
	if intent.Status != enums.IntentRequiresPayment {
		return nil
	}
	status, err := s.cancelAtGateway(ctx, intent)
	if err != nil {
		return err
	}
	if status == enums.IntentSucceeded {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment already went through").
			WithDetails(map[string]any{"paymentIntentId": intent.ID})
	}
	if err := s.repo.WithTx(tx).MarkStatus(ctx, intent.ID, enums.IntentCanceled, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent canceled")
	}
	intent.Status = enums.IntentCanceled
	return nil
}

func (s *Intents) cancelAtGateway(ctx context.Context, intent *models.PaymentIntent) (enums.IntentStatus, error) {
	gi, err := s.gateway.CancelIntent(ctx, intent.GatewayIntentID, CancelKey(intent.OrderID, intent.Purpose, intent.Attempt))
	if err == nil {
		return gi.Status, nil
	}
	// Cancelling a finished intent fails; look at where it actually ended up.
	current, getErr := s.gateway.GetIntent(ctx, intent.GatewayIntentID)
	if getErr != nil {
		return "", err
	}
	switch current.Status {
	case enums.IntentSucceeded, enums.IntentCanceled:
		return current.Status, nil
	default:
		return "", err
	}
}
