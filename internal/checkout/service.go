package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []stock.ReserveLine) error
}

type intentOpener interface {
	EnsureOpen(ctx context.Context, order *models.Order, purpose enums.IntentPurpose, amountCents int64) (*models.PaymentIntent, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*Result, error)
	// RetryPaymentIntent reissues the first payment intent of an order whose
	// checkout could not reach the gateway.
	RetryPaymentIntent(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*Result, error)
}

type ItemInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size,omitempty"`
	Color     string    `json:"color,omitempty"`
	Quantity  int       `json:"qty" validate:"required,gt=0"`
}

// CheckoutInput captures the cart being converted into an order.
type CheckoutInput struct {
	BuyerID         uuid.UUID
	Channel         enums.OrderChannel
	Items           []ItemInput
	ShippingAddress types.Address
	ShippingCents   int64
	TaxCents        int64
	Currency        string
}

// Result is the created order and, when the gateway answered, the intent
// the buyer pays first.
type Result struct {
	Order  *models.Order
	Intent *models.PaymentIntent
	// PaymentPending is set when the order exists but its intent could not
	// be opened yet.
	PaymentPending bool
}

type service struct {
	tx       txRunner
	repo     Repository
	orders   orders.Repository
	stock    reserver
	intents  intentOpener
	outbox   outboxPublisher
	logg     *logger.Logger
	currency string
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	repo Repository,
	ordersRepo orders.Repository,
	stockLedger reserver,
	intents intentOpener,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stockLedger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if intents == nil {
		return nil, fmt.Errorf("payment intents required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:       tx,
		repo:     repo,
		orders:   ordersRepo,
		stock:    stockLedger,
		intents:  intents,
		outbox:   publisher,
		logg:     logg,
		currency: "USD",
	}, nil
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*Result, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ids := make([]uuid.UUID, 0, len(input.Items))
		for _, item := range input.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := s.repo.WithTx(tx).FindProducts(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}

		built, err := buildOrder(input, products)
		if err != nil {
			return err
		}

		ordersRepo := s.orders.WithTx(tx)
		if err := ordersRepo.Create(ctx, built.order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.stock.Reserve(ctx, tx, built.order.ID, built.reserve); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   built.order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.RoleBuyer.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:         built.order.ID,
				BuyerID:         built.order.BuyerID,
				SellerID:        built.order.SellerID,
				Channel:         built.order.Channel.String(),
				FulfillmentType: built.order.FulfillmentType.String(),
				TotalCents:      built.order.TotalCents,
				DepositCents:    built.order.DepositCents,
				Currency:        built.order.Currency,
				ItemCount:       len(built.order.Items),
			},
		}); err != nil {
			return err
		}

		order, err = ordersRepo.FindByID(ctx, built.order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The intent is opened after commit so the gateway round trip never
	// holds stock rows locked.
	return s.openFirstIntent(ctx, order), nil
}

func (s *service) RetryPaymentIntent(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*Result, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := orders.Authorize(order, actor, orders.PartyBuyer); err != nil {
		return nil, err
	}
	switch {
	case order.Status == enums.OrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")
	case order.AmountPaidCents > 0:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "first payment already received; use the balance session")
	}

	purpose, amount := firstPayment(order)
	intent, err := s.intents.EnsureOpen(ctx, order, purpose, amount)
	if err != nil {
		return nil, err
	}
	return &Result{Order: order, Intent: intent}, nil
}

func (s *service) openFirstIntent(ctx context.Context, order *models.Order) *Result {
	purpose, amount := firstPayment(order)
	intent, err := s.intents.EnsureOpen(ctx, order, purpose, amount)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"purpose":      purpose.String(),
			"amount_cents": amount,
		})
		s.logg.Warn(logCtx, "checkout payment intent deferred: "+err.Error())
		return &Result{Order: order, PaymentPending: true}
	}
	return &Result{Order: order, Intent: intent}
}

// firstPayment is the deposit for deposit orders and the full total otherwise.
func firstPayment(order *models.Order) (enums.IntentPurpose, int64) {
	if order.RequiresDeposit {
		return enums.PurposeDeposit, order.DepositCents
	}
	return enums.PurposeFull, order.TotalCents
}

func (s *service) validate(input *CheckoutInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if input.Channel == "" {
		input.Channel = enums.ChannelRetail
	}
	if !input.Channel.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid channel %q", input.Channel)
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	input.ShippingAddress = input.ShippingAddress.Normalize()
	if err := input.ShippingAddress.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Currency == "" {
		input.Currency = s.currency
	}
	return nil
}
