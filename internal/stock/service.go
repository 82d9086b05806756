package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// ReasonSoldOut is the detail clients use to render "please choose another option".
const ReasonSoldOut = "sold_out"

// Availability is the read-only stock view for one product or variant.
type Availability struct {
	ProductID      uuid.UUID `json:"productId"`
	VariantKey     string    `json:"variantKey,omitempty"`
	TotalStock     int       `json:"totalStock"`
	ReservedStock  int       `json:"reservedStock"`
	SoldStock      int       `json:"soldStock"`
	AvailableStock int       `json:"availableStock"`
	IsAvailable    bool      `json:"isAvailable"`
	StockGated     bool      `json:"stockGated"`
}

// ReserveLine asks for qty units of one order item.
type ReserveLine struct {
	OrderItemID uuid.UUID
	Product     *models.Product
	VariantKey  string
	Quantity    int
}

// Ledger is the stock authority. Reads are side-effect free; mutations
// only happen inside the caller's order transaction.
type Ledger interface {
	CheckAvailability(ctx context.Context, productID uuid.UUID, variantKey string) (*Availability, error)
	Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReserveLine) error
	CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	RestockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Ledger, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) CheckAvailability(ctx context.Context, productID uuid.UUID, variantKey string) (*Availability, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	key := NormalizeKey(variantKey)
	if key == "" && product.VariantSchema.RequiresSelection() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant selection is required for this product")
	}
	if !product.VariantSchema.RequiresSelection() {
		key = ""
	}

	out := &Availability{
		ProductID:  product.ID,
		VariantKey: key,
		StockGated: product.FulfillmentType.IsStockGated(),
	}

	record, err := s.repo.FindRecord(ctx, product.ID, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock record")
	}
	if record != nil {
		out.TotalStock = record.TotalStock
		out.ReservedStock = record.ReservedStock
		out.SoldStock = record.SoldStock
		out.AvailableStock = record.Available()
	}
	if out.AvailableStock < 0 {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"product_id":  product.ID.String(),
			"variant_key": key,
		}), "negative available stock", errors.New("stock invariant violated"))
		out.AvailableStock = 0
	}

	if out.StockGated {
		out.IsAvailable = out.AvailableStock > 0
	} else {
		out.IsAvailable = true
	}
	return out, nil
}

// Reserve holds stock for every stock-gated line. Any shortfall aborts with
// CodeStockUnavailable and the caller's transaction rolls back the rest.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReserveLine) error {
	repo := s.repo.WithTx(tx)
	reservations := make([]models.StockReservation, 0, len(lines))

	for _, line := range lines {
		if line.Product == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "reserve line missing product")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if !line.Product.FulfillmentType.IsStockGated() {
			continue
		}

		record, err := repo.FindRecord(ctx, line.Product.ID, line.VariantKey)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock record")
		}
		if record == nil {
			return soldOut(line)
		}
		ok, err := repo.TryReserve(ctx, record.ID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !ok {
			return soldOut(line)
		}
		reservations = append(reservations, models.StockReservation{
			OrderID:       orderID,
			OrderItemID:   line.OrderItemID,
			StockRecordID: record.ID,
			Quantity:      line.Quantity,
			Status:        enums.ReservationReserved,
		})
	}

	if err := repo.CreateReservations(ctx, reservations); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist reservations")
	}
	return nil
}

// CommitOrder turns held units into sold units once the order is paid.
func (s *service) CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.transition(ctx, tx, orderID, enums.ReservationReserved, enums.ReservationSold, Repository.MoveReservedToSold)
}

// ReleaseOrder gives held units back when an unpaid order is cancelled.
func (s *service) ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.transition(ctx, tx, orderID, enums.ReservationReserved, enums.ReservationReleased, Repository.ReleaseReserved)
}

// RestockOrder returns sold units after a full refund of an unshipped order.
func (s *service) RestockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.transition(ctx, tx, orderID, enums.ReservationSold, enums.ReservationReturned, Repository.ReturnSold)
}

type countMove func(r Repository, ctx context.Context, recordID uuid.UUID, qty int) (bool, error)

func (s *service) transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.ReservationStatus, move countMove) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListReservations(ctx, orderID, from)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	for _, row := range rows {
		ok, err := move(repo, ctx, row.StockRecordID, row.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move stock")
		}
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeInternal, "stock record %s cannot move %d units from %s", row.StockRecordID, row.Quantity, from)
		}
		if err := repo.SetReservationStatus(ctx, row.ID, to); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation")
		}
	}
	return nil
}

func soldOut(line ReserveLine) error {
	return pkgerrors.New(pkgerrors.CodeStockUnavailable, "requested quantity is not available").
		WithDetails(map[string]any{
			"productId":  line.Product.ID,
			"variantKey": line.VariantKey,
			"requested":  line.Quantity,
			"reason":     ReasonSoldOut,
		})
}
