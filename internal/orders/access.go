package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Actor is the authenticated caller as asserted by the identity provider.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// SystemActor is the identity background jobs act under. It passes
// Authorize as an admin and is recorded as the actor on emitted events.
var SystemActor = Actor{
	UserID: uuid.MustParse("00000000-0000-4000-8000-00000000c0de"),
	Role:   enums.RoleAdmin,
}

func (a Actor) IsAdmin() bool { return a.Role == enums.RoleAdmin }

func (a Actor) Ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// Party says which sides of an order may perform an operation.
type Party int

const (
	PartyBuyer Party = 1 << iota
	PartySeller
	PartyEither = PartyBuyer | PartySeller
)

// Authorize admits admins, the order's buyer when allowed, and its seller
// when allowed.
func Authorize(order *models.Order, actor Actor, parties Party) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.IsAdmin() {
		return nil
	}
	if parties&PartyBuyer != 0 && order.BuyerID == actor.UserID {
		return nil
	}
	if parties&PartySeller != 0 && order.SellerID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
}
