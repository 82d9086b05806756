package enums

import "slices"

// ReservationStatus tracks units held against a stock record for one order item.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "reserved"
	ReservationSold     ReservationStatus = "sold"
	ReservationReleased ReservationStatus = "released"
	ReservationReturned ReservationStatus = "returned"
)

var validReservationStatuses = []ReservationStatus{
	ReservationReserved,
	ReservationSold,
	ReservationReleased,
	ReservationReturned,
}

func (r ReservationStatus) String() string {
	return string(r)
}

func (r ReservationStatus) IsValid() bool { return slices.Contains(validReservationStatuses, r) }

func ParseReservationStatus(value string) (ReservationStatus, error) {
	return parse(validReservationStatuses, "reservation status", value)
}
