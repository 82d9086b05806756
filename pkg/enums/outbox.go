package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateBalanceRequest OutboxAggregateType = "balance_request"
	AggregateRefund         OutboxAggregateType = "refund"
	AggregateDocument       OutboxAggregateType = "document"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateBalanceRequest,
	AggregateRefund,
	AggregateDocument,
}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(validAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, "aggregate type", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated            OutboxEventType = "order.created"
	EventOrderPaymentConfirmed   OutboxEventType = "order.payment_confirmed"
	EventOrderFulfillmentUpdated OutboxEventType = "order.fulfillment_updated"
	EventOrderCancelled          OutboxEventType = "order.cancelled"
	EventBalanceRequested        OutboxEventType = "balance.requested"
	EventRefundSucceeded         OutboxEventType = "refund.succeeded"
	EventDocumentGenerated       OutboxEventType = "document.generated"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaymentConfirmed,
	EventOrderFulfillmentUpdated,
	EventOrderCancelled,
	EventBalanceRequested,
	EventRefundSucceeded,
	EventDocumentGenerated,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(validEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validEventTypes, "event type", value)
}
