package pkg

const (
	HeaderTraceId   string = "X-Trace-Id"
	HeaderRequestId string = "X-Request-Id"
)

// Structured log field names.
const (
	TraceId  string = "trace_id"
	OrderId  string = "order_id"
	SlotId   string = "slot_id"
	WorkerId string = "worker_id"
)

// PaymentState follows an order through the queue.
type PaymentState string

const (
	PaymentStateUnseen         PaymentState = "unseen"
	PaymentStateActive         PaymentState = "active"
	PaymentStateProcessing     PaymentState = "processing"
	PaymentStateFailedRetrying PaymentState = "failed_retrying"
	PaymentStateComplete       PaymentState = "complete"
	PaymentStateStaleReclaimed PaymentState = "stale_reclaimed"
)
