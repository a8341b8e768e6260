package domain

// Status is the lifecycle status of a job.
type Status string

// Job status constants
const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusInProgress Status = "in_progress"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusPaid,
	StatusInProgress,
	StatusDelivered,
	StatusCompleted,
	StatusDisputed,
	StatusRefunded,
	StatusFailed,
}

// IsTerminal reports whether no further status-mutating event is accepted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Event names a state machine input.
type Event string

// Job lifecycle events
const (
	EventPaymentConfirmed  Event = "payment_confirmed"
	EventAgentAccept       Event = "agent_accept"
	EventAgentDecline      Event = "agent_decline"
	EventAgentDeliver      Event = "agent_deliver"
	EventPurchaserApprove  Event = "purchaser_approve"
	EventPurchaserRevision Event = "purchaser_request_revision"
	EventPurchaserDispute  Event = "purchaser_dispute"
	EventDisputeResolved   Event = "dispute_resolved"
	EventProcessingFailed  Event = "processing_failed"
)

// AllEvents lists every event the state machine understands.
var AllEvents = []Event{
	EventPaymentConfirmed,
	EventAgentAccept,
	EventAgentDecline,
	EventAgentDeliver,
	EventPurchaserApprove,
	EventPurchaserRevision,
	EventPurchaserDispute,
	EventDisputeResolved,
	EventProcessingFailed,
}

// WebhookFailureMessage is stored on jobs failed by an exhausted webhook delivery.
const WebhookFailureMessage = "Webhook delivery failed"
