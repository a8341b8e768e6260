// Package lifecycle is the job state machine: the only code allowed to change a
// job's status.
package lifecycle

import (
	"slices"

	"github.com/cuongbtq/agenthire/internal/domain"
)

type rule struct {
	from []domain.Status
	// to holds one status, or several when the event's handler picks the target.
	to []domain.Status
}

func one(s domain.Status) []domain.Status { return []domain.Status{s} }

var transitions = map[domain.Event]rule{
	domain.EventPaymentConfirmed: {
		from: one(domain.StatusPending),
		to:   one(domain.StatusPaid),
	},
	domain.EventAgentAccept: {
		from: one(domain.StatusPaid),
		to:   one(domain.StatusInProgress),
	},
	domain.EventAgentDecline: {
		from: []domain.Status{domain.StatusPending, domain.StatusPaid},
		to:   one(domain.StatusRefunded),
	},
	domain.EventAgentDeliver: {
		from: []domain.Status{domain.StatusPaid, domain.StatusInProgress},
		to:   one(domain.StatusDelivered),
	},
	domain.EventPurchaserApprove: {
		from: one(domain.StatusDelivered),
		to:   one(domain.StatusCompleted),
	},
	domain.EventPurchaserRevision: {
		from: one(domain.StatusDelivered),
		to:   one(domain.StatusInProgress),
	},
	domain.EventPurchaserDispute: {
		from: []domain.Status{domain.StatusInProgress, domain.StatusDelivered},
		to:   one(domain.StatusDisputed),
	},
	domain.EventDisputeResolved: {
		from: one(domain.StatusDisputed),
		to:   []domain.Status{domain.StatusCompleted, domain.StatusRefunded},
	},
	domain.EventProcessingFailed: {
		from: []domain.Status{domain.StatusPaid, domain.StatusInProgress},
		to:   one(domain.StatusFailed),
	},
}

// Permits reports whether event may be applied to a job in status from.
func Permits(from domain.Status, event domain.Event) bool {
	r, ok := transitions[event]
	return ok && slices.Contains(r.from, from)
}

// Targets lists the statuses event can move a job to.
func Targets(event domain.Event) []domain.Status {
	return slices.Clone(transitions[event].to)
}

// Next returns the status event moves a job to from status from. Events with
// more than one target return the first; callers choosing the target check it
// with allowsTarget.
func Next(from domain.Status, event domain.Event) (domain.Status, error) {
	if !Permits(from, event) {
		return "", domain.RejectTransition(event, from)
	}
	return transitions[event].to[0], nil
}

func allowsTarget(event domain.Event, to domain.Status) bool {
	return slices.Contains(transitions[event].to, to)
}
