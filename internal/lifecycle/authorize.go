package lifecycle

import "github.com/cuongbtq/agenthire/internal/domain"

type role int

const (
	rolePurchaser role = iota
	roleAgent
	roleAdmin
	roleSystem
)

// eventRoles lists who may raise each event.
var eventRoles = map[domain.Event][]role{
	domain.EventPaymentConfirmed:  {rolePurchaser},
	domain.EventAgentAccept:       {roleAgent},
	domain.EventAgentDecline:      {roleAgent},
	domain.EventAgentDeliver:      {roleAgent, roleSystem},
	domain.EventPurchaserApprove:  {rolePurchaser},
	domain.EventPurchaserRevision: {rolePurchaser},
	domain.EventPurchaserDispute:  {rolePurchaser},
	domain.EventDisputeResolved:   {roleAdmin},
	domain.EventProcessingFailed:  {roleSystem, roleAdmin},
}

func (r role) heldBy(actor domain.Actor, job *domain.Job, agent *domain.Agent) bool {
	switch r {
	case rolePurchaser:
		return actor.Wallet != "" && actor.Wallet == job.RequesterWallet
	case roleAgent:
		return actor.Wallet != "" && actor.Wallet == agent.OwnerWallet
	case roleAdmin:
		return actor.Admin
	case roleSystem:
		return actor.System
	default:
		return false
	}
}

func authorize(actor domain.Actor, event domain.Event, job *domain.Job, agent *domain.Agent) error {
	for _, r := range eventRoles[event] {
		if r.heldBy(actor, job, agent) {
			return nil
		}
	}
	return domain.Unauthorizedf("actor may not apply %s to job %s", event, job.ID)
}

// canView reports whether actor may read job.
func canView(actor domain.Actor, job *domain.Job, agent *domain.Agent) bool {
	return actor.Admin || actor.System ||
		rolePurchaser.heldBy(actor, job, agent) ||
		roleAgent.heldBy(actor, job, agent)
}
