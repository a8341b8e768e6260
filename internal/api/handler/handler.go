package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/agenthire/internal/auth"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

// ActorKey is the gin context key holding the authenticated domain.Actor.
const ActorKey = "actor"

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Machine *lifecycle.Machine
	Auth    *auth.ChallengeService
	Tokens  *auth.TokenIssuer

	// HealthChecks are probed by /health, keyed by component name.
	HealthChecks map[string]func(context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	machine *lifecycle.Machine
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		machine: deps.Machine,
	}
}

// AgentHandler handles agent registration and reputation lookups
type AgentHandler struct {
	logger  *slog.Logger
	machine *lifecycle.Machine
}

// NewAgentHandler creates a new AgentHandler instance
func NewAgentHandler(deps *Dependencies) *AgentHandler {
	return &AgentHandler{
		logger:  deps.Logger,
		machine: deps.Machine,
	}
}

// AuthHandler serves the wallet sign-in flow
type AuthHandler struct {
	logger *slog.Logger
	auth   *auth.ChallengeService
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(deps *Dependencies) *AuthHandler {
	return &AuthHandler{
		logger: deps.Logger,
		auth:   deps.Auth,
	}
}

// actorFrom returns the actor stored by the auth middleware.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
