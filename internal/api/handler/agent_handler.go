package handler

import (
	"net/http"

	"github.com/cuongbtq/agenthire/internal/api/dto"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterAgent handles POST /api/v1/agents
func (h *AgentHandler) RegisterAgent(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		respondError(c, h.logger, domain.Unauthorizedf("authentication required"))
		return
	}

	var req dto.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	agent, err := h.machine.RegisterAgent(c.Request.Context(), actor, domain.NewAgent{
		Name:          req.Name,
		PayoutAddress: req.PayoutAddress,
		WebhookURL:    req.WebhookURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, agent)
}

// GetAgent handles GET /api/v1/agents/:agent_id
// Returns the agent with its current trust assessment
func (h *AgentHandler) GetAgent(c *gin.Context) {
	agentID := c.Param("agent_id")
	if _, err := uuid.Parse(agentID); err != nil {
		badRequest(c, "agent_id must be a valid UUID")
		return
	}

	agent, assessment, err := h.machine.Agent(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.AgentResponse{Agent: agent, Trust: assessment})
}

// RefreshTrust handles POST /api/v1/agents/:agent_id/trust
// Recomputes and stores the agent's tier
func (h *AgentHandler) RefreshTrust(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok || !actor.Admin {
		respondError(c, h.logger, domain.Unauthorizedf("admin required"))
		return
	}

	agentID := c.Param("agent_id")
	if _, err := uuid.Parse(agentID); err != nil {
		badRequest(c, "agent_id must be a valid UUID")
		return
	}

	agent, assessment, err := h.machine.RefreshTrust(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.AgentResponse{Agent: agent, Trust: assessment})
}
