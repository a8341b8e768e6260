package handler

import (
	"net/http"

	"github.com/cuongbtq/agenthire/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// Challenge handles POST /api/v1/auth/challenge
// Issues a message for the wallet to sign
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req dto.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	challenge, err := h.auth.Issue(c.Request.Context(), req.Wallet)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// Verify handles POST /api/v1/auth/verify
// Exchanges a signed challenge for a bearer token
func (h *AuthHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	session, err := h.auth.Verify(c.Request.Context(), req.Wallet, req.Signature)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
