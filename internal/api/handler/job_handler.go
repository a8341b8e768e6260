package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agenthire/internal/api/dto"
	"github.com/cuongbtq/agenthire/internal/dispute"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

// CreateJob handles POST /api/v1/jobs
// Creates a pending job for the calling wallet
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		respondError(c, h.logger, domain.Unauthorizedf("authentication required"))
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Invalid request body")
		return
	}

	job, err := h.machine.CreateJob(c.Request.Context(), actor, domain.NewJob{
		AgentID:    req.AgentID,
		SkillID:    req.SkillID,
		ServiceKey: req.ServiceKey,
		Input:      req.Input,
		Price:      req.Price,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	actor, jobID, ok := h.jobRequest(c)
	if !ok {
		return
	}

	job, err := h.machine.GetJob(c.Request.Context(), actor, jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		respondError(c, h.logger, domain.Unauthorizedf("authentication required"))
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor")
		return
	}

	page, err := h.machine.ListJobs(c.Request.Context(), actor, domain.JobFilter{
		AgentID:  req.AgentID,
		Status:   domain.Status(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ListJobsResponse{Jobs: page.Jobs}
	if resp.Jobs == nil {
		resp.Jobs = []domain.Job{}
	}
	if page.Next != nil {
		resp.NextCursor = EncodeJobCursor(page.Next)
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmPayment handles POST /api/v1/jobs/:job_id/payment
func (h *JobHandler) ConfirmPayment(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.ConfirmPayment(c.Request.Context(), actor, jobID, req.TxRef)
	})
}

// Accept handles POST /api/v1/jobs/:job_id/accept
func (h *JobHandler) Accept(c *gin.Context) {
	h.transition(c, nil, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Accept(c.Request.Context(), actor, jobID)
	})
}

// Decline handles POST /api/v1/jobs/:job_id/decline
func (h *JobHandler) Decline(c *gin.Context) {
	h.transition(c, nil, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Decline(c.Request.Context(), actor, jobID)
	})
}

// Deliver handles POST /api/v1/jobs/:job_id/deliver
func (h *JobHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Deliver(c.Request.Context(), actor, jobID, req.Output)
	})
}

// Approve handles POST /api/v1/jobs/:job_id/approve
func (h *JobHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Approve(c.Request.Context(), actor, jobID, req.Rating)
	})
}

// RequestRevision handles POST /api/v1/jobs/:job_id/revision
func (h *JobHandler) RequestRevision(c *gin.Context) {
	h.transition(c, nil, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.RequestRevision(c.Request.Context(), actor, jobID)
	})
}

// Dispute handles POST /api/v1/jobs/:job_id/dispute
func (h *JobHandler) Dispute(c *gin.Context) {
	var req dto.DisputeRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Dispute(c.Request.Context(), actor, jobID, req.Reason)
	})
}

// ResolveDispute handles POST /api/v1/jobs/:job_id/resolve
func (h *JobHandler) ResolveDispute(c *gin.Context) {
	var req dto.ResolveDisputeRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		outcome, err := dispute.ParseOutcome(req.Outcome)
		if err != nil {
			return nil, err
		}
		return h.machine.ResolveDispute(c.Request.Context(), actor, jobID, outcome)
	})
}

// Fail handles POST /api/v1/jobs/:job_id/fail
// Lets an admin fail a job that is stuck in processing
func (h *JobHandler) Fail(c *gin.Context) {
	var req dto.FailJobRequest
	h.transition(c, &req, func(actor domain.Actor, jobID string) (*domain.Job, error) {
		return h.machine.Fail(c.Request.Context(), actor, jobID, req.Error)
	})
}

// transition binds the optional body, runs apply and writes the updated job.
func (h *JobHandler) transition(c *gin.Context, body any, apply func(actor domain.Actor, jobID string) (*domain.Job, error)) {
	actor, jobID, ok := h.jobRequest(c)
	if !ok {
		return
	}

	if body != nil {
		if err := bindOptionalJSON(c, body); err != nil {
			h.logger.Debug("Invalid request body",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			badRequest(c, "Invalid request body")
			return
		}
	}

	job, err := apply(actor, jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// bindOptionalJSON binds the request body, treating a missing body as {} so
// the struct's own validation decides whether it was required.
func bindOptionalJSON(c *gin.Context, body any) error {
	err := c.ShouldBindJSON(body)
	if errors.Is(err, io.EOF) {
		return binding.Validator.ValidateStruct(body)
	}
	return err
}

// jobRequest extracts the actor and validates the job_id path parameter.
func (h *JobHandler) jobRequest(c *gin.Context) (domain.Actor, string, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		respondError(c, h.logger, domain.Unauthorizedf("authentication required"))
		return domain.Actor{}, "", false
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "job_id must be a valid UUID")
		return domain.Actor{}, "", false
	}
	return actor, jobID, true
}
