package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/agenthire/internal/api/dto"
	"github.com/cuongbtq/agenthire/internal/api/handler"
	"github.com/cuongbtq/agenthire/internal/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	agentHandler := handler.NewAgentHandler(deps)
	authHandler := handler.NewAuthHandler(deps)

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/challenge", authHandler.Challenge)
			authGroup.POST("/verify", authHandler.Verify)
		}

		// Reputation is public.
		v1.GET("/agents/:agent_id", agentHandler.GetAgent)

		secured := v1.Group("", AuthMiddleware(deps.Tokens))

		agents := secured.Group("/agents")
		{
			agents.POST("", agentHandler.RegisterAgent)
			agents.POST("/:agent_id/trust", agentHandler.RefreshTrust)
		}

		jobs := secured.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)

			jobs.POST("/:job_id/payment", jobHandler.ConfirmPayment)
			jobs.POST("/:job_id/accept", jobHandler.Accept)
			jobs.POST("/:job_id/decline", jobHandler.Decline)
			jobs.POST("/:job_id/deliver", jobHandler.Deliver)
			jobs.POST("/:job_id/approve", jobHandler.Approve)
			jobs.POST("/:job_id/revision", jobHandler.RequestRevision)
			jobs.POST("/:job_id/dispute", jobHandler.Dispute)
			jobs.POST("/:job_id/resolve", jobHandler.ResolveDispute)
			jobs.POST("/:job_id/fail", jobHandler.Fail)
		}
	}

	return r
}

// healthHandler reports 503 when any registered dependency check fails.
func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := dto.HealthResponse{
			Status:  "healthy",
			Service: "agenthire-api",
			Time:    time.Now().UTC(),
		}
		code := http.StatusOK

		if len(deps.HealthChecks) > 0 {
			resp.Components = make(map[string]string, len(deps.HealthChecks))
		}
		for name, check := range deps.HealthChecks {
			if err := check(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed",
					slog.String("component", name),
					slog.Any("error", err),
				)
				resp.Components[name] = "unhealthy"
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "healthy"
		}

		c.JSON(code, resp)
	}
}
