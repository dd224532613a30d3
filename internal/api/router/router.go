package router

import (
	"github.com/gin-gonic/gin"

	"github.com/erpai/verification-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	verificationHandler := handler.NewVerificationHandler(deps)

	// Health check endpoint
	r.GET("/health", verificationHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		verifications := v1.Group("/verifications")
		{
			// POST /api/v1/verifications - Start a verification run
			verifications.POST("", verificationHandler.CreateVerification)

			// GET /api/v1/verifications/latest?job_no= - Latest run for a job
			verifications.GET("/latest", verificationHandler.GetLatestVerification)

			// GET /api/v1/verifications/:request_id - Run details
			verifications.GET("/:request_id", verificationHandler.GetVerification)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", verificationHandler.ListJobs)

			// GET /api/v1/jobs/:job_no - Job details
			jobs.GET("/:job_no", verificationHandler.GetJob)
		}

		// GET /api/v1/activity - Audit trail
		v1.GET("/activity", verificationHandler.ListActivity)
	}

	return r
}
