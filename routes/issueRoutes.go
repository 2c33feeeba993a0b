package routes

import (
	"civicreport-be/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue and dashboard routes
func IssueRoutes(r *gin.Engine, d Dependencies) {
	authRequired := middlewares.AuthMiddleware(d.JWTSecret)

	issue := r.Group("/api/issues", authRequired)
	{
		issue.POST("", middlewares.IssueRateLimiter(d.Redis, d.LimitPrefix, d.DailyLimit), d.Issues.CreateIssue)
		issue.GET("/mine", d.Issues.GetMyIssues)
		issue.GET("/:id", d.Issues.GetIssue)
		issue.POST("/:id/resolve", d.Issues.ResolveIssue)
	}

	r.GET("/api/dashboard", authRequired, d.Issues.GetDashboard)
}
