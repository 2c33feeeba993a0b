package routes

import (
	"net/http"

	"civicreport-be/controllers"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Dependencies are the handlers and middleware settings shared by the route
// groups.
type Dependencies struct {
	Auth   *controllers.AuthController
	Issues *controllers.IssueController
	Users  *controllers.UserController

	JWTSecret string
	// Redis backs the daily submission limit; nil disables it.
	Redis       *redis.Client
	LimitPrefix string
	DailyLimit  int
}

// Setup registers every route group on r.
func Setup(r *gin.Engine, d Dependencies) {
	AuthRoutes(r, d)
	IssueRoutes(r, d)
	UserRoutes(r, d)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
}
