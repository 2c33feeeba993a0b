package routes

import (
	"github.com/gin-gonic/gin"
)

func UserRoutes(r *gin.Engine, d Dependencies) {
	r.GET("/api/leaderboard", d.Users.GetLeaderboard)
}
