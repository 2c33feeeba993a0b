package controllers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"civicreport-be/services"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	Leaderboard *services.LeaderboardService
	Timeout     time.Duration
	Logger      *slog.Logger
}

// GetLeaderboard ranks citizens by XP. An invalid limit falls back to the
// default size.
func (uc *UserController) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	ctx, cancel := requestContext(c, uc.Timeout)
	defer cancel()

	entries, err := uc.Leaderboard.TopCitizens(ctx, limit)
	if err != nil {
		respondError(c, uc.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
