package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/middlewares"
	"civicreport-be/models"
	"civicreport-be/store"
	authUtils "civicreport-be/utils"

	"github.com/gin-gonic/gin"
)

// AuthController serves registration, login and the current session.
type AuthController struct {
	Users      store.UserStore
	Secret     string
	TokenTTL   time.Duration
	Domain     string
	Production bool
	Timeout    time.Duration
	Logger     *slog.Logger
}

// RegisterUser handles user registration
func (a *AuthController) RegisterUser(c *gin.Context) {
	var input models.Registration
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, err := models.NewUser(input, time.Now())
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}

	ctx, cancel := requestContext(c, a.Timeout)
	defer cancel()

	if err := a.Users.Create(ctx, user); err != nil {
		respondError(c, a.Logger, err)
		return
	}

	a.Logger.InfoContext(ctx, "user registered", "user_id", user.ID.Hex(), "role", user.Role)
	c.JSON(http.StatusCreated, gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"xpPoints":  user.XPPoints,
		"createdAt": user.CreatedAt,
	})
}

// LoginUser checks the credentials and issues a token, returned in the body
// and as the auth cookie.
func (a *AuthController) LoginUser(c *gin.Context) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	if input.Email == "" || input.Password == "" {
		respondError(c, a.Logger, apperrors.ErrInvalidCredentials)
		return
	}

	ctx, cancel := requestContext(c, a.Timeout)
	defer cancel()

	user, err := a.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if errors.Is(err, apperrors.ErrNotFound) || (err == nil && !user.ComparePassword(input.Password)) {
		respondError(c, a.Logger, apperrors.ErrInvalidCredentials)
		return
	}
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}

	token, err := authUtils.GenerateToken(user.ID.Hex(), a.Secret, a.TokenTTL)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}

	http.SetCookie(c.Writer, a.cookie(token, int(a.TokenTTL.Seconds())))
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// GetMe returns the authenticated user with the current XP balance.
func (a *AuthController) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, a.Timeout)
	defer cancel()

	user, err := a.Users.GetByID(ctx, userID)
	if err != nil {
		respondError(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// LogoutUser handles user logout by clearing the auth_token cookie
func (a *AuthController) LogoutUser(c *gin.Context) {
	http.SetCookie(c.Writer, a.cookie("", -1))
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

func (a *AuthController) cookie(value string, maxAge int) *http.Cookie {
	// cross-origin cookies in production are host-only
	domain := a.Domain
	if a.Production {
		domain = ""
	}
	sameSite := http.SameSiteLaxMode
	if a.Production {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     middlewares.AuthCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   domain,
		Secure:   a.Production,
		HttpOnly: true,
		SameSite: sameSite,
	}
}
