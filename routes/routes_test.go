package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civicreport-be/controllers"
	"civicreport-be/middlewares"
	"civicreport-be/services"
	"civicreport-be/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "routes-test-secret"

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T, client *redis.Client, dailyLimit int) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	issues := services.NewIssueService(st, services.NewMemoryCreditQueue(), logger)

	r := gin.New()
	Setup(r, Dependencies{
		Auth: &controllers.AuthController{
			Users:    st.Users(),
			Secret:   secret,
			TokenTTL: time.Hour,
			Timeout:  time.Second,
			Logger:   logger,
		},
		Issues: &controllers.IssueController{Issues: issues, Timeout: time.Second, Logger: logger},
		Users: &controllers.UserController{
			Leaderboard: services.NewLeaderboardService(st.Ledger()),
			Timeout:     time.Second,
			Logger:      logger,
		},
		JWTSecret:   secret,
		Redis:       client,
		LimitPrefix: "issue_limit",
		DailyLimit:  dailyLimit,
	})
	return &api{t: t, router: r}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		payload = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup registers and logs in, returning the session token.
func (a *api) signup(name, email, role string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": "secret123", "role": role,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "secret123"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		Token string `json:"token"`
	}](a.t, w).Token
}

type issueBody struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	PriorityRating float64 `json:"priorityRating"`
	Location       string  `json:"location"`
	SolverID       *string `json:"solverId"`
	SolvedAt       *string `json:"solvedAt"`
}

func validDraft() gin.H {
	return gin.H{
		"title":       "Broken streetlight",
		"description": strings.Repeat("a", 150),
		"severity":    "high",
		"location":    "Main St",
		"verified":    true,
	}
}

func TestPing(t *testing.T) {
	a := newAPI(t, nil, 10)
	w := a.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t, nil, 10)
	token := a.signup("Alice", "Alice@Example.com", "")

	t.Run("duplicate email", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/register", "", gin.H{
			"name": "Other", "email": "alice@example.com", "password": "secret123",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "already exists")
	})

	t.Run("invalid registration lists fields", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "Bob", "email": "nope", "password": "1"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[struct {
			Fields []string `json:"fields"`
		}](t, w)
		assert.ElementsMatch(t, []string{"email", "password"}, body.Fields)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "secret123"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("me", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[map[string]any](t, w)
		assert.Equal(t, "alice@example.com", me["email"])
		assert.Equal(t, "citizen", me["role"])
		assert.EqualValues(t, 0, me["xpPoints"])
		assert.NotContains(t, me, "password")
	})

	t.Run("me without token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/auth/me", "", nil).Code)
	})

	t.Run("login sets cookie and logout clears it", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret123"})
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middlewares.AuthCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		w = a.do(http.MethodPost, "/api/auth/logout", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		cookies = w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Empty(t, cookies[0].Value)
		assert.Negative(t, cookies[0].MaxAge)
	})
}

func TestIssueLifecycle(t *testing.T) {
	a := newAPI(t, nil, 10)
	alice := a.signup("Alice", "alice@example.com", "citizen")
	ngo := a.signup("Relief", "ngo@example.com", "ngo")

	w := a.do(http.MethodPost, "/api/issues", "", validDraft())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/api/issues", alice, gin.H{"severity": "urgent"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	invalid := decode[struct {
		Fields []string `json:"fields"`
	}](t, w)
	assert.ElementsMatch(t, []string{"title", "description", "severity", "location", "verified"}, invalid.Fields)

	w = a.do(http.MethodPost, "/api/issues", alice, validDraft())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Issue    issueBody `json:"issue"`
		XPPoints *int64    `json:"xpPoints"`
	}](t, w)
	assert.Equal(t, "pending", created.Issue.Status)
	assert.Equal(t, 4.5, created.Issue.PriorityRating)
	assert.Nil(t, created.Issue.SolverID)
	assert.Nil(t, created.Issue.SolvedAt)
	require.NotNil(t, created.XPPoints)
	assert.EqualValues(t, 50, *created.XPPoints)

	issuePath := "/api/issues/" + created.Issue.ID

	t.Run("coordinates fill location", func(t *testing.T) {
		draft := validDraft()
		draft["location"] = ""
		draft["latitude"] = 12.5
		draft["longitude"] = -3.25
		w := a.do(http.MethodPost, "/api/issues", alice, draft)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decode[struct {
			Issue issueBody `json:"issue"`
		}](t, w)
		assert.Equal(t, "12.500000, -3.250000", body.Issue.Location)
	})

	t.Run("mine lists in submission order", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/issues/mine", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Issues []issueBody `json:"issues"`
			Total  int         `json:"total"`
		}](t, w)
		require.Equal(t, 2, body.Total)
		assert.Equal(t, created.Issue.ID, body.Issues[0].ID)

		w = a.do(http.MethodGet, "/api/issues/mine", ngo, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"issues":[],"total":0}`, w.Body.String())
	})

	t.Run("get", func(t *testing.T) {
		w := a.do(http.MethodGet, issuePath, alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.Issue.ID, decode[issueBody](t, w).ID)

		assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/issues/not-an-id", alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/issues/000000000000000000000000", alice, nil).Code)
	})

	t.Run("citizens cannot resolve", func(t *testing.T) {
		w := a.do(http.MethodPost, issuePath+"/resolve", alice, gin.H{"outcome": "solved"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("outcome must be terminal", func(t *testing.T) {
		w := a.do(http.MethodPost, issuePath+"/resolve", ngo, gin.H{"outcome": "pending"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ngo solves once", func(t *testing.T) {
		w := a.do(http.MethodPost, issuePath+"/resolve", ngo, gin.H{"outcome": "solved", "solutionImageUrl": "https://img/fixed.png"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resolved := decode[issueBody](t, w)
		assert.Equal(t, "solved", resolved.Status)
		assert.NotNil(t, resolved.SolverID)
		assert.NotNil(t, resolved.SolvedAt)

		w = a.do(http.MethodPost, issuePath+"/resolve", ngo, gin.H{"outcome": "rejected"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("reporter balance", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/auth/me", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		// two submissions plus the solve reward
		assert.EqualValues(t, 50+50+services.DefaultSolveXP, decode[map[string]any](t, w)["xpPoints"])
	})

	t.Run("leaderboard ranks citizens only", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/leaderboard?limit=abc", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Leaderboard []services.LeaderboardEntry `json:"leaderboard"`
		}](t, w)
		require.Len(t, body.Leaderboard, 1)
		assert.Equal(t, 1, body.Leaderboard[0].Rank)
		assert.Equal(t, "Alice", body.Leaderboard[0].Name)
	})

	t.Run("dashboard", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/dashboard", "", nil).Code)

		w := a.do(http.MethodGet, "/api/dashboard", ngo, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Counts       map[string]int64 `json:"counts"`
			Total        int64            `json:"total"`
			PendingQueue []issueBody      `json:"pendingQueue"`
			Leaderboard  []any            `json:"leaderboard"`
		}](t, w)
		assert.Equal(t, map[string]int64{"pending": 1, "solved": 1, "rejected": 0}, body.Counts)
		assert.EqualValues(t, 2, body.Total)
		require.Len(t, body.PendingQueue, 1)
		assert.Equal(t, "pending", body.PendingQueue[0].Status)
		assert.Len(t, body.Leaderboard, 1)
	})
}

func TestEmptyLeaderboard(t *testing.T) {
	a := newAPI(t, nil, 10)
	w := a.do(http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"leaderboard":[]}`, w.Body.String())
}

func TestSubmissionRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := newAPI(t, client, 1)
	token := a.signup("Alice", "alice@example.com", "")

	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/issues", token, validDraft()).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/api/issues", token, validDraft()).Code)

	w := a.do(http.MethodGet, "/api/issues/mine", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}
