package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"civicreport-be/models"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IssueController struct {
	Issues  *services.IssueService
	Timeout time.Duration
	Logger  *slog.Logger
}

// CreateIssue handles the creation of a new issue
func (ic *IssueController) CreateIssue(c *gin.Context) {
	reporterID, ok := currentUserID(c)
	if !ok {
		return
	}

	var draft models.IssueDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c, ic.Timeout)
	defer cancel()

	result, err := ic.Issues.Submit(ctx, reporterID, draft)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}

	// xpPoints is null when the reward is waiting on reconciliation
	c.JSON(http.StatusCreated, gin.H{
		"issue":    result.Issue,
		"xpPoints": result.Balance,
	})
}

// GetMyIssues lists the caller's reports in submission order.
func (ic *IssueController) GetMyIssues(c *gin.Context) {
	reporterID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, ic.Timeout)
	defer cancel()

	issues, err := ic.Issues.ListByReporter(ctx, reporterID)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues, "total": len(issues)})
}

// GetIssue retrieves a single issue by ID
func (ic *IssueController) GetIssue(c *gin.Context) {
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	ctx, cancel := requestContext(c, ic.Timeout)
	defer cancel()

	issue, err := ic.Issues.Get(ctx, issueID)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// ResolveIssue marks a pending issue solved or rejected.
func (ic *IssueController) ResolveIssue(c *gin.Context) {
	solverID, ok := currentUserID(c)
	if !ok {
		return
	}
	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	var input services.ResolveInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c, ic.Timeout)
	defer cancel()

	issue, err := ic.Issues.Resolve(ctx, solverID, issueID, input)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) GetDashboard(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.Timeout)
	defer cancel()

	dashboard, err := ic.Issues.Dashboard(ctx)
	if err != nil {
		respondError(c, ic.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
