package httpapi

import (
	"net/http"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/db/pagination"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/cases"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createCaseRequest struct {
	Title   string `json:"title"`
	Context string `json:"context"`
}

type listCasesQuery struct {
	Status string `form:"status"`
	pagination.Pagination
}

func invalidBody(err error) error {
	return errutil.BadRequest("invalid request body", err)
}

func (h *Handler) listCases(c *gin.Context) {
	var q listCasesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	out, err := h.cases.List(c.Request.Context(), cases.ListRequest{
		Status:     cases.Status(q.Status),
		Pagination: q.Pagination,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getCase(c *gin.Context) {
	out, err := h.cases.Get(c.Request.Context(), c.Param("id"), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// createCase stores a user case pending moderation and queues the automatic
// moderation run.
func (h *Handler) createCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidBody(err))
		return
	}

	ctx := c.Request.Context()
	created, err := h.cases.CreateUserCase(ctx, cases.CreateCaseRequest{
		UserID:  actor(c).UserID,
		Title:   req.Title,
		Context: req.Context,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.jobs.ModerateLater(ctx, created.ID); err != nil {
		logger.FromContext(ctx).Warn("failed to queue moderation", zap.String("case_id", created.ID), zap.Error(err))
	}

	c.JSON(http.StatusCreated, created)
}

func (h *Handler) activateCase(c *gin.Context) {
	out, err := h.cases.Activate(c.Request.Context(), c.Param("id"), actor(c).Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) moderateCase(c *gin.Context) {
	out, result, err := h.cases.Moderate(c.Request.Context(), c.Param("id"), actor(c).Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"case":     out,
		"approved": result.Approved,
		"reason":   result.Reason,
	})
}

func (h *Handler) reconcileCase(c *gin.Context) {
	if !h.authz.Allowed(actor(c).Role, authz.ObjectCase, authz.ActionModerate) {
		_ = c.Error(cases.ErrNotAllowed)
		return
	}

	if err := h.jobs.ReconcileLater(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"case_id": c.Param("id"), "queued": true})
}
