package httpapi

import (
	"net/http"
	"strconv"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/task"

	"github.com/gin-gonic/gin"
)

var errForbidden = errutil.BaseError{Code: errutil.StatusForbidden, Message: "not allowed"}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errutil.BadRequest("invalid "+key, err, errutil.WithDetails(errutil.Detail{
			Field:   key,
			Message: "must be an integer",
		}))
	}
	return n, nil
}

func (h *Handler) getLeaderboard(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}

	period := leaderboard.Period(c.DefaultQuery("period", string(leaderboard.PeriodAllTime)))
	entries, err := h.leaderboard.Get(c.Request.Context(), period, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "entries": entries})
}

func (h *Handler) myRank(c *gin.Context) {
	period := leaderboard.Period(c.DefaultQuery("period", string(leaderboard.PeriodAllTime)))
	out, err := h.leaderboard.GetUserRank(c.Request.Context(), actor(c).UserID, period)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getBalance(c *gin.Context) {
	out, err := h.ledger.GetBalance(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listEntries(c *gin.Context) {
	out, err := h.ledger.ListEntries(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func (h *Handler) listBadges(c *gin.Context) {
	out, err := h.badges.List(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": out})
}

func (h *Handler) badgeProgress(c *gin.Context) {
	out, err := h.badges.Progress(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) verifyLedger(c *gin.Context) {
	if !h.authz.Allowed(actor(c).Role, authz.ObjectReward, authz.ActionVerify) {
		_ = c.Error(errForbidden)
		return
	}

	out, err := h.ledger.VerifyChain(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) jobHistory(c *gin.Context) {
	if !h.authz.Allowed(actor(c).Role, authz.ObjectJob, authz.ActionTrigger) {
		_ = c.Error(errForbidden)
		return
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}

	jobs, err := h.jobs.History(c.Request.Context(), c.Query("name"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) triggerJob(c *gin.Context) {
	name := c.Param("name")
	id, err := h.jobs.Trigger(c.Request.Context(), name, actor(c).Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": name, "task_id": id, "trigger": task.TriggerManual})
}
