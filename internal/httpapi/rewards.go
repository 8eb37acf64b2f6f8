package httpapi

import (
	"net/http"

	"moralduel-controlplane/pkg/db/pagination"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/settlement"

	"github.com/gin-gonic/gin"
)

type listRewardsQuery struct {
	Status string `form:"status"`
	pagination.Pagination
}

type claimRequest struct {
	LedgerRef string `json:"ledger_ref"`
}

func (h *Handler) listRewards(c *gin.Context) {
	var q listRewardsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	out, err := h.rewards.ListByUser(c.Request.Context(), reward.ListRequest{
		UserID:     actor(c).UserID,
		Status:     reward.Status(q.Status),
		Pagination: q.Pagination,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) rewardSummary(c *gin.Context) {
	out, err := h.rewards.Summary(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getReward(c *gin.Context) {
	out, err := h.rewards.Get(c.Request.Context(), actor(c).UserID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// claimReward accepts an empty body; the ledger reference is optional.
func (h *Handler) claimReward(c *gin.Context) {
	var req claimRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(invalidBody(err))
			return
		}
	}

	out, err := h.settlement.Claim(c.Request.Context(), settlement.ClaimRequest{
		UserID:    actor(c).UserID,
		RewardID:  c.Param("id"),
		LedgerRef: req.LedgerRef,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}

func (h *Handler) claimPending(c *gin.Context) {
	out, err := h.settlement.ClaimPending(c.Request.Context(), actor(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}
