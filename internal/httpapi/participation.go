package httpapi

import (
	"net/http"

	"moralduel-controlplane/services/participation"

	"github.com/gin-gonic/gin"
)

type voteRequest struct {
	Side string `json:"side"`
}

type argumentRequest struct {
	Side    string `json:"side"`
	Content string `json:"content"`
}

func (h *Handler) myVote(c *gin.Context) {
	vote, err := h.cases.VoteOf(c.Request.Context(), actor(c).UserID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote": vote})
}

func (h *Handler) vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidBody(err))
		return
	}

	out, err := h.participation.Vote(c.Request.Context(), participation.VoteRequest{
		UserID: actor(c).UserID,
		CaseID: c.Param("id"),
		Side:   req.Side,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) likeArgument(c *gin.Context) {
	out, err := h.participation.LikeArgument(c.Request.Context(), participation.LikeRequest{
		UserID:     actor(c).UserID,
		CaseID:     c.Param("id"),
		ArgumentID: c.Param("argumentId"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) unlikeArgument(c *gin.Context) {
	out, err := h.participation.UnlikeArgument(c.Request.Context(), participation.LikeRequest{
		UserID:     actor(c).UserID,
		CaseID:     c.Param("id"),
		ArgumentID: c.Param("argumentId"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) submitArgument(c *gin.Context) {
	var req argumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidBody(err))
		return
	}

	out, err := h.participation.SubmitArgument(c.Request.Context(), participation.SubmitRequest{
		UserID:  actor(c).UserID,
		CaseID:  c.Param("id"),
		Content: req.Content,
		Side:    req.Side,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}
