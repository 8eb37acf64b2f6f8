package httpapi

import (
	"net/http"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/health"
	"moralduel-controlplane/pkg/middleware"
	"moralduel-controlplane/services/badge"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/participation"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/settlement"
	"moralduel-controlplane/services/task"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		ProvideRouter,
	),
)

type Handler struct {
	authz         authz.Authorizer
	cases         CaseAPI
	participation ParticipationAPI
	rewards       RewardAPI
	settlement    SettlementAPI
	leaderboard   LeaderboardAPI
	ledger        LedgerAPI
	badges        BadgeAPI
	jobs          JobAPI
}

type Params struct {
	fx.In
	Authz         authz.Authorizer
	Cases         *cases.Service
	Participation *participation.Service
	Rewards       *reward.Service
	Settlement    *settlement.Service
	Leaderboard   *leaderboard.Service
	Ledger        *ledger.Service
	Badges        *badge.Service
	Jobs          *task.Dispatcher
}

func NewHandler(p Params) *Handler {
	return &Handler{
		authz:         p.Authz,
		cases:         p.Cases,
		participation: p.Participation,
		rewards:       p.Rewards,
		settlement:    p.Settlement,
		leaderboard:   p.Leaderboard,
		ledger:        p.Ledger,
		badges:        p.Badges,
		jobs:          p.Jobs,
	}
}

// ProvideRouter returns the traced HTTP handler served by pkg/server.
func ProvideRouter(h *Handler, hs health.HealthService) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error(), middleware.ActorContext())

	r.GET("/healthz", hs.Liveness)
	r.GET("/readyz", hs.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Register(r)

	return otelhttp.NewHandler(r, "moralduel-api")
}

func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/v1")

	api.GET("/cases", h.listCases)
	api.GET("/cases/:id", h.getCase)
	api.GET("/leaderboard", h.getLeaderboard)

	authed := api.Group("", middleware.RequireActor())

	authed.POST("/cases", h.createCase)
	authed.POST("/cases/:id/activate", h.activateCase)
	authed.POST("/cases/:id/moderate", h.moderateCase)
	authed.POST("/cases/:id/reconcile", h.reconcileCase)
	authed.GET("/cases/:id/vote", h.myVote)
	authed.POST("/cases/:id/vote", h.vote)
	authed.POST("/cases/:id/arguments", h.submitArgument)
	authed.POST("/cases/:id/arguments/:argumentId/like", h.likeArgument)
	authed.DELETE("/cases/:id/arguments/:argumentId/like", h.unlikeArgument)

	authed.GET("/rewards", h.listRewards)
	authed.GET("/rewards/summary", h.rewardSummary)
	authed.POST("/rewards/claim", h.claimPending)
	authed.GET("/rewards/:id", h.getReward)
	authed.POST("/rewards/:id/claim", h.claimReward)

	authed.GET("/leaderboard/me", h.myRank)

	authed.GET("/balance", h.getBalance)
	authed.GET("/balance/entries", h.listEntries)

	authed.GET("/badges", h.listBadges)
	authed.GET("/badges/progress", h.badgeProgress)

	admin := authed.Group("/admin")
	admin.GET("/ledger/:userId/verify", h.verifyLedger)
	admin.GET("/jobs", h.jobHistory)
	admin.POST("/jobs/:name/trigger", h.triggerJob)
}

// actor returns the caller identity attached by middleware.ActorContext.
func actor(c *gin.Context) middleware.Actor {
	return middleware.GetActor(c.Request.Context())
}
