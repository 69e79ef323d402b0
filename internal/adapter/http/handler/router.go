package handler

import (
	"flow402/internal/adapter/http/middleware"
	redisStore "flow402/internal/adapter/storage/redis"
	"flow402/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RouterDeps holds every dependency SetupRouter needs to wire the gateway's
// routes. The process serves exactly one tenant (TenantID).
type RouterDeps struct {
	TenantID       uuid.UUID
	Pipeline       ports.PipelineService
	Topup          ports.TopupService
	Ledger         ports.LedgerService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, deps.TenantID.String(), group, rule, deps.Logger)
	}

	gatewayHandler := NewGatewayHandler(deps.Pipeline)
	r.POST("/gateway/deduct", rl("deduct"), gatewayHandler.Deduct)

	topupHandler := NewTopupHandler(deps.TenantID, deps.Topup)
	r.POST("/topup/mock", rl("topup"), topupHandler.Mock)
	r.POST("/topup/reset", rl("topup"), topupHandler.Reset)

	balanceHandler := NewBalanceHandler(deps.TenantID, deps.Ledger)
	r.GET("/balance", balanceHandler.GetBalance)

	return r
}
