package handler

import (
	"net/http"

	"pixwallet/internal/adapter/http/middleware"
	redisStore "pixwallet/internal/adapter/storage/redis"
	"pixwallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Rates          ports.RateService
	Exchange       ports.ExchangeService
	Deposits       ports.DepositService
	Withdrawals    ports.WithdrawalService
	Reconciler     ports.ReconcilerService
	Notifications  ports.NotificationService
	Reporting      ports.ReportingService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string // empty = callback signatures not checked
	Hub            ChannelServer
	AllowedOrigins []string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService      // nil = audit logging disabled
	HTTPMetrics    *middleware.HTTPMetrics // nil = request metrics disabled
	MetricsHandler http.Handler            // nil = no /metrics route
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Hub, deps.AllowedOrigins, deps.Logger)
	r.GET("/ws", rl("notifications"), notificationHandler.Connect)

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	exchangeHandler := NewExchangeHandler(deps.Rates, deps.Exchange)
	v1.GET("/rates", rl("read"), exchangeHandler.GetRates)

	webhookHandler := NewWebhookHandler(deps.Reconciler, deps.Logger)
	v1.POST("/webhooks/pix",
		rl("webhooks"),
		middleware.WebhookSignature(deps.SigSvc, deps.WebhookSecret, deps.Logger),
		webhookHandler.Pix,
	)

	// --- JWT-authenticated routes ---
	authed := v1.Group("", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	walletHandler := NewWalletHandler(deps.Ledger)
	authed.POST("/wallets/provision", rl("read"), walletHandler.Provision)
	authed.GET("/wallets", rl("read"), walletHandler.GetBalances)

	authed.POST("/exchange/quote", rl("read"), exchangeHandler.Quote)
	authed.POST("/exchange", rl("exchange"), exchangeHandler.Execute)

	depositHandler := NewDepositHandler(deps.Deposits)
	authed.POST("/deposits", rl("deposits"), depositHandler.Create)
	authed.POST("/deposits/verify", rl("verify"), depositHandler.Verify)

	withdrawalHandler := NewWithdrawalHandler(deps.Withdrawals)
	authed.POST("/withdrawals", rl("withdrawals"), withdrawalHandler.Create)

	transactionHandler := NewTransactionHandler(deps.Reporting)
	authed.GET("/transactions", rl("read"), transactionHandler.List)

	authed.POST("/notifications/token", rl("notifications"), notificationHandler.IssueToken)
	authed.POST("/session/end", rl("notifications"), notificationHandler.EndSession)

	return r
}
