package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/domainpay/internal/config"
	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	"github.com/smallbiznis/domainpay/internal/observability"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	obstracing "github.com/smallbiznis/domainpay/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"github.com/smallbiznis/domainpay/internal/ratelimit"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(debug bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg.Debug())
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Engine   *gin.Engine
	Config   config.Config
	Log      *zap.Logger
	Payments paymentdomain.Service
	Orders   orderdomain.Service
	Wallet   walletdomain.Service
	Domains  domainsdomain.Service
	Sagas    sagadomain.Service
	Launcher paymentdomain.SagaLauncher
	Limiter  *ratelimit.WebhookLimiter `optional:"true"`
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	payments paymentdomain.Service
	orders   orderdomain.Service
	wallet   walletdomain.Service
	domains  domainsdomain.Service
	sagas    sagadomain.Service
	launcher paymentdomain.SagaLauncher
	limiter  *ratelimit.WebhookLimiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Engine,
		cfg:      p.Config,
		log:      p.Log.Named("http.server"),
		payments: p.Payments,
		orders:   p.Orders,
		wallet:   p.Wallet,
		domains:  p.Domains,
		sagas:    p.Sagas,
		launcher: p.Launcher,
		limiter:  p.Limiter,
	}

	svc.RegisterWebhookRoutes()
	svc.RegisterAdminRoutes()

	return svc
}

// RegisterWebhookRoutes mounts the gateway callbacks. GET is accepted for
// gateways that deliver callbacks as query strings.
func (s *Server) RegisterWebhookRoutes() {
	webhooks := s.engine.Group("/webhook", s.WebhookRateLimit())
	webhooks.POST("/:gateway/:orderID", s.HandleWebhook)
	webhooks.GET("/:gateway/:orderID", s.HandleWebhook)
}

// RegisterAdminRoutes mounts the operator API. Without a configured token
// the routes are not mounted at all.
func (s *Server) RegisterAdminRoutes() {
	if s.cfg.AdminToken == "" {
		s.log.Warn("admin api disabled, ADMIN_API_TOKEN is empty")
		return
	}

	admin := s.engine.Group("/admin", s.AdminAuth())
	admin.GET("/orders/:id", s.GetOrder)
	admin.GET("/orders/:id/events", s.ListOrderEvents)
	admin.GET("/orders/:id/saga", s.GetSaga)
	admin.POST("/orders/:id/cancel", s.CancelOrder)

	admin.GET("/wallets/:ownerID", s.GetWallet)
	admin.GET("/wallets/:ownerID/entries", s.ListWalletEntries)

	admin.GET("/domains/:name", s.GetDomain)
	admin.GET("/owners/:ownerID/domains", s.ListOwnerDomains)

	admin.GET("/sagas/manual-review", s.ListManualReview)
	admin.POST("/sagas/:id/retry", s.RetrySaga)
}
