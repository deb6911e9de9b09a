package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/recova/internal/calljob"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	"github.com/smallbiznis/recova/internal/checkout"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	"github.com/smallbiznis/recova/internal/dialer"
	dialerdomain "github.com/smallbiznis/recova/internal/dialer/domain"
	"github.com/smallbiznis/recova/internal/observability"
	obsmiddleware "github.com/smallbiznis/recova/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recova/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recova/internal/observability/tracing"
	"github.com/smallbiznis/recova/internal/ratelimit"
	"github.com/smallbiznis/recova/internal/scheduler"
	"github.com/smallbiznis/recova/internal/settings"
	settingsdomain "github.com/smallbiznis/recova/internal/settings/domain"
	"github.com/smallbiznis/recova/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	checkout.Module,
	calljob.Module,
	settings.Module,
	webhook.Module,
	dialer.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:     obsCfg.Debug(),
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock

	checkoutRepo checkoutdomain.Repository
	callJobs     calljobdomain.Repository
	settingsSvc  settingsdomain.Service
	webhookSvc   *webhook.Service
	dialerSvc    dialerdomain.Service
	scheduler    *scheduler.Scheduler
	limiter      *ratelimit.WebhookLimiter

	httpClient *http.Client
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	CheckoutRepo checkoutdomain.Repository
	CallJobs     calljobdomain.Repository
	SettingsSvc  settingsdomain.Service
	WebhookSvc   *webhook.Service
	DialerSvc    dialerdomain.Service
	Scheduler    *scheduler.Scheduler
	Limiter      *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		genID:        p.GenID,
		clock:        p.Clock,
		checkoutRepo: p.CheckoutRepo,
		callJobs:     p.CallJobs,
		settingsSvc:  p.SettingsSvc,
		webhookSvc:   p.WebhookSvc,
		dialerSvc:    p.DialerSvc,
		scheduler:    p.Scheduler,
		limiter:      p.Limiter,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func registerRoutes(s *Server) {
	s.RegisterWebhookRoutes()
	s.RegisterJobRoutes()
	s.RegisterAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")

	hooks.POST("/checkouts/create", s.WebhookRateLimit(), s.HandleCheckoutWebhook)
	hooks.POST("/checkouts/update", s.WebhookRateLimit(), s.HandleCheckoutWebhook)
}

func (s *Server) RegisterJobRoutes() {
	jobs := s.engine.Group("/jobs")

	jobs.POST("/cron", s.CronTokenRequired(), s.HandleCron)
	jobs.POST("/run-calls", s.WorkerTokenRequired(), s.HandleRunCalls)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/:shop")

	api.GET("/checkouts", s.ListCheckouts)
	api.GET("/call-jobs", s.ListCallJobs)
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.UpdateSettings)
}
