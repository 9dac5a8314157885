package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/subtrack/internal/config"
	customcmddomain "github.com/smallbiznis/subtrack/internal/customcmd/domain"
	"github.com/smallbiznis/subtrack/internal/importer"
	"github.com/smallbiznis/subtrack/internal/observability"
	obsmiddleware "github.com/smallbiznis/subtrack/internal/observability/logger"
	obstracing "github.com/smallbiznis/subtrack/internal/observability/tracing"
	"github.com/smallbiznis/subtrack/internal/providers/pdf"
	"github.com/smallbiznis/subtrack/internal/scheduler"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Base:            log,
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

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	subscribers subdomain.Service
	importer    *importer.Service
	commands    customcmddomain.Service
	statements  pdf.Provider

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Subscribers subdomain.Service
	Importer    *importer.Service
	Commands    customcmddomain.Service
	Statements  pdf.Provider

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		subscribers: p.Subscribers,
		importer:    p.Importer,
		commands:    p.Commands,
		statements:  p.Statements,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.OperatorRequired())

	// -------- Subscribers --------
	api.POST("/subscribers", s.RegisterSubscriber)
	api.GET("/subscribers", s.FindSubscribers)
	api.GET("/subscribers/:customer_no", s.GetSubscriber)
	api.PATCH("/subscribers/:customer_no", s.EditSubscriber)
	api.PUT("/subscribers/:customer_no/status", s.SetSubscriberStatus)
	api.POST("/subscribers/:customer_no/renew", s.RenewSubscriber)
	api.GET("/subscribers/:customer_no/payments", s.ListSubscriberPayments)
	api.GET("/subscribers/:customer_no/statement.pdf", s.RenderStatement)

	// -------- Expiry --------
	api.GET("/due", s.ListDue)
	api.POST("/sweep", s.TriggerSweep)

	// -------- Bulk transfer --------
	api.POST("/imports", s.ImportSubscribers)
	api.GET("/exports", s.ExportSubscribers)

	// -------- Custom commands --------
	api.GET("/commands", s.ListCommands)
	api.GET("/commands/:cmd", s.GetCommand)
	api.PUT("/commands/:cmd", s.SetCommand)
	api.DELETE("/commands/:cmd", s.DeleteCommand)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
