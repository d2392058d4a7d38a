package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/ticketing/internal/auth/domain"
	"github.com/smallbiznis/ticketing/internal/authorization"
	checkindomain "github.com/smallbiznis/ticketing/internal/checkin/domain"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	eventdomain "github.com/smallbiznis/ticketing/internal/event/domain"
	fulfillmentdomain "github.com/smallbiznis/ticketing/internal/fulfillment/domain"
	"github.com/smallbiznis/ticketing/internal/idempotency"
	"github.com/smallbiznis/ticketing/internal/observability"
	obsmiddleware "github.com/smallbiznis/ticketing/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ticketing/internal/observability/metrics"
	obstracing "github.com/smallbiznis/ticketing/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	if !cfg.RunsAPI() {
		return
	}

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
	clock       clock.Clock
	authsvc     authdomain.Service
	authzSvc    authorization.Service
	userSvc     userdomain.Service
	eventSvc    eventdomain.Service
	orderSvc    orderdomain.Service
	webhookSvc  paymentdomain.WebhookService
	fulfillment fulfillmentdomain.Service
	checkinSvc  checkindomain.Service
	idempotency *idempotency.Gate
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Clock       clock.Clock
	Authsvc     authdomain.Service
	AuthzSvc    authorization.Service
	UserSvc     userdomain.Service
	EventSvc    eventdomain.Service
	OrderSvc    orderdomain.Service
	WebhookSvc  paymentdomain.WebhookService
	Fulfillment fulfillmentdomain.Service
	CheckinSvc  checkindomain.Service
	Idempotency *idempotency.Gate
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		clock:       p.Clock,
		authsvc:     p.Authsvc,
		authzSvc:    p.AuthzSvc,
		userSvc:     p.UserSvc,
		eventSvc:    p.EventSvc,
		orderSvc:    p.OrderSvc,
		webhookSvc:  p.WebhookSvc,
		fulfillment: p.Fulfillment,
		checkinSvc:  p.CheckinSvc,
		idempotency: p.Idempotency,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Users --------
	api.POST("/users", s.RegisterUser)
	api.POST("/auth/login", s.Login)
	api.GET("/users/me", s.AuthRequired(), s.Me)

	// -------- Events --------
	api.GET("/events", s.ListEvents)
	api.GET("/events/:ref", s.GetEvent)
	api.POST("/events", s.AuthRequired(), s.authorize(authorization.ObjectEvent, authorization.ActionEventCreate), s.CreateEvent)

	// -------- Orders --------
	api.POST("/orders", s.AuthRequired(), s.authorize(authorization.ObjectOrder, authorization.ActionOrderCreate), s.CreateOrder)
	api.GET("/orders", s.AuthRequired(), s.ListOrders)
	api.GET("/orders/:id", s.AuthRequired(), s.GetOrder)
	api.POST("/orders/:id/charge", s.AuthRequired(), s.CreateCharge)
	api.GET("/courtesy/:token", s.GetCourtesy)

	// -------- Tickets --------
	api.PATCH("/tickets/:ref/assign", s.AuthRequired(), s.authorize(authorization.ObjectTicket, authorization.ActionTicketAssign), s.AssignTicket)
	api.POST("/tickets/:ref/redeem", s.AuthRequired(), s.authorize(authorization.ObjectTicket, authorization.ActionTicketRedeem), s.RedeemTicket)
	api.POST("/checkin/:token", s.CheckIn)

	// -------- Payment Webhooks --------
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
