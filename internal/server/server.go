// Package server exposes the back-office HTTP API over gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	"github.com/harvestbox/commerce/internal/config"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
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

	subscriptionSvc subscriptiondomain.Service
	orderSvc        orderdomain.Service
	paymentSvc      paymentdomain.Service
	catalogRepo     catalogdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	SubscriptionSvc subscriptiondomain.Service
	OrderSvc        orderdomain.Service
	PaymentSvc      paymentdomain.Service
	CatalogRepo     catalogdomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("server"),
		genID:  p.GenID,

		subscriptionSvc: p.SubscriptionSvc,
		orderSvc:        p.OrderSvc,
		paymentSvc:      p.PaymentSvc,
		catalogRepo:     p.CatalogRepo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/shipping_rates", s.ListShippingRates)

	// -------- Payment methods --------
	api.GET("/payment_methods", s.ListPaymentMethods)
	api.POST("/payment_methods", s.RegisterPaymentMethod)
	api.POST("/payment_methods/:id/deactivate", s.DeactivatePaymentMethod)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.ListSubscriptions)
	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.PUT("/subscriptions/:id/items", s.ReplaceSubscriptionItems)
	api.PUT("/subscriptions/:id/cadence", s.UpdateSubscriptionCadence)
	api.POST("/subscriptions/:id/activate", s.ActivateSubscription)
	api.POST("/subscriptions/:id/pause", s.PauseSubscription)
	api.POST("/subscriptions/:id/resume", s.ResumeSubscription)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	api.GET("/subscriptions/:id/orders", s.ListSubscriptionOrders)

	// -------- Orders --------
	api.GET("/orders/:id", s.GetOrderByID)
	api.POST("/orders/:id/fulfill", s.FulfillOrder)
	api.POST("/orders/:id/unfulfill", s.UnfulfillOrder)
	api.POST("/orders/:id/cancel", s.CancelOrder)
	api.POST("/orders/:id/refund", s.RefundOrder)
}
