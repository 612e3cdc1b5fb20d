package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	promhandler "github.com/jwalitptl/mis-api/internal/handler/prometheus"
	"github.com/jwalitptl/mis-api/internal/middleware"
)

// Handler is any component that mounts its routes on a group
type Handler interface {
	RegisterRoutes(gin.IRouter)
}

// AuthHandler mounts the token endpoints behind optional throttling
type AuthHandler interface {
	RegisterRoutes(gin.IRouter, ...gin.HandlerFunc)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	authH         AuthHandler
	consultationH Handler
	healthH       Handler
	docsH         Handler
	metrics       *promhandler.Handler
	rateLimiter   *middleware.RateLimiter
}

type RouterConfig struct {
	Mode          string
	RateLimit     middleware.RateLimiterConfig
	CORSConfig    middleware.CORSConfig
	Timeout       time.Duration
	MetricsPrefix string
	Registerer    prometheus.Registerer
	Gatherer      prometheus.Gatherer
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH AuthHandler,
	consultationH Handler,
	healthH Handler,
	docsH Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MetricsPrefix == "" {
		config.MetricsPrefix = "mis_http"
	}
	if config.RateLimit.Rate == 0 {
		config.RateLimit.Rate = rate.Inf
	}
	if len(config.CORSConfig.AllowOrigins) == 0 {
		config.CORSConfig = middleware.DefaultCORSConfig()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	middleware.RegisterValidators()

	engine := gin.New()
	engine.RedirectTrailingSlash = true

	r := &Router{
		engine:        engine,
		auth:          auth,
		authH:         authH,
		consultationH: consultationH,
		healthH:       healthH,
		docsH:         docsH,
		metrics:       promhandler.New(config.Registerer, config.Gatherer, config.MetricsPrefix),
		rateLimiter:   middleware.NewRateLimiter(config.RateLimit),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorLogger(),
		r.metrics.Middleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.Timeout}),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
	)

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api")

	// Public routes
	r.authH.RegisterRoutes(api, r.rateLimiter.RateLimit())
	r.docsH.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.consultationH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
