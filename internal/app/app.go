package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/clickcart/server/internal/module/checkout"
	"github.com/clickcart/server/internal/module/fxrate"
	"github.com/clickcart/server/internal/module/order"
	"github.com/clickcart/server/internal/module/paypal"
	"github.com/clickcart/server/internal/module/store"
	"github.com/clickcart/server/internal/module/webhook"
	sharedcache "github.com/clickcart/server/internal/shared/cache"
	"github.com/clickcart/server/internal/shared/config"
	"github.com/clickcart/server/internal/shared/database"
	"github.com/clickcart/server/internal/shared/httpclient"
	"github.com/clickcart/server/internal/shared/logger"
	"github.com/clickcart/server/internal/shared/metrics"
	"github.com/clickcart/server/internal/shared/middleware"
	"github.com/clickcart/server/internal/shared/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App wires the payment capture server together.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	contentStore store.ContentStore
	rates        *fxrate.Service

	paypalClient    *paypal.Client
	orderRepo       *order.Repository
	finalizer       *order.Finalizer
	checkoutService *checkout.Service

	checkoutHandler *checkout.Handler
	orderHandler    *order.Handler
	webhookHandler  *webhook.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New(""),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		app.redis = redisClient
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initModules builds the module graph bottom-up: store and rates first,
// then the provider client, then the orchestration layers on top.
func (a *App) initModules() error {
	gormStore := store.NewGormStore(a.db)
	if err := gormStore.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate content store: %w", err)
	}
	a.contentStore = gormStore

	outbound := httpclient.New(a.config.HTTPClient)
	a.rates = fxrate.NewService(a.config.Rates, outbound, a.redis, a.zapLogger)

	paypalCfg := paypal.ConfigFromApp(&a.config.PayPal)
	if err := paypalCfg.Validate(); err != nil {
		// The server can run without payment routes, e.g. serving the
		// admin surface while credentials are being rotated.
		a.zapLogger.Warn("paypal credentials missing, payment routes disabled", zap.Error(err))
	} else {
		a.paypalClient = paypal.NewClient(paypalCfg, outbound, a.metrics, a.zapLogger)
	}

	a.orderRepo = order.NewRepository(a.contentStore)
	a.finalizer = order.NewFinalizer(a.orderRepo, a.metrics, a.zapLogger)
	a.orderHandler = order.NewHandler(a.orderRepo)

	if a.paypalClient != nil {
		var sessions checkout.SessionRepository
		if a.redis != nil {
			if client, ok := a.redis.(*redis.Client); ok {
				sessions = checkout.NewRedisSessionRepository(client, a.config.Checkout.SessionTTL)
			}
		}
		if sessions == nil {
			sessions = checkout.NewMemorySessionRepository()
		}

		a.checkoutService = checkout.NewService(
			sessions,
			a.paypalClient,
			a.finalizer,
			a.rates,
			a.config.Checkout.FundingSources,
			a.zapLogger,
		)
		a.checkoutHandler = checkout.NewHandler(a.checkoutService)

		processor := webhook.NewProcessor(a.contentStore, a.orderRepo, a.metrics, a.zapLogger)
		a.webhookHandler = webhook.NewHandler(a.paypalClient, processor, a.zapLogger)
	}

	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerRoutes binds module routes. Payment routes only exist when the
// provider credentials validated at startup.
func (a *App) registerRoutes() {
	api := a.router.Group("/api/v1")

	if a.checkoutHandler != nil {
		a.checkoutHandler.RegisterRoutes(api)
		// Legacy storefront paths, kept stable for the payment JS SDK.
		a.router.Any("/paypal-client-token", a.checkoutHandler.ClientToken)
		// The provider redirects to the configured return/cancel URLs,
		// which point at the root, not /api/v1.
		a.router.GET("/checkout/return", a.checkoutHandler.ApprovalReturn)
		a.router.GET("/checkout/cancel", a.checkoutHandler.CancelReturn)
	}
	if a.webhookHandler != nil {
		a.webhookHandler.RegisterRoutes(a.router)
	}

	a.router.POST("/api/v1/admin/login", a.adminLogin)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuth(a.config.Admin.JWTSecret))
	a.orderHandler.RegisterAdminRoutes(admin)
}

// adminLoginRequest is the admin credential payload.
type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// adminLogin issues an admin JWT after a bcrypt comparison against the
// configured password hash.
func (a *App) adminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cfg := a.config.Admin
	if cfg.PasswordHash == "" || req.Username != cfg.Username {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(req.Password)); err != nil {
		response.Unauthorized(c, "invalid credentials")
		return
	}

	token, err := middleware.SignAdminToken(cfg.JWTSecret, cfg.Username, cfg.TokenExpiry)
	if err != nil {
		response.InternalError(c, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
