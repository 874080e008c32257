package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presencia_backend/internal/config"
	"presencia_backend/internal/controller"
	"presencia_backend/internal/repository"
	"presencia_backend/internal/service"
	"presencia_backend/pkg/database"
	"presencia_backend/pkg/logger"
	"presencia_backend/pkg/monitoring"
	"presencia_backend/pkg/security"
	"presencia_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services       *services
	tracerShutdown func(context.Context) error
}

type repositories struct {
	user      *repository.UserRepository
	session   *repository.SessionRepository
	ledger    *repository.LedgerRepository
	challenge *repository.ChallengeRepository
	audit     *repository.AuditRepository
}

type services struct {
	ruleTable    *service.RuleTable
	scheduler    *service.ChallengeScheduler
	presence     *service.PresenceService
	challenge    *service.ChallengeService
	auth         *service.AuthService
	tokens       *service.TokenStore
	query        *service.StateQueryService
	productivity *service.ProductivityService
	supervisor   *service.Supervisor
}

type controllers struct {
	auth      *controller.AuthController
	state     *controller.StateController
	challenge *controller.ChallengeController
	report    *controller.ReportController
	admin     *controller.AdminController
	health    *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		session:   repository.NewSessionRepository(db),
		ledger:    repository.NewLedgerRepository(db),
		challenge: repository.NewChallengeRepository(db),
		audit:     repository.NewAuditRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	locks := service.NewSessionLockSet()
	s.ruleTable = service.NewRuleTable(cfg.Presence.Rules)
	s.scheduler = service.NewChallengeScheduler(cfg.Presence.ChallengeTimeLimitSec, time.Now().UnixNano())
	s.tokens = service.NewTokenStore(rdb, cfg.JWT.ExpireTime)

	s.presence = service.NewPresenceService(db, repos.user, repos.session, repos.ledger, repos.challenge, repos.audit, s.scheduler, locks)
	s.auth = service.NewAuthService(repos.user, repos.audit, s.presence, s.tokens, cfg.JWT)
	s.challenge = service.NewChallengeService(db, repos.user, repos.session, repos.challenge, s.scheduler, s.presence, s.auth, locks)
	s.query = service.NewStateQueryService(repos.user, repos.session, repos.ledger, s.ruleTable)
	s.productivity = service.NewProductivityService(repos.user, repos.session, repos.challenge)

	s.supervisor = service.NewSupervisor(
		repos.session,
		repos.ledger,
		s.presence,
		s.ruleTable,
		rdb,
		cfg.Presence.SupervisorTick(),
		cfg.Presence.StaleSweepInterval(),
		cfg.Presence.StaleThreshold(),
	)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		state:     controller.NewStateController(s.presence, s.query),
		challenge: controller.NewChallengeController(s.challenge),
		report:    controller.NewReportController(s.productivity),
		admin:     controller.NewAdminController(s.auth, s.presence, s.productivity, repos.audit),
		health:    controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// ReloadConfig swaps the hot-reloadable parts of the config into the running
// process. Only the rule table is live today; everything else needs a restart.
func (a *App) ReloadConfig(cfg *config.Config) {
	a.services.ruleTable.Replace(cfg.Presence.Rules)
	logger.Log.Info("presence rules reloaded", zap.Int("rules", len(cfg.Presence.Rules)))
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("presencia-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerShutdown = tp.Shutdown
	}

	app.registerRoutes(router, controllers, repos)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	a.services.supervisor.Start()

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	a.services.supervisor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
