package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bloggers/internal/api"
	"github.com/charlesng35/bloggers/internal/app"
	"github.com/charlesng35/bloggers/internal/app/maintenance"
	iauth "github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/auth/providers"
	"github.com/charlesng35/bloggers/internal/cache"
	"github.com/charlesng35/bloggers/internal/database"
	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/handlers"
	"github.com/charlesng35/bloggers/internal/middleware"
	"github.com/charlesng35/bloggers/internal/notify"
	"github.com/charlesng35/bloggers/internal/services"
	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB           *gorm.DB
	Mongo        *mongo.Client
	Directory    directory.Directory
	Redis        *cache.RedisStore
	RateStore    middleware.RateStore
	Registration *services.RegistrationService
	Cleaner      *maintenance.Cleaner
	Router       *gin.Engine

	cancelBackground context.CancelFunc
}

// bootstrapRuntime initialises storage, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var checks []handlers.HealthCheck
	if cfg.Database.UsesMongo() {
		checks, err = stack.initialiseMongo(ctx, cfg, log)
	} else {
		checks, err = stack.initialiseRelational(cfg, log)
	}
	if err != nil {
		return nil, err
	}

	backgroundCtx, cancel := context.WithCancel(context.Background())
	stack.cancelBackground = cancel

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to in-memory rate limiting", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	if stack.Redis != nil {
		stack.RateStore = middleware.NewCounterRateStore(stack.Redis)
	} else {
		memory := middleware.NewMemoryRateStore()
		go memory.Run(backgroundCtx, cfg.Server.RateLimit.Window)
		stack.RateStore = memory
	}

	gateway, err := buildGateway(cfg, log)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Registration, err = services.NewRegistrationService(stack.Directory, gateway, cfg.Auth.RegistrationOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise registration service: %w", err)
	}

	local, err := providers.NewLocalProvider(stack.Directory, providers.LocalConfig{
		HashPassword: cfg.Auth.PasswordHasher(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Directory,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithRetention(cfg.Maintenance.UnconfirmedRetention),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Registrar:     stack.Registration,
		Authenticator: local,
		JWT:           jwtSvc,
		Users:         stack.Directory,
		RateStore:     stack.RateStore,
		HealthChecks:  checks,
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseMongo(ctx context.Context, cfg *app.Config, log *zap.Logger) ([]handlers.HealthCheck, error) {
	client, db, err := database.ConnectMongo(ctx, cfg.Database.MongoConnection())
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s.Mongo = client

	dir, err := directory.NewMongoDirectory(db)
	if err != nil {
		return nil, fmt.Errorf("initialise mongo directory: %w", err)
	}
	if err := dir.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}
	s.Directory = dir

	log.Info("database connected", zap.String("driver", "mongo"), zap.String("database", db.Name()))

	return []handlers.HealthCheck{{
		Name: "database",
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}}, nil
}

func (s *runtimeStack) initialiseRelational(cfg *app.Config, log *zap.Logger) ([]handlers.HealthCheck, error) {
	dbCfg := cfg.Database.RelationalConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.DB = db

	if err := database.MigrateSchema(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	dir, err := directory.NewGormDirectory(db)
	if err != nil {
		return nil, fmt.Errorf("initialise directory: %w", err)
	}
	s.Directory = dir

	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return []handlers.HealthCheck{{
		Name: "database",
		Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}, nil
}

// buildGateway selects SMTP delivery when configured and falls back to logging codes.
func buildGateway(cfg *app.Config, log *zap.Logger) (notify.Gateway, error) {
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; confirmation codes will only be logged")
		return notify.NewLogGateway(logger.WithModule("notify")), nil
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}

	gateway, err := notify.NewMailGateway(mailer,
		notify.WithConfirmationURL(cfg.Email.ConfirmationURL),
		notify.WithSender(cfg.Email.SMTP.From),
		notify.WithGatewayLogger(logger.WithModule("notify")),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise mail gateway: %w", err)
	}
	return gateway, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			log.Warn("mongo disconnect", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
