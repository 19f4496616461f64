package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/utils"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"vulcan_backend/internals/configs"
	database "vulcan_backend/internals/databases"
	appCtl "vulcan_backend/internals/features/applications/applications/controller"
	appSvc "vulcan_backend/internals/features/applications/applications/service"
	assignCtl "vulcan_backend/internals/features/applications/assignments/controller"
	assignSvc "vulcan_backend/internals/features/applications/assignments/service"
	auditCtl "vulcan_backend/internals/features/applications/audits/controller"
	"vulcan_backend/internals/features/applications/repository"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifCtl "vulcan_backend/internals/features/notifications/notifications/controller"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	rlSvc "vulcan_backend/internals/features/policies/rate_limits/service"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
	helperOSS "vulcan_backend/internals/helpers/oss"
	"vulcan_backend/internals/jobs"
	"vulcan_backend/internals/middlewares"
	authMiddleware "vulcan_backend/internals/middlewares/auth"
	routes "vulcan_backend/internals/route"
	"vulcan_backend/internals/seeds"
)

func main() {
	seed := flag.Bool("seed", configs.GetEnvBool("SEED", false), "load default policies and email templates")
	flag.Parse()

	configs.LoadEnv()
	cfg := configs.Load()
	logger.Setup(os.Stdout)
	log := logger.For("main")

	// 🔌 DB connect + pool + schema
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	database.TunePool(db)
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if *seed {
		if err := seeds.RunAllSeeds(db, configs.GetEnv("SEED_DATA_DIR", "internals/seeds")); err != nil {
			log.Fatal().Err(err).Msg("seeding failed")
		}
	}

	store := repository.NewGormStore(db)
	policies := policySvc.NewGormPolicyStore(db, time.Minute)

	blobs, reaper := buildBlobStore(cfg)
	signer := helperOSS.NewRefSigner(cfg.BlobSigningKey, dbtime.NowUTC)
	counters := buildCounterStore(cfg)
	limiter := rlSvc.NewLimiter(policies, counters)

	// ⏱ background jobs (mail delivery, admin fan-out)
	pool := jobs.NewWorkerPool(jobs.PoolConfig{
		Workers:     cfg.WorkerCount,
		QueueSize:   cfg.WorkerQueueSize,
		MaxAttempts: cfg.JobMaxAttempts,
		PerSecond:   cfg.MailPerSecond,
	})
	poolCtx, stopPool := context.WithCancel(context.Background())
	pool.Start(poolCtx)

	notifier := notifSvc.NewNotificationService(store, pool, policies, buildMailers(cfg, store))
	if cfg.NotificationLimit > 0 {
		notifier.BatchMax = cfg.NotificationLimit
	}
	recorder := eventSvc.NewRecorder(store)
	apps := appSvc.NewApplicationService(store, recorder, notifier)
	proofs := appSvc.NewProofAttachmentService(store, blobs, signer, policies, apps, pool)
	assignments := assignSvc.NewAssignmentService(store, recorder, notifier, policies)

	applicationController := appCtl.NewApplicationController(store, apps, proofs, limiter)
	applicationController.SignedRefTTL = cfg.SignedRefTTL
	applicationController.InboundKey = cfg.InboundEmailKey

	crons := startCrons(cfg, notifier, proofs)
	if reaper != nil {
		crons = append(crons, reaper)
	}

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
		BodyLimit:               16 * 1024 * 1024,
	})

	// ⚙️ compression + 304 caching
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// 🔎 Request-ID + per-request timeout
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = utils.UUID()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals("requestid", id)
		ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	middlewares.SetupMiddlewares(app, cfg.CORSAllowOrigins, configs.GetEnvInt("GLOBAL_RATE_LIMIT", 120))

	routes.SetupRoutes(app, routes.Deps{
		Auth: authMiddleware.Options{
			Secret: cfg.JWTSecret,
			Users:  store,
			Clock:  dbtime.NowUTC,
		},
		Ping:          func(ctx context.Context) error { return database.Ping(ctx, db) },
		Environment:   cfg.AppEnv,
		Applications:  applicationController,
		Assignments:   assignCtl.NewAssignmentController(store, assignments),
		Audits:        auditCtl.NewAuditController(store),
		Notifications: notifCtl.NewNotificationController(store, notifier),
	})

	// 🔒 Keep-Alive & connection timeouts
	app.Server().ReadTimeout = 30 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("listening")
		if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, c := range crons {
		<-c.Stop().Done()
	}
	_ = app.ShutdownWithContext(ctx)
	pool.Stop(ctx)
	stopPool()
	database.Close(db)
}

func buildBlobStore(cfg configs.AppConfig) (helperOSS.BlobStore, *cron.Cron) {
	log := logger.For("main")
	ossCfg := helperOSS.OSSConfig{
		Endpoint:      cfg.OSSEndpoint,
		AccessKey:     cfg.OSSAccessKey,
		SecretKey:     cfg.OSSSecretKey,
		SecurityToken: cfg.OSSSecurityToken,
		Bucket:        cfg.OSSBucket,
		Prefix:        cfg.OSSPrefix,
	}
	if !ossCfg.Complete() {
		log.Warn().Msg("OSS not configured, proofs are kept in memory")
		return helperOSS.NewMemoryBlobStore(dbtime.NowUTC), nil
	}
	store, err := helperOSS.NewOSSBlobStore(ossCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("oss init failed")
	}
	reaper, err := helperOSS.StartTrashReaperCron(store, helperOSS.TrashReaperConfig{
		RetentionDays: cfg.TrashRetention,
		CronSchedule:  cfg.TrashCron,
	})
	if err != nil {
		log.Error().Err(err).Msg("trash reaper not started")
	}
	return store, reaper
}

func buildCounterStore(cfg configs.AppConfig) rlSvc.CounterStore {
	log := logger.For("main")
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, rate limit counters are per process")
		return rlSvc.NewMemoryCounterStore(dbtime.NowUTC)
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	return rlSvc.NewRedisCounterStore(redis.NewClient(opt))
}

func buildMailers(cfg configs.AppConfig, store repository.Store) map[string]notifSvc.Mailer {
	renderer := &notifSvc.TemplateRenderer{Store: store}
	var m notifSvc.Mailer
	if cfg.SMTPHost != "" {
		m = notifSvc.NewSMTPMailer(notifSvc.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		}, renderer)
	} else {
		logger.For("main").Warn().Msg("SMTP_HOST not set, mail is logged instead of sent")
		m = notifSvc.NewLogMailer(renderer)
	}
	return map[string]notifSvc.Mailer{
		notifSvc.MailerApplication: m,
		notifSvc.MailerAdmin:       m,
		notifSvc.MailerAssignment:  m,
	}
}

func startCrons(cfg configs.AppConfig, notifier *notifSvc.NotificationService, proofs *appSvc.ProofAttachmentService) []*cron.Cron {
	log := logger.For("main")
	var out []*cron.Cron
	if c, err := notifier.StartRetryCron(cfg.RetryCron); err != nil {
		log.Error().Err(err).Msg("notification retry cron not started")
	} else {
		out = append(out, c)
	}
	if c, err := proofs.StartReviewReminderCron(cfg.ReminderCron); err != nil {
		log.Error().Err(err).Msg("review reminder cron not started")
	} else {
		out = append(out, c)
	}
	return out
}
