package main

import (
	"MediSlot/cache"
	"MediSlot/config"
	"MediSlot/database"
	"MediSlot/logger"
	"MediSlot/metrics"
	"MediSlot/repositories"
	"MediSlot/scheduler"
	"MediSlot/services"
	"MediSlot/utils"
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.AppConfig
	db        *gorm.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	directory *repositories.DirectoryRepository
	slots     *repositories.SlotRepository
	users     repositories.UserRepository
	tokens    *utils.TokenMaker
	booking   *services.BookingService
	lifecycle *services.LifecycleService
	auth      *services.AuthService
	daemon    *scheduler.Daemon
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	logger.Init("medislot", cfg.Env)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfigFrom(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Redis client")
	}
	store, err := cache.NewCache(redisClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize cache")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tokens, err := utils.NewTokenMaker(cfg.SymmetricKey, cfg.TokenExpiry)
	if err != nil {
		return nil, err
	}

	clock := services.NewSystemClock(loc)
	directory := repositories.NewDirectoryRepository(db, store)
	slots := repositories.NewSlotRepository(db, cfg.DBLockTimeout, cfg.DBStatementTimeout)
	users := repositories.NewUserRepository(db, store)
	mailer := utils.NewMailer(cfg, directory)

	generator, err := services.NewSlotGenerator(slots, cfg.SlotTimes, cfg.SlotDuration, m)
	if err != nil {
		return nil, err
	}

	booking := services.NewBookingService(services.BookingDeps{
		Store:          slots,
		Generator:      generator,
		Directory:      directory,
		Notifier:       mailer,
		Cache:          store,
		CacheTTL:       cfg.AvailableSlotsTTL,
		MaxAdvanceDays: cfg.BookingWindowDays,
		Clock:          clock,
		Metrics:        m,
	})
	lifecycle := services.NewLifecycleService(slots, mailer, store, clock, m)
	auth := services.NewAuthService(users, directory, tokens, utils.NewResetCodeStore(store, cfg.OTPTTL), mailer)

	hour, minute, err := cfg.ReminderClock()
	if err != nil {
		return nil, err
	}
	daemon := scheduler.NewDaemon(scheduler.Config{
		HorizonDays:        cfg.HorizonDays,
		GenerationInterval: cfg.GenerationInterval,
		ReminderHour:       hour,
		ReminderMinute:     minute,
		LockTTL:            cfg.SchedulerLockExpiry,
	}, scheduler.Deps{
		Generator: generator,
		Store:     slots,
		Directory: directory,
		Notifier:  mailer,
		Clock:     clock,
		Locker:    database.NewRedisLocker(redisClient),
		Metrics:   m,
	})

	return &app{
		cfg:       cfg,
		db:        db,
		redis:     redisClient,
		registry:  registry,
		directory: directory,
		slots:     slots,
		users:     users,
		tokens:    tokens,
		booking:   booking,
		lifecycle: lifecycle,
		auth:      auth,
		daemon:    daemon,
	}, nil
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		logWarn(err, "failed to close Redis client")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logWarn(err, "failed to close database")
		}
	}
}
