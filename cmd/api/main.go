package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalshop/internal/config"
	"rentalshop/internal/handler"
	"rentalshop/internal/infra/db"
	"rentalshop/internal/infra/lock"
	"rentalshop/internal/infra/notify"
	infraRepo "rentalshop/internal/infra/repository"
	"rentalshop/internal/logger"
	"rentalshop/internal/metrics"
	"rentalshop/internal/repository"
	"rentalshop/internal/server"
	"rentalshop/internal/usecase"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel, cfg.IsDev())

	//DB接続
	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("db migrate")
	}

	//メトリクス
	ctx := context.Background()
	mp, err := metrics.InitMeterProvider(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("meter provider")
	}
	appMetrics, err := metrics.NewAppMetrics(mp)
	if err != nil {
		log.WithError(err).Fatal("app metrics")
	}

	//Redisがあればロックと通知をRedisで行う
	var (
		locker   repository.Locker
		notifier usecase.BookingNotifier
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.WithError(err).Fatal("redis ping")
		}
		cancel()
		locker = lock.NewRedisLocker(rdb, "rentalshop:lock:")
		notifier = notify.NewRedisNotifier(rdb, "rentalshop:bookings")
		log.WithField("addr", cfg.RedisAddr).Info("redis enabled")
	} else {
		locker = lock.NewLocalLocker()
		notifier = notify.NewLogNotifier(log)
		log.Warn("REDIS_ADDR not set: using in-process lock")
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	bookingRepo := infraRepo.NewBookingGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//Usecase生成
	productUC := usecase.NewProductUsecase(txm, productRepo, log)
	cartUC := usecase.NewCartUsecase(txm, log)
	checkoutUC := usecase.NewCheckoutUsecase(txm, locker, appMetrics, log, usecase.CheckoutOptions{
		Timeout: cfg.CheckoutTimeout,
		LockTTL: cfg.CheckoutLockTTL,
	})
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, auditRepo, log)
	bookingUC := usecase.NewBookingUsecase(txm, bookingRepo, notifier, appMetrics, log)

	//Handler生成
	srv := server.New(cfg, log, server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(checkoutUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		Booking:      handler.NewBookingHandler(bookingUC),
	})

	//Server起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server")
		}
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("meter provider shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
