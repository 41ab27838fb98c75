package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/auth"
	"github.com/bigfan007/ai-workmate/internal/config"
	"github.com/bigfan007/ai-workmate/internal/db"
	"github.com/bigfan007/ai-workmate/internal/email"
	"github.com/bigfan007/ai-workmate/internal/httpapi"
	"github.com/bigfan007/ai-workmate/internal/logging"
	"github.com/bigfan007/ai-workmate/internal/models"
	"github.com/bigfan007/ai-workmate/internal/store/rabbitmq"
	"github.com/bigfan007/ai-workmate/internal/store/redisstore"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		slog.Error("db connect", "err", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		slog.Error("db migrate", "err", err)
		os.Exit(1)
	}

	if err := seedAdmin(gdb); err != nil {
		slog.Error("admin seed", "err", err)
		os.Exit(1)
	}

	codes := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer codes.Close()

	mailer := email.NewSender(email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	})

	// async chat degrades gracefully when the broker is down
	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		slog.Warn("rabbit unavailable, async chat disabled", "err", err)
		rabbit = nil
	} else {
		defer rabbit.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, codes, mailer, rabbit)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

// seedAdmin creates the back-office account on first boot when
// ADMIN_EMAIL and ADMIN_PASSWORD are set. Admins get no subscription
// row, which leaves them uncapped.
func seedAdmin(gdb *gorm.DB) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPass := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPass == "" {
		return nil
	}

	var cnt int64
	if err := gdb.Model(&models.User{}).Where("email = ?", adminEmail).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}

	hash, err := auth.HashPassword(adminPass)
	if err != nil {
		return err
	}
	return gdb.Create(&models.User{
		Email:        adminEmail,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}).Error
}
