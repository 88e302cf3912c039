package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teddyfriends/loyalty/internal/bot"
	"github.com/teddyfriends/loyalty/internal/cache"
	"github.com/teddyfriends/loyalty/internal/clock"
	"github.com/teddyfriends/loyalty/internal/config"
	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/events"
	"github.com/teddyfriends/loyalty/internal/scheduler"
	"github.com/teddyfriends/loyalty/internal/services"
	"github.com/teddyfriends/loyalty/internal/signature"
	"github.com/teddyfriends/loyalty/internal/tracing"
	"github.com/teddyfriends/loyalty/internal/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("LOYALTY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := db.Init(db.Options{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("db init: %v", err)
	}
	if _, err := tracing.Init(cfg.TracingConfig()); err != nil {
		log.Fatalf("tracing init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	svc := services.New(db.Conn(), signature.New(cfg.Security.HMACSecret), cfg.Services(),
		services.WithPublisher(bus))

	sessions := openSessions(ctx, cfg)
	defer sessions.Close()

	sender := bot.NewSender(bot.ClientConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		BaseURL:    cfg.Twilio.BaseURL,
	})
	notifier := bot.NewNotifier(svc, db.Conn(), sender, cfg.PublicBaseURL)
	notifier.Subscribe(bus)
	dispatcher := bot.NewDispatcher(svc, notifier, sessions, cfg.SessionTTL())

	if cfg.Reminders.Enabled {
		offsets, _ := cfg.ReminderOffsets() // checked by Validate
		bot.NewReminders(svc, notifier, clock.System{}, offsets).Start(ctx)
	}
	sweeper := scheduler.NewSweeper(svc, cfg.SweepInterval())
	sweeper.Start(ctx)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.Router(web.Deps{
			Service:        svc,
			DB:             db.Conn(),
			Inbox:          dispatcher,
			Broadcaster:    notifier,
			StaffKey:       cfg.Security.StaffKey,
			WebhookSecret:  cfg.WhatsApp.WebhookSecret,
			AllowedOrigins: cfg.Security.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Security.StaffKey == "" {
		log.Printf("warning: security.staff_key is empty, /api is unguarded")
	}

	go func() {
		log.Printf("Teddy & Friends loyalty listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	sweeper.Stop()
	bus.Wait()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}

// openSessions uses Redis when configured and falls back to process memory.
func openSessions(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.Redis.Addr == "" {
		return cache.NewInMemoryCache(time.Now)
	}
	rc, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "loyalty:")
	if err != nil {
		log.Printf("redis unavailable (%v), keeping whatsapp sessions in memory", err)
		return cache.NewInMemoryCache(time.Now)
	}
	return rc
}
