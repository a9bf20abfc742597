package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/guildserver/api/rest"
	"github.com/kasuganosora/guildserver/api/sse"
	"github.com/kasuganosora/guildserver/api/ws"
	"github.com/kasuganosora/guildserver/audit"
	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	dbadapter "github.com/kasuganosora/guildserver/db"
	"github.com/kasuganosora/guildserver/economy"
	"github.com/kasuganosora/guildserver/game/chat"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"github.com/kasuganosora/guildserver/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Guild core ----
	bus := hook.NewBus(logger)
	svc, err := guild.NewService(guild.NewGormStore(db), economy.NewGormWallet(db), bus,
		cfg.Guild, cfg.Upgrades, logger, guild.WithCacheGC(cfg.Cache.GCInterval))
	if err != nil {
		log.Fatalf("guild: %v", err)
	}
	defer svc.Close()
	if err := svc.Perks().RegisterConfigured(cfg.Perks); err != nil {
		log.Fatalf("perks: %v", err)
	}

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	auditSvc.Attach(bus)
	defer auditSvc.Stop(context.Background())

	// ---- PubSub / cross-node relay ----
	pubsub, err := cache.NewPubSub(cache.Config{
		RedisAddr:      cfg.Cache.RedisAddr,
		RedisPassword:  cfg.Cache.RedisPassword,
		RedisDB:        cfg.Cache.RedisDB,
		LocalPubSubBuf: cfg.Cache.LocalPubSubBuf,
	})
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}

	tracker := presence.NewTracker(svc, presence.NewPubSubTagSink(pubsub), logger)
	tracker.Attach(bus)
	defer tracker.Detach()

	chatSvc := chat.NewService(svc, pubsub, cfg.Guild, logger)
	if err := chatSvc.Start(ctx); err != nil {
		log.Fatalf("chat: %v", err)
	}
	defer chatSvc.Stop()
	chatSvc.Attach(bus)
	defer chatSvc.Detach()

	relay := guild.NewRelay(pubsub, svc.Cache(), bus, logger)
	relay.OnRemoteEvent(tracker.HandleEvent)
	relay.OnRemoteEvent(chatSvc.HandleEvent)
	if err := relay.Start(ctx); err != nil {
		log.Fatalf("relay: %v", err)
	}
	defer relay.Stop()
	logger.Info("PubSub initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""), zap.String("node", relay.NodeID()))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	if cfg.Upgrades.BankInterest.Enabled && cfg.Upgrades.BankInterest.Interval > 0 {
		sched.AddTicker("bank_interest", cfg.Upgrades.BankInterest.Interval, func() {
			if _, err := svc.ApplyInterest(ctx); err != nil {
				logger.Error("bank interest sweep failed", zap.Error(err))
			}
		})
	}
	if iv := svc.ScoreboardInterval(); iv > 0 {
		sched.AddTicker("scoreboard_refresh", iv, func() {
			tracker.RefreshAll(ctx)
		})
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	limiter := mw.NewLimiter(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	go limiter.Run(ctx)
	r.Use(mw.RateLimit(limiter))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	guildH := apirest.NewGuildHandler(svc, tracker, logger).WithChat(chatSvc)
	presenceH := apirest.NewPresenceHandler(tracker, logger)
	adminH := apirest.NewAdminHandler(svc, tracker, sched, auditSvc, cfg.Security, logger)

	api := r.Group("/api")
	authed := api.Group("", mw.Auth(cfg.Security), mw.RateLimit(limiter))
	guildH.Register(api, authed)
	presenceH.Register(authed)
	apirest.NewRankingHandler(db, logger).Register(api)
	adminH.Register(api.Group("/admin", mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey)))

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, svc, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- WebSocket ----
	wsRouter := ws.NewRouter(logger)
	ws.NewGuildHandlers(svc, tracker, logger).WithChat(chatSvc).Register(wsRouter)
	wsH := ws.NewHandler(cfg.Security, tracker, svc, pubsub, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}
