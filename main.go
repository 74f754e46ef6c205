package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"marketplace-chat/internal/auth"
	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/config"
	"marketplace-chat/internal/db"
	"marketplace-chat/internal/handlers"
	"marketplace-chat/internal/logger"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/presence"
	"marketplace-chat/internal/rabbitmq"
	"marketplace-chat/internal/repositories"
	"marketplace-chat/internal/telemetry"
	"marketplace-chat/internal/ws"
)

func main() {
	cfg, warnings := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	for _, w := range warnings {
		log.Warn("config", zap.String("detail", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))

	tracker, err := presence.NewTracker(cfg.RedisURL, 2*cfg.HeartbeatInterval, log)
	if err != nil {
		log.Warn("presence mirror disabled", zap.Error(err))
		tracker = presence.Noop{}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	rooms := ws.NewRoomIndex(conversationRepo, cfg.RoomAttachTimeout, log)
	registry := ws.NewRegistry(rooms, tracker, log)
	broadcaster := ws.NewBroadcaster(registry, rooms, log)
	monitor := ws.NewMonitor(registry, broadcaster, cfg.HeartbeatInterval, tracker, log)

	authenticator := auth.NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg.JWTCookieName)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Environment, log)
	svc := chat.NewService(conversationRepo, messageRepo, userRepo, broadcaster, registry, audit, log)

	gateway := ws.NewGateway(authenticator, registry, rooms, broadcaster,
		observability.NewEventPublisher(publisher, log),
		ws.ConnOptions{SendBuffer: cfg.SendBuffer, WriteWait: cfg.WriteWait}, log)
	conversationHandler := handlers.NewConversationHandler(svc, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": registry.ConnectionCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gateway.Handle)

	api := router.Group("/", middleware.AuthMiddleware(authenticator))
	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations", conversationHandler.StartConversation)
	api.GET("/conversations/:conversation_id/messages", conversationHandler.GetMessages)
	api.POST("/conversations/:conversation_id/messages", conversationHandler.PostMessage)
	api.GET("/users/search", conversationHandler.SearchUsers)
	api.GET("/users/online", handlers.OnlineUsers(registry))
	handlers.RegisterDebugRoutes(api, registry, cfg.Environment != "production")

	go monitor.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("chat service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gateway.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		log.Warn("publisher close", zap.Error(err))
	}
	if err := tracker.Close(); err != nil {
		log.Warn("presence close", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		log.Warn("db close", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
}
