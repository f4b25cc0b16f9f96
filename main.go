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
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"roomchat/internal/auth"
	"roomchat/internal/bus"
	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	"roomchat/internal/handlers"
	"roomchat/internal/middleware"
	"roomchat/internal/observability"
	"roomchat/internal/rabbitmq"
	"roomchat/internal/repositories"
	"roomchat/internal/storage"
	"roomchat/internal/telemetry"
	"roomchat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if cfg.EphemeralJWTSecret {
		logger.Warn().Msg("JWT_SECRET not set, using a random per-process secret; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.Env, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Str("reason", rabbitmq.PublisherNoopReason(publisher)).Msg("analytics publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, observability.ServiceName, cfg.Env, logger)

	fanout, err := bus.New(ctx, bus.Options{
		Backend:      cfg.BusBackend,
		RedisURL:     cfg.RedisURL,
		RedisPrefix:  cfg.BusRedisPrefix,
		AMQPURL:      cfg.BusAMQPURL,
		AMQPExchange: cfg.BusAMQPExchange,
	}, logger)
	if err != nil {
		return err
	}
	defer fanout.Close()

	hub := ws.NewHub(fanout, logger)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	readRepo := repositories.NewReadStatusRepo(database)
	userRepo := repositories.NewUserRepo(database)

	files, err := storage.NewDiskStore(cfg.MediaRoot, cfg.MediaURL, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	chatService := chat.NewService(roomRepo, messageRepo, readRepo, userRepo, files, hub, logger)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	authn := auth.NewAuthenticator(verifier, userRepo)

	health := observability.NewHealth(map[string]observability.Check{
		"database": database.PingContext,
		"bus":      fanout.Ping,
	}, logger)
	go health.Run(ctx, 15*time.Second)
	go func() {
		if err := health.Serve(ctx, ":"+cfg.GRPCHealthPort); err != nil {
			logger.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		observability.HTTPMetricsMiddleware(),
		otelgin.Middleware(observability.ServiceName),
	)

	roomHandler := handlers.NewRoomHandler(chatService, audit)
	messageHandler := handlers.NewMessageHandler(chatService, files, cfg.MaxUploadBytes, audit)
	roomWS := ws.NewRoomWebSocketHandler(hub, chatService, authn, logger)
	userWS := ws.NewUserWebSocketHandler(hub, authn, logger)

	api := router.Group("/chat", middleware.AuthMiddleware(authn))
	api.GET("/rooms", roomHandler.ListRooms)
	api.POST("/rooms", roomHandler.CreateRoom)
	api.GET("/rooms/:room_id", roomHandler.RoomDetail)
	api.POST("/rooms/:room_id/send", messageHandler.SendMessage)
	api.POST("/rooms/:room_id/upload", messageHandler.Upload)
	api.PATCH("/messages/:message_id/edit", messageHandler.EditMessage)
	api.DELETE("/messages/:message_id/delete", messageHandler.DeleteMessage)
	api.POST("/private", roomHandler.StartPrivateRoom)
	api.GET("/users", roomHandler.ListUsers)

	router.GET("/ws/chat/:room_id", roomWS.Handle)
	router.GET("/ws/user", userWS.Handle)

	router.Static("/media", files.Root())
	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/healthz", health.Handler())
	handlers.RegisterDebugRoutes(router, audit, verifier, cfg.DebugRoutes && !cfg.IsProduction())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("bus", cfg.BusBackend).Str("db", cfg.DBDriver).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
