package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/blob"
	"roomchat-service/internal/config"
	"roomchat-service/internal/db"
	"roomchat-service/internal/handlers"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/rabbitmq"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/ws"
)

const serviceName = "roomchat-service"

func main() {
	cfg := config.Load()

	shutdownTracing, err := observability.SetupTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	blobs, err := blob.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to connect to blob store: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("event publisher disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	userRepo := repositories.NewUserRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, userRepo)
	hub := ws.NewHub()

	roomHandler := handlers.NewRoomHandler(roomRepo, cfg.BaseURL, audit)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, userRepo, blobs, hub, audit)
	fileHandler := handlers.NewFileHandler(roomRepo, messageRepo, blobs)
	wsServer := ws.NewServer(hub, verifier, roomRepo, messageRepo, userRepo)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)
	profileGate := middleware.RequireProfileCompleted()

	// Room info is public so invite links can render a preview before login.
	router.GET("/rooms/:id/info", roomHandler.RoomInfo)

	router.POST("/rooms", authMiddleware, profileGate, roomHandler.CreateRoom)
	router.GET("/rooms", authMiddleware, profileGate, roomHandler.ListRooms)
	router.POST("/rooms/join", authMiddleware, profileGate, roomHandler.JoinRoom)
	router.POST("/rooms/leave", authMiddleware, profileGate, roomHandler.LeaveRoom)
	router.GET("/rooms/:id/messages", authMiddleware, profileGate, messageHandler.GetHistory)
	router.GET("/rooms/:id/participants", authMiddleware, profileGate, roomHandler.Participants)

	router.POST("/messages/:roomId", authMiddleware, profileGate, messageHandler.SendMessage)
	router.PUT("/messages/:id", authMiddleware, profileGate, messageHandler.EditMessage)
	router.DELETE("/messages/:id", authMiddleware, profileGate, messageHandler.DeleteMessage)

	router.GET("/files/:id", authMiddleware, profileGate, fileHandler.Download)

	router.GET("/ws", wsServer.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	log.Printf("listening on :%s environment=%s", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
