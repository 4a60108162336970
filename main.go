package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.messenger", serviceName, cfg.Environment)

	shutdownTracing, err := observability.SetupTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	userRepo := repositories.NewUserRepo(database)
	convoRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := ws.NewHub()

	userHandler := handlers.NewUserHandler(userRepo, auditEmitter)
	convoHandler := handlers.NewConversationHandler(convoRepo, messageRepo, userRepo, auditEmitter)
	messageHandler := handlers.NewMessageHandler(convoRepo, messageRepo, userRepo, hub, auditEmitter)
	presenceHandler := handlers.NewPresenceHandler(presenceRepo, userRepo, hub)
	webhookHandler := handlers.NewWebhookHandler(userRepo, cfg.WebhookSecret, auditEmitter)

	conversationWS := ws.NewConversationWebSocketHandler(hub, convoRepo, userRepo, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(cors.New(cfg.CORS()))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/identity", webhookHandler.HandleIdentityEvent)

	authMiddleware := middleware.AuthMiddleware(verifier, userRepo)
	api := router.Group("/", authMiddleware)

	api.POST("/users/sync", userHandler.SyncUser)
	api.PUT("/users/presence", userHandler.SetPresence)
	api.GET("/users/me", userHandler.Me)
	api.GET("/users", userHandler.ListUsers)
	api.GET("/users/:user_id", userHandler.GetUser)

	api.POST("/conversations/direct", convoHandler.StartDirect)
	api.POST("/conversations/group", convoHandler.CreateGroup)
	api.GET("/conversations", convoHandler.ListConversations)
	api.GET("/conversations/:conversation_id", convoHandler.GetConversation)

	api.POST("/conversations/:conversation_id/messages", messageHandler.PostMessage)
	api.GET("/conversations/:conversation_id/messages", messageHandler.ListMessages)
	api.DELETE("/messages/:message_id", messageHandler.DeleteMessage)
	api.POST("/messages/:message_id/reactions", messageHandler.ToggleReaction)

	typingLimiter := middleware.RateLimit(cfg.TypingRPS, cfg.TypingBurst)
	api.POST("/conversations/:conversation_id/typing", typingLimiter, presenceHandler.SetTyping)
	api.GET("/conversations/:conversation_id/typing", presenceHandler.GetTypingUsers)
	api.POST("/conversations/:conversation_id/read", presenceHandler.MarkAsRead)

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugEndpoints)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
