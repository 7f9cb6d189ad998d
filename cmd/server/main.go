package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"estospaces/internal/chat"
	"estospaces/internal/config"
	"estospaces/internal/database"
	"estospaces/internal/events"
	"estospaces/internal/handler"
	"estospaces/internal/notify"
	"estospaces/internal/realtime"
	"estospaces/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	cfg := config.Load()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("❌ Failed to ensure schema: %v", err)
	}

	mailer := notify.New(cfg.ResendAPIKey, cfg.ResendFrom, cfg.ReservationEmail)
	if !mailer.Enabled() {
		log.Println("⚠️  RESEND_API_KEY not set, email notifications disabled")
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		publisher, err = events.NewRabbit(cfg.AMQPURL, cfg.AMQPExchange, slog.Default())
		if err != nil {
			log.Printf("⚠️  Failed to connect to RabbitMQ, event publishing disabled: %v", err)
			publisher = events.Noop{}
		}
	} else {
		log.Println("⚠️  AMQP_URL not set, event publishing disabled")
	}
	defer publisher.Close()

	hub := realtime.NewHub()
	st := store.New(db, hub, mailer, publisher)

	var backend chat.Backend = st

	h := handler.New(st, backend, cfg, mailer, publisher)
	router := h.SetupRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-Token"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	httpHandler := c.Handler(router)

	fmt.Println("========================================")
	fmt.Println("  Estospaces API Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws/chat\n", cfg.ServerPort)
	if cfg.DBName != "" {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
	log.Println("🚀 Server started successfully")
	log.Fatal(http.ListenAndServe(":"+cfg.ServerPort, httpHandler))
}
