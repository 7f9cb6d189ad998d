package config

import (
	"os"
	"strings"
)

// Config holds application configuration
type Config struct {
	// MariaDB connection settings
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server settings
	ServerPort string
	Env        string

	// CORS settings
	AllowedOrigins []string

	// Resend transactional email settings. An empty API key disables
	// outbound email; the affected features degrade with a log line.
	ResendAPIKey     string
	ResendFrom       string
	ReservationEmail string

	// Shared secret for the admin reply endpoint
	AdminToken string

	// RabbitMQ event publishing. Empty URL disables it.
	AMQPURL      string
	AMQPExchange string
}

// Load loads configuration from environment variables
func Load() Config {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "3306"
	}

	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	resendFrom := os.Getenv("RESEND_FROM_EMAIL")
	if resendFrom == "" {
		resendFrom = "Estospaces <noreply@estospaces.com>"
	}

	reservationEmail := os.Getenv("RESERVATION_EMAIL")
	if reservationEmail == "" {
		reservationEmail = "contact@estospaces.com"
	}

	amqpExchange := os.Getenv("AMQP_EXCHANGE")
	if amqpExchange == "" {
		amqpExchange = "estospaces.events"
	}

	cfg := Config{
		DBHost:           dbHost,
		DBPort:           dbPort,
		DBUser:           dbUser,
		DBPassword:       dbPassword,
		DBName:           dbName,
		ServerPort:       serverPort,
		Env:              env,
		AllowedOrigins:   strings.Split(allowedOrigins, ","),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		ResendFrom:       resendFrom,
		ReservationEmail: reservationEmail,
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPExchange:     amqpExchange,
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}
