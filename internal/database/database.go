package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/go-sql-driver/mysql"

	"estospaces/internal/config"
)

// Init opens the database connection and verifies it with a ping
func Init(cfg config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

// schema statements run at startup. DATETIME(3) keeps created_at
// ordering meaningful for messages sent within the same second.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INT AUTO_INCREMENT PRIMARY KEY,
		visitor_id VARCHAR(64) NOT NULL,
		visitor_name VARCHAR(255) NULL,
		visitor_email VARCHAR(255) NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_conversations_visitor_id (visitor_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INT AUTO_INCREMENT PRIMARY KEY,
		conversation_id INT NOT NULL,
		sender_type ENUM('visitor','admin') NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME(3) NOT NULL,
		KEY idx_messages_conversation (conversation_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS waitlist_entries (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_type VARCHAR(32) NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NULL,
		location VARCHAR(255) NOT NULL,
		looking_for VARCHAR(255) NOT NULL,
		created_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS newsletter_signups (
		id INT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		source VARCHAR(64) NOT NULL,
		created_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// EnsureSchema creates the tables this service needs if they do not
// exist yet
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
