package database

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB is the global database instance
var DB *gorm.DB

// GetEnvDefault gets an environment variable or returns a default value
func GetEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// InitDatabase initializes the database connection. DB_DRIVER=sqlite selects
// an embedded database for local development and CI.
func InitDatabase() error {
	driver := GetEnvDefault("DB_DRIVER", "postgres")

	if driver == "sqlite" {
		path := GetEnvDefault("DB_PATH", "billing.db")
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		DB = db
		log.Println("✅ Database connected (sqlite)")
		return nil
	}

	host := GetEnvDefault("DB_HOST", "localhost")
	port := GetEnvDefault("DB_PORT", "5432")
	user := GetEnvDefault("DB_USER", "billing")
	password := os.Getenv("DB_PASSWORD")
	dbname := GetEnvDefault("DB_NAME", "billing")

	// Security: Use SSL mode based on environment, default to require for production
	sslMode := GetEnvDefault("DB_SSLMODE", "require")
	if os.Getenv("DB_SSLMODE") == "" && (os.Getenv("ENVIRONMENT") == "development" || os.Getenv("ENVIRONMENT") == "dev") {
		sslMode = "disable"
		log.Println("⚠️  Database SSL disabled for development environment")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, sslMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db

	log.Println("✅ Database connected successfully")
	return nil
}

// RunMigrations runs all database migrations
func RunMigrations(models ...interface{}) error {
	if DB == nil {
		log.Println("⚠️  Skipping migrations: no database connection")
		return nil
	}

	log.Println("Running database migrations...")

	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}
