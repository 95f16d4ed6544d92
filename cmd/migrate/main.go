package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	chstore "cloudmarketwatch/internal/storage/clickhouse"
	"cloudmarketwatch/internal/storage/migrations"
	pgstore "cloudmarketwatch/internal/storage/postgres"
)

// migrate applies the embedded schema migrations. It reads the DSNs directly
// instead of config.Load because migrations do not need source credentials.
func main() {
	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags|log.Lshortfile)

	_ = godotenv.Load()

	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Postgres migrations: %v", err)
	}
	logger.Println("Postgres migrations applied")

	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			logger.Fatalf("Connect to clickhouse: %v", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatalf("Clickhouse migrations: %v", err)
		}
		logger.Println("Clickhouse migrations applied")
	}
}
