package main

import (
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"samedaydispatch/internal/adapters/repositories"
	"samedaydispatch/internal/platform/db"
)

// dbtool applies the Postgres schema migrations for the package
// snapshot sink, the operational counterpart of cmd/server's
// SQLite-local InitSchema path.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrationsPath := getEnv("MIGRATIONS_PATH", "migrations")

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	log.Println("Applying migrations...")
	if err := repositories.MigrateUp(conn, migrationsPath); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("Migrations applied.")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
