package test_utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func preparePostgresContainer() (*postgres.PostgresContainer, error) {
	ctx := context.Background()

	dbName := "costwise"
	dbUser := "test_costwise"
	dbPassword := "test_costwise"

	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %v", err)
	}

	pgContainer, err := postgres.Run(
		ctx, "postgres:18.1-alpine",
		postgres.WithInitScripts(filepath.Join(projectRoot, "dev", "init.sql")),
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return nil, err
	}
	return pgContainer, nil
}

// TestWithDB starts a Postgres instance, applies all migrations, and returns
// an open pool plus a cleanup function that tears the container down.
func TestWithDB() (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := preparePostgresContainer()
	if err != nil {
		log.Printf("Failed to start postgres container: %v", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432/tcp")

	log.Infof("Postgres container started at %s:%d", host, port.Int())

	cfg := config.Database{
		Host:   host,
		Port:   port.Int(),
		User:   "test_costwise",
		Pass:   "test_costwise",
		Name:   "costwise",
		Schema: "costwise",
	}

	// Apply migrations
	err = database.Migrate(cfg)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	pool, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open database connection: %v", err)
	}

	return pool, func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			log.Errorf("Failed to terminate postgres container: %v", err)
		}
	}
}

// findProjectRoot walks up from the working directory until it finds the
// repository root, marked by a .git directory or go.mod file. Repository
// tests run with a package-level working directory, so relative paths to
// dev/init.sql and migrations/ need anchoring.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if fileExists(filepath.Join(dir, ".git")) || fileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
