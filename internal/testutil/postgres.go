package testutil

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/pokeduel/internal/config"
	"github.com/cory-johannsen/pokeduel/internal/storage/postgres"
)

// PostgresContainer is a throwaway PostgreSQL with a connected pool.
type PostgresContainer struct {
	Pool    *postgres.Pool
	RawPool *pgxpool.Pool
	Config  config.DatabaseConfig
}

// NewPostgresContainer starts PostgreSQL 16 and connects a Pool to it.
//
// Postcondition: the pool is closed and the container removed at test cleanup.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	c := startContainer(t, "postgres", testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pokeduel",
			"POSTGRES_PASSWORD": "pokeduel",
			"POSTGRES_DB":       "pokeduel_test",
		},
		// The server logs readiness twice: once for the init run, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	})

	host, portStr, err := net.SplitHostPort(endpoint(t, c, "5432/tcp"))
	if err != nil {
		t.Fatalf("parsing postgres endpoint: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing postgres port %q: %v", portStr, err)
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port,
		User:            "pokeduel",
		Password:        "pokeduel",
		Name:            "pokeduel_test",
		SSLMode:         "disable",
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	pool, err := postgres.NewPool(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return &PostgresContainer{Pool: pool, RawPool: pool.DB(), Config: cfg}
}

// migrationsDir locates the repository's migrations directory from this
// source file, so tests in any package find it.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// ApplyMigrations runs every up migration in migrations/ against the
// container with golang-migrate.
//
// Postcondition: battle_records and accounts exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	start := time.Now()
	m, err := migrate.New("file://"+migrationsDir(), pc.Config.DSN())
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// Reset truncates every table so subtests start from an empty store.
func (pc *PostgresContainer) Reset(t *testing.T) {
	t.Helper()
	if _, err := pc.RawPool.Exec(context.Background(), `TRUNCATE battle_records, accounts`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}
