package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/vbk-watch/db/migrator"
	"github.com/archon-research/vbk-watch/internal/pkg/env"
)

// containerTimeout bounds container startup; override with VBK_TEST_CONTAINER_TIMEOUT.
func containerTimeout() time.Duration {
	return env.GetDuration("VBK_TEST_CONTAINER_TIMEOUT", 60*time.Second)
}

// StartPostgres creates a PostgreSQL container and returns the DSN and a
// cleanup function. No pool connection or migrations are applied.
func StartPostgres(t *testing.T) (dsn string, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        env.Get("VBK_TEST_POSTGRES_IMAGE", "postgres:17-alpine"),
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "vbkwatch",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerTimeout()),
			wait.ForListeningPort("5432/tcp").
				WithStartupTimeout(containerTimeout()),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("get port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/vbkwatch?sslmode=disable", host, port.Port())
	cleanup = func() { _ = container.Terminate(ctx) }
	return dsn, cleanup
}

// ConnectPool creates a pgxpool.Pool for the given DSN, waiting for it to answer pings.
func ConnectPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for i := 0; i < 30; i++ {
		if pool.Ping(ctx) == nil {
			return pool
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatal("timed out waiting for database connection")
	return nil
}

// MigrationsDir returns the absolute path of db/migrations.
func MigrationsDir() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "../../db/migrations")
}

// RunMigrations applies all SQL migrations from db/migrations/.
func RunMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	m := migrator.New(pool, MigrationsDir())
	if err := m.ApplyAll(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
}

// SetupPostgres is the composed helper: container + pool + migrations.
func SetupPostgres(t *testing.T) (pool *pgxpool.Pool, cleanup func()) {
	t.Helper()

	dsn, containerCleanup := StartPostgres(t)
	pool = ConnectPool(t, dsn)
	RunMigrations(t, pool)

	cleanup = func() {
		pool.Close()
		containerCleanup()
	}
	return pool, cleanup
}
