package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/vbk-watch/internal/pkg/env"
)

// StartRedis creates a Redis container and returns its address and a cleanup function.
func StartRedis(t *testing.T) (addr string, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        env.Get("VBK_TEST_REDIS_IMAGE", "redis:7-alpine"),
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(containerTimeout()),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("get port: %v", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), func() { _ = container.Terminate(ctx) }
}
