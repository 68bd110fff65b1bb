// Package testutil provides test helpers for running the storage backends
// against real PostgreSQL and Redis containers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// startContainer runs req and registers its termination with t. Container
// tests are skipped under -short.
//
// Precondition: Docker must be available.
func startContainer(t *testing.T, name string, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s container test in -short mode", name)
	}
	ctx := context.Background()
	start := time.Now()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting %s container: %v [%s]", name, err, time.Since(start))
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	t.Logf("%s container started [%s]", name, time.Since(start))
	return c
}

// endpoint returns the host:port mapped to the container's port.
func endpoint(t *testing.T, c testcontainers.Container, port string) string {
	t.Helper()
	addr, err := c.PortEndpoint(context.Background(), nat.Port(port), "")
	if err != nil {
		t.Fatalf("resolving %s endpoint: %v", port, err)
	}
	return addr
}
