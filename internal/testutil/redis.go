//go:build integration

// Package testutil starts the external services integration tests run against.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort nat.Port = "6379/tcp"

// StartRedis starts a throwaway Redis container and returns its URL.
// The container is terminated when the test finishes.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Memory = 128 << 20
		},
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err, "Failed to get container host")

	port, err := redisC.MappedPort(ctx, redisPort)
	require.NoError(t, err, "Failed to get container port")

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}
