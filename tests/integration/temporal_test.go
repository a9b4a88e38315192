//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/litscreen/relevance-service/internal/temporal"
)

// TestTemporalConnectivity verifies the service's own client wiring can
// reach the Temporal dev server from docker-compose.test.yml.
func TestTemporalConnectivity(t *testing.T) {
	hostPort := os.Getenv("TEMPORAL_HOST_PORT")
	if hostPort == "" {
		hostPort = "localhost:7234"
	}

	c, err := temporal.NewClient(temporal.ClientConfig{
		HostPort:  hostPort,
		Namespace: "default",
	})
	require.NoError(t, err, "is docker-compose.test.yml running?")

	jobClient := temporal.NewJobWorkflowClient(c, "relevance-tasks")
	defer jobClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, jobClient.Health(ctx), "Temporal health check failed")
}
