//go:build integration

package mongostore

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mongoImage = "mongo:7"

var (
	mongoOnce sync.Once
	mongoAddr string
	mongoErr  error
)

func init() { containerURL = sharedMongoContainer }

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// sharedMongoContainer starts one standalone mongod for the whole package run.
// The testcontainers reaper removes it when the test binary exits.
func sharedMongoContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("container tests skipped in short mode")
	}
	if !dockerAvailable() {
		t.Skip("docker not available")
	}

	mongoOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        mongoImage,
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(90 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			mongoErr = fmt.Errorf("start %s: %w", mongoImage, err)
			return
		}
		host, err := c.Host(ctx)
		if err != nil {
			mongoErr = err
			return
		}
		port, err := c.MappedPort(ctx, "27017/tcp")
		if err != nil {
			mongoErr = err
			return
		}
		mongoAddr = fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	})
	if mongoErr != nil {
		t.Fatalf("mongo container: %v", mongoErr)
	}
	return mongoAddr
}
