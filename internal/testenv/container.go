// Package testenv starts throwaway backing services for integration tests.
package testenv

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Service describes a container to start and how to tell it is ready.
type Service struct {
	Image    string
	Port     string // container port without the protocol, e.g. "6379"
	ReadyLog string
	Startup  time.Duration
}

// Endpoint is a started service reachable from the test process.
type Endpoint struct {
	Host string
	Port string
	stop func(context.Context) error
}

// Stop terminates the container.
func (e Endpoint) Stop(ctx context.Context) error {
	if e.stop == nil {
		return nil
	}
	return e.stop(ctx)
}

// Start runs svc and waits until ReadyLog appears in its output.
func Start(ctx context.Context, svc Service) (Endpoint, error) {
	// ryuk stays off unless the environment sets it
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
	startup := svc.Startup
	if startup == 0 {
		startup = time.Minute
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        svc.Image,
			ExposedPorts: []string{svc.Port + "/tcp"},
			WaitingFor:   wait.ForLog(svc.ReadyLog).WithStartupTimeout(startup),
		},
		Started: true,
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("start %s: %w", svc.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return Endpoint{}, fmt.Errorf("container host: %w", err)
	}
	// some docker setups report "null"
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := c.MappedPort(ctx, nat.Port(svc.Port))
	if err != nil {
		_ = c.Terminate(ctx)
		return Endpoint{}, fmt.Errorf("mapped port %s: %w", svc.Port, err)
	}

	return Endpoint{
		Host: host,
		Port: mapped.Port(),
		stop: func(ctx context.Context) error { return c.Terminate(ctx) },
	}, nil
}

// Main runs the package tests against svc, exporting its endpoint via setup.
// In -short mode no container is started.
func Main(m *testing.M, svc Service, setup func(Endpoint)) int {
	if testing.Short() {
		return m.Run()
	}
	ctx := context.Background()
	ep, err := Start(ctx, svc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ep.Stop(ctx)

	setup(ep)
	return m.Run()
}
