package defra

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "sourcenetwork/defradb:latest"
	DefaultContainerName = "rfptriage-defra"
	DefaultPort          = "9181"
	ContainerPort        = "9181/tcp"
	DataDir              = "/data"
	Label                = "rfptriage-defra"

	defaultReadyTimeout = 30 * time.Second
)

// ContainerStatus is the state of the DefraDB container.
type ContainerStatus string

const (
	StatusRunning   ContainerStatus = "running"
	StatusStopped   ContainerStatus = "stopped"
	StatusNotFound  ContainerStatus = "not_found"
	StatusUnhealthy ContainerStatus = "unhealthy"
	StatusStarting  ContainerStatus = "starting"
)

// DockerConfig configures a DockerManager.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string // host directory bound to /data, e.g. ~/.rfptriage/defradb
	HostPort      string
	Labels        map[string]string
}

// DockerManager owns the DefraDB container lifecycle.
type DockerManager struct {
	cli    *client.Client
	cfg    DockerConfig
	labels map[string]string
}

// NewDockerManager connects to the local Docker daemon.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	cfg = cfg.withDefaults()

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	return &DockerManager{cli: cli, cfg: cfg, labels: labels}, nil
}

func (c DockerConfig) withDefaults() DockerConfig {
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.HostPort == "" {
		c.HostPort = DefaultPort
	}
	return c
}

// Close releases the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// URL returns the DefraDB API URL on the host.
func (m *DockerManager) URL() string {
	return fmt.Sprintf("http://localhost:%s", m.cfg.HostPort)
}

// ContainerName returns the managed container's name.
func (m *DockerManager) ContainerName() string {
	return m.cfg.ContainerName
}

// Start creates or restarts the container and waits until it is healthy.
// It is a no-op when the container is already running.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, id, err := m.inspect(ctx)
	if err != nil {
		return err
	}
	switch status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
	case StatusNotFound:
		if err := m.create(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("container in unexpected state: %s", status)
	}
	return m.WaitReady(ctx, defaultReadyTimeout)
}

// Stop stops the container if it exists.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, id, err := m.inspect(ctx)
	if err != nil || status == StatusNotFound {
		return err
	}
	timeout := 10
	if err := m.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove force-removes the container and its anonymous volumes. Data in
// DataPath is kept.
func (m *DockerManager) Remove(ctx context.Context) error {
	status, id, err := m.inspect(ctx)
	if err != nil || status == StatusNotFound {
		return err
	}
	if err := m.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Status reports the container state.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.inspect(ctx)
	return status, err
}

// Logs returns the last tail lines of container output.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	status, id, err := m.inspect(ctx)
	if err != nil {
		return "", err
	}
	if status == StatusNotFound {
		return "", fmt.Errorf("container %s not found", m.cfg.ContainerName)
	}

	rc, err := m.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: tail})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(b), nil
}

// ValidateExisting returns an error when an existing container was created
// with a different port or data directory.
func (m *DockerManager) ValidateExisting(ctx context.Context) error {
	status, id, err := m.inspect(ctx)
	if err != nil || status == StatusNotFound {
		return err
	}

	info, err := m.cli.ContainerInspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := info.HostConfig.PortBindings[ContainerPort]
	if len(bindings) == 0 {
		return fmt.Errorf("existing container has no port binding for %s", ContainerPort)
	}
	if bindings[0].HostPort != m.cfg.HostPort {
		return fmt.Errorf("existing container bound to port %s, expected %s", bindings[0].HostPort, m.cfg.HostPort)
	}

	if m.cfg.DataPath == "" {
		return nil
	}
	for _, mnt := range info.Mounts {
		if mnt.Destination != DataDir {
			continue
		}
		if mnt.Source != m.cfg.DataPath {
			return fmt.Errorf("existing container mounts %s, expected %s", mnt.Source, m.cfg.DataPath)
		}
		return nil
	}
	return fmt.Errorf("existing container has no mount for %s", DataDir)
}

// WaitReady polls the health endpoint about once a second until it answers
// or timeout passes.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	return WaitHealthy(ctx, NewClient(m.URL()), timeout)
}

// WaitHealthy polls c.HealthCheck until it succeeds or timeout passes.
func WaitHealthy(ctx context.Context, c *Client, timeout time.Duration) error {
	attempts := uint(timeout / time.Second)
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return c.HealthCheck(reqCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (m *DockerManager) create(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	cfg := &container.Config{
		Image: m.cfg.Image,
		Cmd: []string{
			"start",
			"--no-keyring",
			"--url", "0.0.0.0:9181",
			"--store", "badger",
			"--rootdir", DataDir,
		},
		Labels:       m.labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "curl", "-sf", "http://localhost:9181/health-check"},
			Interval:    2 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     10,
			StartPeriod: 5 * time.Second,
		},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: m.cfg.HostPort}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if m.cfg.DataPath != "" {
		host.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: m.cfg.DataPath, Target: DataDir}}
	}

	resp, err := m.cli.ContainerCreate(ctx, cfg, host, nil, nil, m.cfg.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (m *DockerManager) inspect(ctx context.Context) (ContainerStatus, string, error) {
	args := filters.NewArgs()
	args.Add("name", m.cfg.ContainerName)

	list, err := m.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(list) == 0 {
		return StatusNotFound, "", nil
	}
	return containerState(list[0].State), list[0].ID, nil
}

func containerState(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "dead":
		return StatusStopped
	case "created", "restarting":
		return StatusStarting
	default:
		return ContainerStatus(state)
	}
}

func (m *DockerManager) ensureImage(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.cfg.Image); err == nil {
		return nil
	}
	rc, err := m.cli.ImagePull(ctx, m.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}
