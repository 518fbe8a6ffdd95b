package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers started by tests.
const CleanupLabel = "rfptriage-test"

// TestingT is the subset of testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// RequireDocker skips the test unless RFPTRIAGE_DOCKER_TESTS is set and a
// daemon answers. Containers labelled for this test are removed on cleanup.
func RequireDocker(t TestingT) *client.Client {
	t.Helper()

	if os.Getenv("RFPTRIAGE_DOCKER_TESTS") == "" {
		t.Skipf("set RFPTRIAGE_DOCKER_TESTS=1 to run container tests")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		removeTestContainers(t, cli)
		cli.Close()
	})
	return cli
}

// UniqueContainerName returns rfptriage-test-<prefix>-<test>-<random>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%s-%s-%s", CleanupLabel, prefix, sanitizeName(t.Name()), randString(4))
}

// ContainerLabels returns the labels cleanup filters on.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: sanitizeName(t.Name())}
}

func removeTestContainers(t TestingT, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := filters.NewArgs()
	args.Add("label", fmt.Sprintf("%s=%s", CleanupLabel, sanitizeName(t.Name())))

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		t.Logf("list test containers: %v", err)
		return
	}
	for _, c := range containers {
		name := strings.TrimPrefix(firstName(c.Names), "/")
		timeout := 10
		if err := cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			t.Logf("stop %s: %v", name, err)
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			t.Logf("remove %s: %v", name, err)
			continue
		}
		t.Logf("removed test container %s", name)
	}
}

// CleanupAllTestContainers removes every container carrying CleanupLabel,
// for use after interrupted runs.
func CleanupAllTestContainers(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	args := filters.NewArgs()
	args.Add("label", CleanupLabel)
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return fmt.Errorf("remove %s: %w", firstName(c.Names), err)
		}
	}
	return nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sanitizeName keeps a test name usable inside a container name.
func sanitizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		case c == '/' || c == '_' || c == '-':
			out = append(out, '-')
		}
	}
	if len(out) > 30 {
		out = out[:30]
	}
	return string(out)
}
