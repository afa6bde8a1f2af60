package container

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// engineStopTimeout is how long the engine waits for a graceful stop before SIGKILL.
const engineStopTimeout = 10

// EngineClient is the subset of the Docker Engine API used by EngineLauncher.
type EngineClient interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockercontainer.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options dockercontainer.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error
}

// EngineLauncher starts containers through the Docker Engine API instead of
// the docker binary.
type EngineLauncher struct {
	client EngineClient

	mu   sync.Mutex
	keep map[string]bool
}

// NewEngineLauncher connects to the engine named by DOCKER_HOST, or the
// default socket.
func NewEngineLauncher() (*EngineLauncher, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewEngineLauncherWithClient(cli), nil
}

// NewEngineLauncherWithClient wraps an existing engine client.
func NewEngineLauncherWithClient(c EngineClient) *EngineLauncher {
	return &EngineLauncher{client: c, keep: make(map[string]bool)}
}

func engineConfigs(spec Spec) (*dockercontainer.Config, *dockercontainer.HostConfig, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p.Container))
		if err != nil {
			return nil, nil, fmt.Errorf("port %s: %w", p, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.Host)})
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}

	cfg := &dockercontainer.Config{
		Image:        spec.Image,
		Cmd:          spec.Args,
		Env:          env,
		ExposedPorts: exposed,
	}
	hostCfg := &dockercontainer.HostConfig{
		PortBindings: bindings,
		AutoRemove:   spec.AutoRemove,
	}
	return cfg, hostCfg, nil
}

// Launch creates and starts the container, pulling the image when the engine
// does not have it yet.
func (l *EngineLauncher) Launch(ctx context.Context, spec Spec) (string, error) {
	cfg, hostCfg, err := engineConfigs(spec)
	if err != nil {
		return "", err
	}

	resp, err := l.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if dockerclient.IsErrNotFound(err) {
		if pullErr := l.pull(ctx, spec.Image); pullErr != nil {
			return "", fmt.Errorf("pull image %s: %w", spec.Image, pullErr)
		}
		resp, err = l.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	}
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		// Best-effort cleanup. No handle exists yet, so this is the only
		// chance to remove the container, even when ctx was cancelled.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultStopTimeout)
		defer cancel()
		_ = l.client.ContainerRemove(cleanupCtx, resp.ID, dockercontainer.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	if !spec.AutoRemove {
		l.mu.Lock()
		l.keep[resp.ID] = true
		l.mu.Unlock()
	}
	return resp.ID, nil
}

func (l *EngineLauncher) pull(ctx context.Context, ref string) error {
	rc, err := l.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()

	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

// Teardown stops the container. A container that is already gone counts as
// stopped.
func (l *EngineLauncher) Teardown(ctx context.Context, id string) error {
	timeout := engineStopTimeout
	err := l.client.ContainerStop(ctx, id, dockercontainer.StopOptions{Timeout: &timeout})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("stop container %s: %w", id, err)
	}

	l.mu.Lock()
	remove := l.keep[id]
	delete(l.keep, id)
	l.mu.Unlock()

	if remove {
		err := l.client.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true})
		if err != nil && !dockerclient.IsErrNotFound(err) {
			return fmt.Errorf("remove container %s: %w", id, err)
		}
	}
	return nil
}
