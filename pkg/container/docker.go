package container

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/loadforge/loadforge/pkg/api"
)

// Docker drives local Docker containers as a stand-in for a cloud
// container-group provider. It implements the same api.ContainerClient
// interface the ECS-backed production client does, starting one container
// group per WorkerAssignment, addressed by its docker container ID.
type Docker struct {
	cli         *client.Client
	networkName string
}

var _ api.ContainerClient = (*Docker)(nil)

// NewDocker builds a Docker-backed container client against the ambient
// docker daemon (DOCKER_HOST / default socket), attaching every created
// container to networkName.
func NewDocker(networkName string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, api.NewError(api.ErrProviderUnavailable, "could not create docker client", err)
	}
	return &Docker{cli: cli, networkName: networkName}, nil
}

func (d *Docker) Create(ctx context.Context, groupName, image string, env map[string]string, cpuCores, memGiB float64) (string, error) {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, v))
	}

	ccfg := &dockercontainer.Config{
		Image: image,
		Env:   envSlice,
		Labels: map[string]string{
			"loadforge.purpose": "worker",
			"loadforge.group":   groupName,
		},
	}

	hcfg := &dockercontainer.HostConfig{
		NetworkMode: dockercontainer.NetworkMode(d.networkName),
		Resources: dockercontainer.Resources{
			NanoCPUs: int64(cpuCores * 1e9),
			Memory:   int64(memGiB * 1024 * 1024 * 1024),
		},
	}

	created, err := d.cli.ContainerCreate(ctx, ccfg, hcfg, nil, groupName)
	if err != nil {
		return "", api.NewError(api.ErrProviderFatal, "docker create failed for "+groupName, err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return created.ID, api.NewError(api.ErrProviderFatal, "docker start failed for "+groupName, err)
	}

	return created.ID, nil
}

func (d *Docker) Status(ctx context.Context, providerID string) (api.ContainerStatus, error) {
	inspect, err := d.cli.ContainerInspect(ctx, providerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return api.ContainerStatus{State: api.ContainerStateUnknown}, nil
		}
		return api.ContainerStatus{}, api.NewError(api.ErrProviderUnavailable, "docker inspect failed for "+providerID, err)
	}

	if inspect.State.Running {
		return api.ContainerStatus{State: api.ContainerStateRunning}, nil
	}
	if inspect.State.Status == "exited" || inspect.State.Status == "dead" {
		code := inspect.State.ExitCode
		return api.ContainerStatus{State: api.ContainerStateTerminated, ExitCode: &code}, nil
	}
	return api.ContainerStatus{State: api.ContainerStateUnknown}, nil
}

func (d *Docker) Delete(ctx context.Context, providerID string) error {
	err := d.cli.ContainerRemove(ctx, providerID, types.ContainerRemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return api.NewError(api.ErrProviderFatal, "docker remove failed for "+providerID, err)
	}
	return nil
}

func (d *Docker) Logs(ctx context.Context, providerID string) ([]byte, error) {
	stream, err := d.cli.ContainerLogs(ctx, providerID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, api.NewError(api.ErrProviderUnavailable, "docker logs failed for "+providerID, err)
	}
	defer stream.Close()
	return ioutil.ReadAll(stream)
}
