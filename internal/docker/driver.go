package docker

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/pkg/targz"
)

// Backend is the part of the Docker Engine API the driver talks to.
// *client.Client implements it.
type Backend interface {
	Ping(ctx context.Context) (types.Ping, error)

	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, container string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, container string, options container.RemoveOptions) error

	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageRemove(ctx context.Context, image string, options image.RemoveOptions) ([]image.DeleteResponse, error)

	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkConnect(ctx context.Context, network, container string, config *network.EndpointSettings) error
	NetworkDisconnect(ctx context.Context, network, container string, force bool) error
	NetworkInspect(ctx context.Context, network string, options network.InspectOptions) (network.Inspect, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkRemove(ctx context.Context, network string) error
}

var _ Backend = (*client.Client)(nil)

var upStatuses = []string{"created", "restarting", "running"}

// LogFunc receives build and start progress, one line at a time.
type LogFunc func(line string)

type Stack struct {
	ContainerID string
	NetworkID   string
}

type Driver struct {
	backend Backend
	gateway string
	logger  *zap.Logger
}

// NewClient connects to the Docker Engine at host, e.g. unix:///var/run/docker.sock.
func NewClient(host string) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create docker client")
	}
	return cli, nil
}

// NewDriver manages stacks on backend. gateway is the container the gateway
// itself runs in, it is attached to the private bridge of every stack.
func NewDriver(backend Backend, gateway string, logger *zap.Logger) *Driver {
	return &Driver{
		backend: backend,
		gateway: gateway,
		logger:  logger.Named("docker"),
	}
}

func (d *Driver) Ping(ctx context.Context) error {
	ping, err := d.backend.Ping(ctx)
	if err != nil {
		return errors.Wrap(err, "Failed to ping docker")
	}
	d.logger.Info("Docker is reachable", zap.String("api_version", ping.APIVersion), zap.String("os_type", ping.OSType))
	return nil
}

// findContainer returns the last listed live container of the stack, or nil.
func (d *Driver) findContainer(ctx context.Context, stackName, version string) (*types.Container, error) {
	containers, err := d.backend.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: labelFilters(StackLabels(stackName, version), statusFilters(upStatuses)...),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to list containers")
	}
	if len(containers) == 0 {
		return nil, nil
	}
	return &containers[len(containers)-1], nil
}

func (d *Driver) IsUp(ctx context.Context, stackName, version string) (bool, error) {
	found, err := d.findContainer(ctx, stackName, version)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

// Build creates the image tag from the source tree at path, VCS metadata excluded.
func (d *Driver) Build(ctx context.Context, path, tag string, labels map[string]string, logf LogFunc) error {
	log := d.logger.With(lf.ImageTag(tag))
	log.Info("Building image", zap.String("path", path))

	buildContext := targz.Pack(path, ".git")
	defer buildContext.Close()

	imageLabels := map[string]string{LabelManaged: "true"}
	for key, value := range labels {
		imageLabels[key] = value
	}

	resp, err := d.backend.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Labels:      imageLabels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		log.Warn("Failed to start image build", zap.Error(err))
		return newError(BuildFailed, tag, err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return newError(BuildFailed, tag, errors.Wrap(err, "Failed to read build output"))
		}
		if msg.Error != nil {
			logf(msg.Error.Message)
			log.Warn("Image build failed", zap.String("detail", msg.Error.Message))
			return newError(BuildFailed, tag, errors.New(msg.Error.Message))
		}
		if msg.ErrorMessage != "" {
			logf(msg.ErrorMessage)
			return newError(BuildFailed, tag, errors.New(msg.ErrorMessage))
		}
		if msg.Stream != "" {
			logf(msg.Stream)
		}
	}

	log.Info("Built image")
	return nil
}

// Start runs a container from tag and attaches it and the gateway to a
// fresh private bridge. Resources created before a failure are left behind,
// a later cleanup reclaims them.
func (d *Driver) Start(ctx context.Context, name, tag string, labels map[string]string, logf LogFunc) (*Stack, error) {
	log := d.logger.With(lf.ImageTag(tag), zap.String("container_name", name))
	fail := func(err error) (*Stack, error) {
		log.Warn("Failed to start stack", zap.Error(err))
		return nil, newError(StartFailed, tag, err)
	}

	logf("Creating container \"" + name + "\" from image \"" + tag + "\".\n")
	created, err := d.backend.ContainerCreate(ctx, &container.Config{
		Image:  tag,
		Labels: labels,
	}, &container.HostConfig{}, nil, nil, name)
	if err != nil {
		return fail(errors.Wrap(err, "Failed to create container"))
	}
	for _, warning := range created.Warnings {
		logf(warning + "\n")
	}
	log = log.With(lf.ContainerID(created.ID))

	logf("Starting container \"" + created.ID + "\".\n")
	if err := d.backend.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fail(errors.Wrap(err, "Failed to start container"))
	}

	networkLabels := map[string]string{LabelProxyBridge: "true"}
	for key, value := range labels {
		networkLabels[key] = value
	}
	networkName := NetworkName(created.ID)
	logf("Creating network \"" + networkName + "\".\n")
	bridge, err := d.backend.NetworkCreate(ctx, networkName, network.CreateOptions{
		Driver:     "bridge",
		Internal:   true,
		Attachable: true,
		Labels:     networkLabels,
	})
	if err != nil {
		return fail(errors.Wrap(err, "Failed to create network"))
	}
	log = log.With(lf.NetworkID(bridge.ID))

	for _, member := range []string{created.ID, d.gateway} {
		logf("Connecting \"" + member + "\" to \"" + bridge.ID + "\".\n")
		if err := d.backend.NetworkConnect(ctx, bridge.ID, member, nil); err != nil {
			return fail(errors.Wrapf(err, "Failed to connect %s to network", member))
		}
	}

	log.Info("Started stack")
	return &Stack{ContainerID: created.ID, NetworkID: bridge.ID}, nil
}

// Address returns the IP of the stack's container on its private bridge.
func (d *Driver) Address(ctx context.Context, stackName, version string) (string, error) {
	stack := stackName + ":" + version
	found, err := d.findContainer(ctx, stackName, version)
	if err != nil {
		return "", err
	}
	if found == nil {
		return "", newError(ContainerNotFound, stack, nil)
	}
	if found.NetworkSettings == nil {
		return "", newError(BridgeNotFound, stack, nil)
	}

	names := make([]string, 0, len(found.NetworkSettings.Networks))
	for name := range found.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		endpoint := found.NetworkSettings.Networks[name]
		if endpoint == nil {
			continue
		}
		details, err := d.backend.NetworkInspect(ctx, endpoint.NetworkID, network.InspectOptions{})
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return "", errors.Wrapf(err, "Failed to inspect network %s", name)
		}
		if _, ok := details.Labels[LabelProxyBridge]; ok {
			return endpoint.IPAddress, nil
		}
	}

	return "", newError(BridgeNotFound, stack, errors.Errorf("container %s networks: %s", found.ID, strings.Join(names, ", ")))
}

// Stop removes the stack's containers and its private bridges. Images stay
// so that the next build of the same version reuses the layer cache.
func (d *Driver) Stop(ctx context.Context, stackName, version string) error {
	log := d.logger.With(lf.ProjectName(stackName), lf.Version(version))
	labels := StackLabels(stackName, version)

	var errs error
	containers, err := d.backend.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: labelFilters(labels),
	})
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "Failed to list stack containers"))
	}
	errs = multierr.Append(errs, forEach(ctx, containers, d.removeContainer))

	bridgeLabels := StackLabels(stackName, version)
	bridgeLabels[LabelProxyBridge] = "true"
	networks, err := d.backend.NetworkList(ctx, network.ListOptions{Filters: labelFilters(bridgeLabels)})
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "Failed to list stack networks"))
	}
	errs = multierr.Append(errs, forEach(ctx, networks, func(ctx context.Context, summary network.Summary) error {
		return d.removeNetwork(ctx, summary.ID, ScopeAll)
	}))

	if errs != nil {
		log.Warn("Failed to stop stack", zap.Error(errs))
		return errs
	}
	log.Info("Stopped stack", zap.Int("containers", len(containers)), zap.Int("networks", len(networks)))
	return nil
}

func (d *Driver) removeContainer(ctx context.Context, summary types.Container) error {
	d.logger.Debug("Removing container", lf.ContainerID(summary.ID), zap.String("state", summary.State))
	err := d.backend.ContainerRemove(ctx, summary.ID, container.RemoveOptions{RemoveVolumes: true, Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, "Failed to remove container %s", summary.ID)
	}
	return nil
}

// removeNetwork detaches whatever is still connected and removes the bridge.
// With scope STOPPED a bridge that has more than the gateway attached is in
// use and is kept.
func (d *Driver) removeNetwork(ctx context.Context, id string, scope Scope) error {
	details, err := d.backend.NetworkInspect(ctx, id, network.InspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "Failed to inspect network %s", id)
	}
	if scope == ScopeStopped && len(details.Containers) > 1 {
		d.logger.Debug("Keeping network in use", lf.NetworkID(id), zap.Int("containers", len(details.Containers)))
		return nil
	}

	for member := range details.Containers {
		d.logger.Debug("Disconnecting container", lf.NetworkID(id), lf.ContainerID(member))
		if err := d.backend.NetworkDisconnect(ctx, id, member, true); err != nil && !errdefs.IsNotFound(err) {
			return errors.Wrapf(err, "Failed to disconnect %s from network %s", member, id)
		}
	}

	d.logger.Debug("Removing network", lf.NetworkID(id))
	if err := d.backend.NetworkRemove(ctx, id); err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, "Failed to remove network %s", id)
	}
	return nil
}
