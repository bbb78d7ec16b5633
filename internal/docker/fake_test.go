package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeContainer struct {
	id       string
	name     string
	image    string
	labels   map[string]string
	state    string
	networks map[string]string
}

type fakeNetwork struct {
	id      string
	name    string
	labels  map[string]string
	members []string
}

type fakeImage struct {
	id     string
	tag    string
	labels map[string]string
}

type fakeBackend struct {
	mu         sync.Mutex
	seq        int
	containers []*fakeContainer
	networks   []*fakeNetwork
	images     []*fakeImage

	buildOutput        string
	failContainerCalls bool
	failConnect        string
	removedImages      []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		buildOutput: `{"stream":"Step 1/1 : FROM scratch\n"}` + "\n" + `{"stream":"Successfully built\n"}` + "\n",
	}
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func matchLabels(labels map[string]string, args filters.Args) bool {
	for _, expr := range args.Get("label") {
		key, value, withValue := strings.Cut(expr, "=")
		actual, ok := labels[key]
		if !ok || (withValue && actual != value) {
			return false
		}
	}
	return true
}

func matchStatus(state string, args filters.Args) bool {
	statuses := args.Get("status")
	if len(statuses) == 0 {
		return true
	}
	for _, status := range statuses {
		if status == state {
			return true
		}
	}
	return false
}

func (f *fakeBackend) addContainer(labels map[string]string, state string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeContainer{id: f.nextID("c"), labels: labels, state: state, networks: map[string]string{}}
	f.containers = append(f.containers, c)
	return c
}

func (f *fakeBackend) addNetwork(labels map[string]string, members ...string) *fakeNetwork {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &fakeNetwork{id: f.nextID("n"), labels: labels, members: members}
	n.name = "net-" + n.id
	f.networks = append(f.networks, n)
	for _, member := range members {
		if c := f.container(member); c != nil {
			c.networks[n.id] = "10.0.0." + n.id[1:]
		}
	}
	return n
}

func (f *fakeBackend) container(id string) *fakeContainer {
	for _, c := range f.containers {
		if c.id == id || c.name == id {
			return c
		}
	}
	return nil
}

func (f *fakeBackend) network(id string) *fakeNetwork {
	for _, n := range f.networks {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (f *fakeBackend) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.46"}, nil
}

func (f *fakeBackend) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []types.Container{}
	for _, c := range f.containers {
		if !matchLabels(c.labels, options.Filters) || !matchStatus(c.state, options.Filters) {
			continue
		}
		endpoints := map[string]*network.EndpointSettings{}
		for netID, ip := range c.networks {
			endpoints[f.network(netID).name] = &network.EndpointSettings{NetworkID: netID, IPAddress: ip}
		}
		res = append(res, types.Container{
			ID:              c.id,
			Labels:          c.labels,
			State:           c.state,
			NetworkSettings: &types.SummaryNetworkSettings{Networks: endpoints},
		})
	}
	return res, nil
}

func (f *fakeBackend) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failContainerCalls {
		return container.CreateResponse{}, fmt.Errorf("no such image: %s", config.Image)
	}
	c := &fakeContainer{id: f.nextID("c"), name: containerName, image: config.Image, labels: config.Labels, state: "created", networks: map[string]string{}}
	f.containers = append(f.containers, c)
	return container.CreateResponse{ID: c.id}, nil
}

func (f *fakeBackend) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.container(id)
	if c == nil {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	c.state = "running"
	return nil
}

func (f *fakeBackend) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failContainerCalls {
		return fmt.Errorf("daemon is busy")
	}
	for i, c := range f.containers {
		if c.id != id {
			continue
		}
		if c.state == "running" && !options.Force {
			return errdefs.Conflict(fmt.Errorf("container %s is running", id))
		}
		f.containers = append(f.containers[:i], f.containers[i+1:]...)
		for netID := range c.networks {
			n := f.network(netID)
			n.members = removeString(n.members, id)
		}
		return nil
	}
	return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
}

func (f *fakeBackend) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	if _, err := io.Copy(io.Discard, buildContext); err != nil {
		return types.ImageBuildResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(f.buildOutput, "errorDetail") {
		f.images = append(f.images, &fakeImage{id: f.nextID("sha256:"), tag: options.Tags[0], labels: options.Labels})
	}
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildOutput))}, nil
}

func (f *fakeBackend) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []image.Summary{}
	for _, img := range f.images {
		if matchLabels(img.labels, options.Filters) {
			res = append(res, image.Summary{ID: img.id, RepoTags: []string{img.tag}, Labels: img.labels, Size: 1 << 20})
		}
	}
	return res, nil
}

func (f *fakeBackend) ImageRemove(ctx context.Context, id string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, img := range f.images {
		if img.id == id {
			f.images = append(f.images[:i], f.images[i+1:]...)
			f.removedImages = append(f.removedImages, img.tag)
			return []image.DeleteResponse{{Deleted: id}}, nil
		}
	}
	return nil, errdefs.NotFound(fmt.Errorf("no such image: %s", id))
}

func (f *fakeBackend) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.networks {
		if n.name == name {
			return network.CreateResponse{}, errdefs.Conflict(fmt.Errorf("network with name %s already exists", name))
		}
	}
	n := &fakeNetwork{id: f.nextID("n"), name: name, labels: options.Labels}
	f.networks = append(f.networks, n)
	return network.CreateResponse{ID: n.id}, nil
}

func (f *fakeBackend) NetworkConnect(ctx context.Context, netID, id string, config *network.EndpointSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failConnect {
		return fmt.Errorf("container %s is not running in docker", id)
	}
	n := f.network(netID)
	if n == nil {
		return errdefs.NotFound(fmt.Errorf("no such network: %s", netID))
	}
	n.members = append(n.members, id)
	if c := f.container(id); c != nil {
		c.networks[netID] = "172.30.0." + netID[1:]
	}
	return nil
}

func (f *fakeBackend) NetworkDisconnect(ctx context.Context, netID, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.network(netID)
	if n == nil {
		return errdefs.NotFound(fmt.Errorf("no such network: %s", netID))
	}
	n.members = removeString(n.members, id)
	if c := f.container(id); c != nil {
		delete(c.networks, netID)
	}
	return nil
}

func (f *fakeBackend) NetworkInspect(ctx context.Context, netID string, options network.InspectOptions) (network.Inspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.network(netID)
	if n == nil {
		return network.Inspect{}, errdefs.NotFound(fmt.Errorf("no such network: %s", netID))
	}
	members := map[string]network.EndpointResource{}
	for _, member := range n.members {
		members[member] = network.EndpointResource{Name: member}
	}
	return network.Inspect{ID: n.id, Name: n.name, Labels: n.labels, Containers: members}, nil
}

func (f *fakeBackend) NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []network.Summary{}
	for _, n := range f.networks {
		if matchLabels(n.labels, options.Filters) {
			res = append(res, network.Summary{ID: n.id, Name: n.name, Labels: n.labels})
		}
	}
	return res, nil
}

func (f *fakeBackend) NetworkRemove(ctx context.Context, netID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.networks {
		if n.id == netID {
			if len(n.members) > 0 {
				return errdefs.Forbidden(fmt.Errorf("network %s has active endpoints", netID))
			}
			f.networks = append(f.networks[:i], f.networks[i+1:]...)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("no such network: %s", netID))
}

func (f *fakeBackend) networkIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, n := range f.networks {
		ids = append(ids, n.id)
	}
	return ids
}

func removeString(values []string, value string) []string {
	res := values[:0]
	for _, v := range values {
		if v != value {
			res = append(res, v)
		}
	}
	return res
}
