// Package localdaemon implements the local-daemon backend driver (§4.1) over
// the Docker Engine API, grounded directly on the teacher's
// agents/shared/docker/client.go (NewClient, Exec/stdcopy demux,
// CreateContainer/StartContainer, HostPortFor) and dyad.go (container spec
// construction, pull-fallback ordering). Where the teacher builds two
// containers per "dyad", this driver builds exactly one sandbox container
// per Create call.
package localdaemon

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/port"
)

// Options configures the local-daemon driver.
type Options struct {
	Arbiter      *port.Arbiter
	Rewrite      backend.RewriteTable
	PullFallback []string // mirror registries tried in order after the primary pull fails
	Log          zerolog.Logger
}

// Driver implements backend.Driver over a Docker Engine API client.
type Driver struct {
	cli  *client.Client
	opts Options
}

// New builds a Driver from an existing Docker client, grounded on
// shared/docker/client.go's NewClient (env-based client; host auto-detection
// is the caller's responsibility, wired in cmd/manager).
func New(cli *client.Client, opts Options) *Driver {
	return &Driver{cli: cli, opts: opts}
}

// Register installs this driver under "docker" in the backend registry.
func Register(cli *client.Client, opts Options) {
	backend.Register("docker", func() (backend.Driver, error) {
		return New(cli, opts), nil
	})
}

func (d *Driver) Create(ctx context.Context, req backend.CreateRequest) (backend.CreateResult, error) {
	img := d.opts.Rewrite.Rewrite(req.Image)
	if err := d.ensureImage(ctx, img); err != nil {
		return backend.CreateResult{}, fmt.Errorf("localdaemon: ensure image %s: %w", img, err)
	}

	hostPorts, err := d.opts.Arbiter.Allocate(ctx, len(req.Ports))
	if err != nil {
		return backend.CreateResult{}, fmt.Errorf("localdaemon: allocate ports: %w", err)
	}

	exposedPorts := nat.PortSet{}
	bindings := nat.PortMap{}
	hostPortOf := map[int]int{}
	for i, containerPort := range req.Ports {
		p, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			d.opts.Arbiter.Release(ctx, hostPorts)
			return backend.CreateResult{}, fmt.Errorf("localdaemon: port spec: %w", err)
		}
		exposedPorts[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPorts[i])}}
		hostPortOf[containerPort] = hostPorts[i]
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	var mounts []mount.Mount
	for _, v := range req.Volumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   v.HostPath,
			Target:   v.ContainerPath,
			ReadOnly: v.ReadOnly,
		})
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:        img,
		Env:          env,
		ExposedPorts: exposedPorts,
	}, &container.HostConfig{
		PortBindings: bindings,
		Mounts:       mounts,
	}, &network.NetworkingConfig{}, nil, req.Name)
	if err != nil {
		d.opts.Arbiter.Release(ctx, hostPorts)
		return backend.CreateResult{}, fmt.Errorf("localdaemon: container create: %w", err)
	}

	return backend.CreateResult{
		Handle:    resp.ID,
		HostPorts: hostPortOf,
		Host:      "127.0.0.1",
		Protocol:  "http",
	}, nil
}

func (d *Driver) Start(ctx context.Context, handle string) error {
	if err := d.cli.ContainerStart(ctx, handle, container.StartOptions{}); err != nil {
		return fmt.Errorf("localdaemon: start %s: %w", handle, err)
	}
	return nil
}

func (d *Driver) Stop(ctx context.Context, handle string, gracePeriodSeconds int) error {
	info, err := d.cli.ContainerInspect(ctx, handle)
	if err == nil && !info.State.Running {
		return nil // idempotent: already stopped is success
	}
	timeout := gracePeriodSeconds
	if err := d.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("localdaemon: stop %s: %w", handle, err)
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, handle string, force bool) error {
	info, err := d.cli.ContainerInspect(ctx, handle)
	if err == nil {
		d.releasePorts(ctx, info)
	}
	if err := d.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("localdaemon: remove %s: %w", handle, err)
	}
	return nil
}

func (d *Driver) Inspect(ctx context.Context, handle string) (backend.Status, backend.Attributes, error) {
	info, err := d.cli.ContainerInspect(ctx, handle)
	if err != nil {
		return backend.StatusUnknown, nil, fmt.Errorf("localdaemon: inspect %s: %w", handle, err)
	}
	status := backend.StatusUnknown
	switch {
	case info.State.Running:
		status = backend.StatusRunning
	case info.State.Status == "created":
		status = backend.StatusCreating
	case !info.State.Running:
		status = backend.StatusExited
	}
	attrs := backend.Attributes{
		"id":      info.ID,
		"name":    info.Name,
		"status":  info.State.Status,
		"health":  healthStatus(info),
	}
	return status, attrs, nil
}

// WaitForReady implements backend.ReadyWaiter by polling container health
// until Docker's own healthcheck passes, or immediately succeeding if the
// image defines no healthcheck (mirrors containers without a HEALTHCHECK
// directive being considered ready once running).
func (d *Driver) WaitForReady(ctx context.Context, handle string, timeoutSeconds int) error {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		status, attrs, err := d.Inspect(ctx, handle)
		if err != nil {
			return err
		}
		if health, _ := attrs["health"].(string); status == backend.StatusRunning && (health == "" || health == "healthy") {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("localdaemon: %s not ready before timeout, last status %s", handle, status)
		}
		time.Sleep(time.Second)
	}
}

func healthStatus(info types.ContainerJSON) string {
	if info.State.Health == nil {
		return ""
	}
	return info.State.Health.Status
}

// releasePorts reads the port map from the container's attributes and
// returns every bound host port to the arbiter — the §4.1 requirement that
// "On remove, it reads the port map from the handle's attributes and removes
// every associated port from the reservation set."
func (d *Driver) releasePorts(ctx context.Context, info types.ContainerJSON) {
	var hostPorts []int
	for _, bindings := range info.NetworkSettings.Ports {
		for _, b := range bindings {
			if p, err := strconv.Atoi(b.HostPort); err == nil {
				hostPorts = append(hostPorts, p)
			}
		}
	}
	d.opts.Arbiter.Release(ctx, hostPorts)
}

// ensureImage applies the pull-fallback order: local cache, then a pull of
// img itself, then each configured mirror registry in turn, retagging to the
// canonical name after
// a successful mirror pull so future references resolve locally — §4.1's
// "Local-daemon driver specifics."
func (d *Driver) ensureImage(ctx context.Context, img string) error {
	if _, _, err := d.cli.ImageInspectWithRaw(ctx, img); err == nil {
		return nil // local cache hit
	}
	var lastErr error
	candidates := append([]string{img}, d.opts.PullFallback...)
	for i, ref := range candidates {
		pullRef := ref
		if i > 0 {
			pullRef = strings.TrimSuffix(ref, "/") + "/" + img
		}
		rc, err := d.cli.ImagePull(ctx, pullRef, image.PullOptions{})
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if i > 0 {
			if err := d.cli.ImageTag(ctx, pullRef, img); err != nil {
				lastErr = err
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("localdaemon: pull %s after fallback chain: %w", img, lastErr)
}

// Exec runs cmd inside handle, demuxing stdout/stderr exactly as
// shared/docker/client.go's Exec does (ContainerExecCreate/Attach, goroutine
// stdin copy, stdcopy.StdCopy demux for non-TTY streams).
func (d *Driver) Exec(ctx context.Context, handle string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	execResp, err := d.cli.ContainerExecCreate(ctx, handle, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("localdaemon: exec create: %w", err)
	}
	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("localdaemon: exec attach: %w", err)
	}
	defer attach.Close()

	if stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, stdin)
			attach.CloseWrite()
		}()
	}
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		return fmt.Errorf("localdaemon: exec demux: %w", err)
	}
	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return fmt.Errorf("localdaemon: exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("localdaemon: exec exit code %d", inspect.ExitCode)
	}
	return nil
}

// CopyFileToContainer tars a single file into a container path, grounded on
// shared/docker/client.go's CopyFileToContainer.
func (d *Driver) CopyFileToContainer(ctx context.Context, handle, destDir, name string, content []byte, mode int64) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: mode, Size: int64(len(content))}); err != nil {
		return fmt.Errorf("localdaemon: tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("localdaemon: tar write: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("localdaemon: tar close: %w", err)
	}
	if err := d.cli.CopyToContainer(ctx, handle, destDir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("localdaemon: copy to container: %w", err)
	}
	return nil
}
