// Package cluster implements the Kubernetes backend driver (§4.1), grounded
// on the teacher's internal/beam/kube.go: in-cluster config with kubeconfig
// fallback, label-selector pod resolution, remotecommand/SPDY exec. Where the
// teacher resolves an existing "dyad" pod, this driver creates one pod plus a
// NodePort service per sandbox.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"

	"sandboxrt/internal/backend"
)

// Options configures the cluster driver.
type Options struct {
	Namespace      string
	Rewrite        backend.RewriteTable
	ImagePullSecrets []string
	NodeSelector   map[string]string
}

// Driver implements backend.Driver over client-go. clientset is kept as the
// kubernetes.Interface rather than the concrete *kubernetes.Clientset so
// tests can substitute client-go's fake clientset.
type Driver struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	opts      Options
}

// NewConfig resolves in-cluster config, falling back to KUBECONFIG or
// ~/.kube/config, grounded on kube.go's newKubeClient.
func NewConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	path := kubeconfigPath
	if path == "" {
		path = os.Getenv("KUBECONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".kube", "config")
		}
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve kubeconfig: %w", err)
	}
	return cfg, nil
}

// New builds a Driver from a resolved rest.Config.
func New(cfg *rest.Config, opts Options) (*Driver, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: build clientset: %w", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = "sandboxrt"
	}
	return &Driver{clientset: clientset, restCfg: cfg, opts: opts}, nil
}

// newWithClientset builds a Driver around an already-constructed clientset,
// used by tests to inject client-go's fake.Clientset.
func newWithClientset(clientset kubernetes.Interface, opts Options) *Driver {
	if opts.Namespace == "" {
		opts.Namespace = "sandboxrt"
	}
	return &Driver{clientset: clientset, opts: opts}
}

// Register installs this driver under "k8s" in the backend registry.
func Register(cfg *rest.Config, opts Options) {
	backend.Register("k8s", func() (backend.Driver, error) {
		return New(cfg, opts)
	})
}

func (d *Driver) Create(ctx context.Context, req backend.CreateRequest) (backend.CreateResult, error) {
	img := d.opts.Rewrite.Rewrite(req.Image)

	var envVars []corev1.EnvVar
	for k, v := range req.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}
	var containerPorts []corev1.ContainerPort
	var servicePorts []corev1.ServicePort
	for _, p := range req.Ports {
		containerPorts = append(containerPorts, corev1.ContainerPort{ContainerPort: int32(p)})
		servicePorts = append(servicePorts, corev1.ServicePort{
			Name:       "p" + strconv.Itoa(p),
			Port:       int32(p),
			TargetPort: intstr.FromInt(p),
		})
	}

	var pullSecrets []corev1.LocalObjectReference
	for _, s := range d.opts.ImagePullSecrets {
		pullSecrets = append(pullSecrets, corev1.LocalObjectReference{Name: s})
	}

	hostPathType := corev1.HostPathDirectoryOrCreate
	var volumes []corev1.Volume
	var volumeMounts []corev1.VolumeMount
	for i, v := range req.Volumes {
		name := "vol-" + strconv.Itoa(i)
		volumes = append(volumes, corev1.Volume{
			Name: name,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: v.HostPath, Type: &hostPathType},
			},
		})
		volumeMounts = append(volumeMounts, corev1.VolumeMount{
			Name:      name,
			MountPath: v.ContainerPath,
			ReadOnly:  v.ReadOnly,
		})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      req.Name,
			Namespace: d.opts.Namespace,
			Labels:    map[string]string{"sandboxrt/sandbox": req.Name},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:         "sandbox",
				Image:        img,
				Env:          envVars,
				Ports:        containerPorts,
				VolumeMounts: volumeMounts,
			}},
			Volumes:          volumes,
			ImagePullSecrets: pullSecrets,
			NodeSelector:     d.opts.NodeSelector,
		},
	}
	if _, err := d.clientset.CoreV1().Pods(d.opts.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return backend.CreateResult{}, fmt.Errorf("cluster: create pod: %w", err)
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: req.Name, Namespace: d.opts.Namespace},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Selector: map[string]string{"sandboxrt/sandbox": req.Name},
			Ports:    servicePorts,
		},
	}
	created, err := d.clientset.CoreV1().Services(d.opts.Namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		_ = d.clientset.CoreV1().Pods(d.opts.Namespace).Delete(ctx, req.Name, metav1.DeleteOptions{})
		return backend.CreateResult{}, fmt.Errorf("cluster: create service: %w", err)
	}

	hostPorts := map[int]int{}
	for i, sp := range created.Spec.Ports {
		hostPorts[req.Ports[i]] = int(sp.NodePort)
	}

	host, err := d.resolveNodeHost(ctx)
	if err != nil {
		return backend.CreateResult{}, err
	}

	return backend.CreateResult{
		Handle:    req.Name,
		HostPorts: hostPorts,
		Host:      host,
		Protocol:  "http",
	}, nil
}

// resolveNodeHost picks the external IP of the first ready node, falling
// back to the internal IP, per §4.1's "Cluster driver specifics."
func (d *Driver) resolveNodeHost(ctx context.Context) (string, error) {
	nodes, err := d.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil || len(nodes.Items) == 0 {
		return "", fmt.Errorf("cluster: list nodes: %w", err)
	}
	var internal string
	for _, addr := range nodes.Items[0].Status.Addresses {
		switch addr.Type {
		case corev1.NodeExternalIP:
			return addr.Address, nil
		case corev1.NodeInternalIP:
			internal = addr.Address
		}
	}
	if internal == "" {
		return "", fmt.Errorf("cluster: no node address found")
	}
	return internal, nil
}

func (d *Driver) Start(ctx context.Context, handle string) error {
	// Pods run at creation time in Kubernetes; Start is a no-op here, but the
	// call still validates the pod exists so a caller gets a prompt error
	// rather than silently proceeding against a missing handle.
	_, _, err := d.Inspect(ctx, handle)
	return err
}

func (d *Driver) Stop(ctx context.Context, handle string, _ int) error {
	_, err := d.clientset.CoreV1().Pods(d.opts.Namespace).Get(ctx, handle, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil // idempotent
	}
	return d.clientset.CoreV1().Pods(d.opts.Namespace).Delete(ctx, handle, metav1.DeleteOptions{})
}

// Remove always removes the associated service first, per §4.1.
func (d *Driver) Remove(ctx context.Context, handle string, force bool) error {
	var grace *int64
	if force {
		zero := int64(0)
		grace = &zero
	}
	if err := d.clientset.CoreV1().Services(d.opts.Namespace).Delete(ctx, handle, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("cluster: remove service: %w", err)
	}
	if err := d.clientset.CoreV1().Pods(d.opts.Namespace).Delete(ctx, handle, metav1.DeleteOptions{GracePeriodSeconds: grace}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("cluster: remove pod: %w", err)
	}
	return nil
}

func (d *Driver) Inspect(ctx context.Context, handle string) (backend.Status, backend.Attributes, error) {
	pod, err := d.clientset.CoreV1().Pods(d.opts.Namespace).Get(ctx, handle, metav1.GetOptions{})
	if err != nil {
		return backend.StatusUnknown, nil, fmt.Errorf("cluster: inspect %s: %w", handle, err)
	}
	status := backend.StatusUnknown
	switch pod.Status.Phase {
	case corev1.PodRunning:
		if allContainersReady(pod) {
			status = backend.StatusRunning
		} else {
			status = backend.StatusCreating
		}
	case corev1.PodPending:
		status = backend.StatusCreating
	case corev1.PodSucceeded, corev1.PodFailed:
		status = backend.StatusExited
	}
	return status, backend.Attributes{"phase": string(pod.Status.Phase)}, nil
}

// WaitForReady is required because Kubernetes cannot synchronously guarantee
// readiness on Create (§4.1): "Readiness = phase running and all container
// statuses ready."
func (d *Driver) WaitForReady(ctx context.Context, handle string, timeoutSeconds int) error {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		status, _, err := d.Inspect(ctx, handle)
		if err != nil {
			return err
		}
		if status == backend.StatusRunning {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cluster: %s not ready: %s", handle, status)
		}
		time.Sleep(time.Second)
	}
}

func allContainersReady(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return len(pod.Status.ContainerStatuses) > 0
}

// Exec runs cmd inside the sandbox container of pod handle via SPDY
// streaming, grounded on internal/beam/kube.go's exec/execCapture.
func (d *Driver) Exec(ctx context.Context, handle string, cmd []string, stdin io.Reader, stdout, stderr io.Writer) error {
	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(d.opts.Namespace).
		Name(handle).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: "sandbox",
			Command:   cmd,
			Stdin:     stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(d.restCfg, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("cluster: build executor: %w", err)
	}
	var combinedErr bytes.Buffer
	if stderr == nil {
		stderr = &combinedErr
	}
	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
}
