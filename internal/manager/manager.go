// Package manager implements the sandbox manager (§4.2): allocation policy,
// per-type warm pool, state indexing, and reclamation. The active-index/pool
// locking generalizes internal/state/store.go's sync.RWMutex-guarded
// Query/Update dispatch from the teacher, keyed here by session_id/type
// instead of the teacher's domain entities.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/model"
	"sandboxrt/internal/mount"
)

// ImageResolver maps a sandbox type to its canonical image reference.
type ImageResolver interface {
	Resolve(sandboxType string) (image string, ok bool)
}

// StaticImages is the closed type->image enumeration (§3).
type StaticImages map[string]string

func (s StaticImages) Resolve(sandboxType string) (string, bool) {
	img, ok := s[sandboxType]
	return img, ok
}

// RefillFunc asynchronously tops up the warm pool for sandboxType up to its
// target size; refill failures must not affect the caller (§5).
type RefillFunc func(sandboxType string)

// Config configures the Manager.
type Config struct {
	Driver          backend.Driver
	Images          ImageResolver
	Provisioner     mount.Provisioner
	ReadonlyMounts  map[string]string
	PoolTargetSize  int
	ContainerPrefix string
	Backend         string
	Refill          RefillFunc
	Log             zerolog.Logger
}

// Manager owns the active index and the per-type warm pool.
type Manager struct {
	cfg Config

	mu     sync.RWMutex
	active map[string]*model.Container // session_id -> container
	pool   map[string][]*model.Container // type -> FIFO of ready containers
}

// New builds a Manager.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		active: make(map[string]*model.Container),
		pool:   make(map[string][]*model.Container),
	}
}

// Connect implements §4.2's connect(type, session_id) algorithm.
func (m *Manager) Connect(ctx context.Context, sandboxType, sessionID string) (*model.Container, error) {
	if sessionID != "" {
		m.mu.RLock()
		if existing, ok := m.active[sessionID]; ok {
			m.mu.RUnlock()
			return existing, nil // idempotent attach
		}
		m.mu.RUnlock()
	} else {
		sessionID = uuid.NewString()
	}

	if fromPool := m.popPool(sandboxType); fromPool != nil {
		fromPool.SessionID = sessionID
		m.mu.Lock()
		m.active[sessionID] = fromPool
		m.mu.Unlock()
		m.refillAsync(sandboxType)
		return fromPool, nil
	}

	created, err := m.create(ctx, sandboxType, sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active[sessionID] = created
	m.mu.Unlock()
	m.refillAsync(sandboxType)
	return created, nil
}

func (m *Manager) refillAsync(sandboxType string) {
	if m.cfg.Refill == nil {
		return
	}
	go m.cfg.Refill(sandboxType) // refill runs after allocation returns, never blocking the caller (§5)
}

func (m *Manager) popPool(sandboxType string) *model.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.pool[sandboxType]
	if len(queue) == 0 {
		return nil
	}
	head := queue[0]
	m.pool[sandboxType] = queue[1:]
	return head
}

// create runs the backend's create path: resolve image, generate
// SECRET_TOKEN, provision mount dir, wait for readiness.
func (m *Manager) create(ctx context.Context, sandboxType, sessionID string) (*model.Container, error) {
	image, ok := m.cfg.Images.Resolve(sandboxType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sandbox type %q", model.ErrSandboxCreateFailed, sandboxType)
	}
	token := uuid.NewString()
	name := fmt.Sprintf("%s-%s-%s", m.cfg.ContainerPrefix, sandboxType, shortID())

	mountDir := ""
	if m.cfg.Provisioner != nil {
		dir, err := m.cfg.Provisioner.Provision(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: provision mount: %v", model.ErrSandboxCreateFailed, err)
		}
		mountDir = dir
	}
	if len(m.cfg.ReadonlyMounts) > 0 && mountDir != "" {
		if err := mount.CopyReadonlyMounts(m.cfg.ReadonlyMounts, mountDir); err != nil {
			return nil, fmt.Errorf("%w: readonly mounts: %v", model.ErrSandboxCreateFailed, err)
		}
	}

	var volumes []backend.VolumeMount
	if mountDir != "" {
		volumes = append(volumes, backend.VolumeMount{HostPath: mountDir, ContainerPath: "/workspace", ReadOnly: false})
	}

	result, err := m.cfg.Driver.Create(ctx, backend.CreateRequest{
		Image: image,
		Name:  name,
		Ports: []int{8080},
		Volumes: volumes,
		Env:   map[string]string{"SECRET_TOKEN": token},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: image=%s backend=%s: %v", model.ErrSandboxCreateFailed, image, m.cfg.Backend, err)
	}
	if err := m.cfg.Driver.Start(ctx, result.Handle); err != nil {
		_ = m.cfg.Driver.Remove(ctx, result.Handle, true)
		return nil, fmt.Errorf("%w: start: %v", model.ErrSandboxCreateFailed, err)
	}
	if waiter, ok := m.cfg.Driver.(backend.ReadyWaiter); ok {
		if err := waiter.WaitForReady(ctx, result.Handle, 60); err != nil {
			_ = m.cfg.Driver.Remove(ctx, result.Handle, true)
			return nil, fmt.Errorf("%w: %v", model.ErrReadinessTimeout, err)
		}
	}

	ports := make([]string, 0, len(result.HostPorts))
	for _, hostPort := range result.HostPorts {
		ports = append(ports, fmt.Sprintf("%d", hostPort))
	}
	host := result.Host
	if host == "" {
		host = "127.0.0.1"
	}
	protocol := result.Protocol
	if protocol == "" {
		protocol = "http"
	}
	url := fmt.Sprintf("%s://%s", protocol, host)
	if len(ports) > 0 && result.Path == "" {
		url = fmt.Sprintf("%s:%s", url, ports[0])
	}

	return &model.Container{
		SessionID:     sessionID,
		ContainerID:   result.Handle,
		ContainerName: name,
		URL:           url,
		Ports:         ports,
		Path:          result.Path,
		MountDir:      mountDir,
		RuntimeToken:  token,
		Timeout:       60,
		Type:          sandboxType,
		Backend:       m.cfg.Backend,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Release implements §4.2's release(session_id, to_pool).
func (m *Manager) Release(ctx context.Context, sessionID string, toPool bool) error {
	m.mu.Lock()
	c, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, sessionID)
	}
	delete(m.active, sessionID)
	m.mu.Unlock()

	if toPool && len(m.pool[c.Type]) < m.cfg.PoolTargetSize {
		// Best-effort workspace reset; failure still returns the container to
		// the pool per §4.2 ("best-effort"). Reset recreates an empty
		// workspace the way create() does for a brand new one, so the next
		// occupant doesn't inherit the previous session's files or find its
		// bind-mounted directory missing.
		if m.cfg.Provisioner != nil {
			dir, err := m.cfg.Provisioner.Reset(ctx, c.SessionID)
			if err != nil {
				m.cfg.Log.Warn().Err(err).Str("session_id", c.SessionID).Msg("release: workspace reset failed")
			} else if len(m.cfg.ReadonlyMounts) > 0 && dir != "" {
				if err := mount.CopyReadonlyMounts(m.cfg.ReadonlyMounts, dir); err != nil {
					m.cfg.Log.Warn().Err(err).Str("session_id", c.SessionID).Msg("release: readonly mount copy failed")
				}
			}
		}
		m.mu.Lock()
		m.pool[c.Type] = append(m.pool[c.Type], c)
		m.mu.Unlock()
		return nil
	}

	var firstErr error
	if err := m.cfg.Driver.Remove(ctx, c.ContainerID, true); err != nil {
		firstErr = fmt.Errorf("manager: remove %s: %w", c.ContainerID, err)
	}
	if m.cfg.Provisioner != nil {
		if err := m.cfg.Provisioner.Delete(ctx, c.SessionID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("manager: delete mount: %w", err)
		}
	}
	return firstErr
}

// List returns every active (non-pooled) container.
func (m *Manager) List(ctx context.Context) []*model.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Container, 0, len(m.active))
	for _, c := range m.active {
		out = append(out, c)
	}
	return out
}

// Get returns the record for session_id (invariant 1: always the most
// recent successful connect's record).
func (m *Manager) Get(sessionID string) (*model.Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.active[sessionID]
	return c, ok
}

// PoolSize reports the current pool depth for sandboxType (invariant 3).
func (m *Manager) PoolSize(sandboxType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pool[sandboxType])
}

// AddToPool pushes a freshly created, ready container onto the warm pool
// for sandboxType, used by the refill path.
func (m *Manager) AddToPool(sandboxType string, c *model.Container) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pool[sandboxType]) >= m.cfg.PoolTargetSize {
		return // pool saturated meanwhile; drop rather than exceed the target
	}
	m.pool[sandboxType] = append(m.pool[sandboxType], c)
}

// CreateForPool runs the same create path Connect uses, exposed so the
// refill workflow/goroutine can build pool entries out-of-band.
func (m *Manager) CreateForPool(ctx context.Context, sandboxType string) (*model.Container, error) {
	return m.create(ctx, sandboxType, uuid.NewString())
}

// Cleanup destroys every live and pooled container on shutdown (§4.2);
// individual remove failures are logged and do not abort the sweep (§5).
func (m *Manager) Cleanup(ctx context.Context) {
	m.mu.Lock()
	all := make([]*model.Container, 0, len(m.active))
	for _, c := range m.active {
		all = append(all, c)
	}
	for _, list := range m.pool {
		all = append(all, list...)
	}
	m.active = make(map[string]*model.Container)
	m.pool = make(map[string][]*model.Container)
	m.mu.Unlock()

	for _, c := range all {
		if err := m.cfg.Driver.Remove(ctx, c.ContainerID, true); err != nil {
			m.cfg.Log.Warn().Err(err).Str("container_id", c.ContainerID).Msg("cleanup: remove failed")
		}
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
