// Package trainenv is the training environment service (§4.7): the
// data-plane analog of the sandbox manager in an episodic/RL shape. It
// creates one isolated actor subprocess per training instance, tracks
// last-access time, and reaps idle instances on a timer. The instance index
// and its locking generalize internal/manager.Manager's
// sync.RWMutex-guarded map — same "index keyed by an external id, reclaimed
// on release or idle timeout" shape as the sandbox manager, applied here to
// (env_type, task_id, instance_id) instead of session_id.
package trainenv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sandboxrt/internal/model"
	"sandboxrt/internal/trainenv/actor"
	"sandboxrt/internal/trainenv/envs"
)

// ActorLauncher starts an isolated actor subprocess for an environment
// type; split out as an interface so tests can substitute a fake actor.
type ActorLauncher func(envType string) (*actor.Actor, error)

// Config configures the Service.
type Config struct {
	Launch          ActorLauncher
	CleanupInterval time.Duration
	MaxIdleTime     time.Duration
	Log             zerolog.Logger
}

func defaultLaunch(envType string) (*actor.Actor, error) {
	spec, err := envs.Resolve(envType)
	if err != nil {
		return nil, err
	}
	return actor.Start(spec.Command, nil)
}

type instance struct {
	rec        model.TrainingInstance
	act        *actor.Actor
	closed     bool
}

// Service owns the instance index and the idle reaper.
type Service struct {
	cfg Config

	mu        sync.Mutex
	instances map[string]*instance // instance_id -> instance

	stop chan struct{}
}

// New builds a Service and starts its reaper goroutine.
func New(cfg Config) *Service {
	if cfg.Launch == nil {
		cfg.Launch = defaultLaunch
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = 10 * time.Minute
	}
	s := &Service{cfg: cfg, instances: map[string]*instance{}, stop: make(chan struct{})}
	go s.reapLoop()
	return s
}

// Create starts a new actor for (envType, taskID) and initializes it with
// params, returning the new instance id and its init state.
func (s *Service) Create(ctx context.Context, envType, taskID string, params map[string]any) (string, json.RawMessage, error) {
	act, err := s.cfg.Launch(envType)
	if err != nil {
		return "", nil, fmt.Errorf("trainenv: launch %s: %w", envType, err)
	}

	instanceID := uuid.NewString()
	initParams := map[string]any{"task_id": taskID, "instance_id": instanceID, "params": params}
	result, err := act.Call("init", initParams)
	if err != nil {
		act.Close()
		return "", nil, fmt.Errorf("trainenv: init %s: %w", envType, err)
	}

	s.mu.Lock()
	s.instances[instanceID] = &instance{
		rec: model.TrainingInstance{
			EnvType:      envType,
			TaskID:       taskID,
			InstanceID:   instanceID,
			LastAccessAt: time.Now().UTC(),
		},
		act: act,
	}
	s.mu.Unlock()

	return instanceID, result, nil
}

func (s *Service) touch(instanceID string) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("trainenv: %w: %s", model.ErrUnknownInstance, instanceID)
	}
	if inst.closed {
		return nil, fmt.Errorf("trainenv: %w: %s", model.ErrInstanceReleased, instanceID)
	}
	inst.rec.LastAccessAt = time.Now().UTC()
	return inst, nil
}

// Step calls the instance's step method.
func (s *Service) Step(instanceID string, action map[string]any, params map[string]any) (json.RawMessage, error) {
	inst, err := s.touch(instanceID)
	if err != nil {
		return nil, err
	}
	return inst.act.Call("step", map[string]any{"action": action, "params": params})
}

// Evaluate calls the instance's evaluate method.
func (s *Service) Evaluate(instanceID string, messages []map[string]any, params map[string]any) (json.RawMessage, error) {
	inst, err := s.touch(instanceID)
	if err != nil {
		return nil, err
	}
	return inst.act.Call("evaluate", map[string]any{"messages": messages, "params": params})
}

// GetInfo calls the instance's get_info method.
func (s *Service) GetInfo(instanceID string, messages []map[string]any, params map[string]any) (json.RawMessage, error) {
	inst, err := s.touch(instanceID)
	if err != nil {
		return nil, err
	}
	return inst.act.Call("get_info", map[string]any{"messages": messages, "params": params})
}

// Release closes and removes instanceID. A second release on the same id
// fails with ErrUnknownInstance, since the first one removed the entry,
// rather than silently succeeding.
func (s *Service) Release(instanceID string) error {
	s.mu.Lock()
	inst, ok := s.instances[instanceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("trainenv: %w: %s", model.ErrUnknownInstance, instanceID)
	}
	if inst.closed {
		s.mu.Unlock()
		return fmt.Errorf("trainenv: %w: %s", model.ErrInstanceReleased, instanceID)
	}
	inst.closed = true
	delete(s.instances, instanceID)
	s.mu.Unlock()

	inst.act.Close()
	return nil
}

// GetEnvProfile returns the registered environment types, for capability
// introspection.
func (s *Service) GetEnvProfile() []string {
	return envs.Types()
}

func (s *Service) reapLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

func (s *Service) reapIdle() {
	cutoff := time.Now().UTC().Add(-s.cfg.MaxIdleTime)

	s.mu.Lock()
	var idle []*instance
	for id, inst := range s.instances {
		if inst.rec.LastAccessAt.Before(cutoff) {
			idle = append(idle, inst)
			delete(s.instances, id)
		}
	}
	s.mu.Unlock()

	for _, inst := range idle {
		inst.closed = true
		inst.act.Close() // reaper ignores per-instance close errors (§5)
		s.cfg.Log.Info().Str("instance_id", inst.rec.InstanceID).Msg("trainenv: reaped idle instance")
	}
}

// Shutdown stops the reaper and closes every live instance.
func (s *Service) Shutdown() {
	close(s.stop)
	s.mu.Lock()
	all := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		all = append(all, inst)
	}
	s.instances = map[string]*instance{}
	s.mu.Unlock()

	for _, inst := range all {
		inst.act.Close()
	}
}
