// Package port implements the port arbiter (§4.3): it reserves host ports
// from a configured [lo, hi) range, coordinating across manager replicas via
// a shared collections.Set when configured, or an in-process one otherwise.
// The allocation algorithm is ported directly from the original's
// DockerClient._find_free_ports in docker_client.py: add the candidate to the
// shared set first (atomic test-and-set), then attempt a real socket bind;
// on bind failure release the candidate and try the next one.
package port

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"sandboxrt/internal/collections"
	"sandboxrt/internal/model"
)

// Arbiter allocates and releases host ports from a configured range.
type Arbiter struct {
	lo, hi int
	set    collections.Set
}

// New builds an Arbiter over [lo, hi) backed by set. The manager selects set
// automatically: inproc.NewSet() in single-worker mode, redisset.NewSet() in
// multi-worker mode, per SPEC_FULL.md §4.3.
func New(lo, hi int, set collections.Set) *Arbiter {
	return &Arbiter{lo: lo, hi: hi, set: set}
}

// Allocate reserves n free ports, returning them in ascending order of
// discovery. On failure to find n ports it releases every candidate it
// claimed during the attempt and returns model.ErrNotEnoughPorts — the spec's
// "fail fast... do not partially allocate" (§7).
func (a *Arbiter) Allocate(ctx context.Context, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	claimed := make([]int, 0, n)
	defer func() {
		// Does nothing: every failure path below calls releaseAll on claimed
		// before returning, and on success claimed is the result.
	}()

	for candidate := a.lo; candidate < a.hi && len(claimed) < n; candidate++ {
		member := strconv.Itoa(candidate)
		added, err := a.set.Add(ctx, member)
		if err != nil {
			a.releaseAll(ctx, claimed)
			return nil, fmt.Errorf("port: claim %d: %w", candidate, err)
		}
		if !added {
			continue // already claimed by another allocation
		}
		if !canBind(candidate) {
			_ = a.set.Remove(ctx, member)
			continue
		}
		claimed = append(claimed, candidate)
	}

	if len(claimed) < n {
		a.releaseAll(ctx, claimed)
		return nil, model.ErrNotEnoughPorts
	}
	return claimed, nil
}

// Release returns every port in ports to the shared set. Called on driver
// remove() per §4.1's "must release all port reservations the driver
// claimed."
func (a *Arbiter) Release(ctx context.Context, ports []int) {
	a.releaseAll(ctx, ports)
}

func (a *Arbiter) releaseAll(ctx context.Context, ports []int) {
	for _, p := range ports {
		_ = a.set.Remove(ctx, strconv.Itoa(p))
	}
}

// canBind attempts a real TCP bind to confirm the port is actually free,
// catching the case where the shared set is stale (another process released
// it from the set but the OS still has it bound, or vice versa).
func canBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
