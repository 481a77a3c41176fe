package model

import "errors"

// Sentinel errors bubbled through the manager, the backend drivers and the
// deployment store. Callers use errors.Is/errors.As against these rather than
// matching on string content.
var (
	ErrSandboxCreateFailed = errors.New("sandbox creation failed")
	ErrNotEnoughPorts      = errors.New("not enough free ports in configured range")
	ErrReadinessTimeout    = errors.New("readiness wait timed out")
	ErrWorkspaceEscape     = errors.New("path escapes workspace")
	ErrSessionNotFound     = errors.New("session not found")
	ErrDeploymentNotFound  = errors.New("deployment not found")
	ErrWouldBlankState     = errors.New("refusing to overwrite non-empty state with empty state")
	ErrUnknownBackend      = errors.New("unknown backend")
	ErrUnknownInstance     = errors.New("unknown training instance")
	ErrInstanceReleased    = errors.New("training instance already released")
	ErrEmptyCode           = errors.New("code must not be empty")
	ErrEmptyCommand        = errors.New("command must not be empty")
)
