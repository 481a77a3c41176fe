// Package model holds the plain data records shared across the sandbox
// manager, the backend drivers, and the HTTP facades.
package model

import "time"

// Container identifies one live sandbox. See Container record in the data
// model: session_id is the stable external key, container_id is the
// backend-opaque handle.
type Container struct {
	SessionID    string         `json:"session_id"`
	ContainerID  string         `json:"container_id"`
	ContainerName string        `json:"container_name"`
	URL          string         `json:"url"`
	Ports        []string       `json:"ports"`
	Path         string         `json:"path,omitempty"`
	MountDir     string         `json:"mount_dir,omitempty"`
	StoragePath  string         `json:"storage_path,omitempty"`
	RuntimeToken string         `json:"runtime_token"`
	Version      string         `json:"version,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Timeout      int            `json:"timeout"`
	Type         string         `json:"type"`
	Backend      string         `json:"backend"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DeploymentStatus is the lifecycle state of a Deployment record.
type DeploymentStatus string

const (
	DeploymentRunning DeploymentStatus = "running"
	DeploymentStopped DeploymentStatus = "stopped"
)

// Deployment is a persistent entity tracked by the deployment state store.
type Deployment struct {
	ID          string           `json:"id"`
	Platform    string           `json:"platform"`
	URL         string           `json:"url"`
	AgentSource string           `json:"agent_source"`
	CreatedAt   string           `json:"created_at"`
	Status      DeploymentStatus `json:"status"`
	Token       string           `json:"token,omitempty"`
	Config      map[string]any   `json:"config,omitempty"`
}

// Missing lists the required fields d leaves empty; a Deployment survives
// per-record corruption recovery only when none are missing.
func (d Deployment) Missing() []string {
	var missing []string
	if d.ID == "" {
		missing = append(missing, "id")
	}
	if d.Platform == "" {
		missing = append(missing, "platform")
	}
	if d.URL == "" {
		missing = append(missing, "url")
	}
	if d.AgentSource == "" {
		missing = append(missing, "agent_source")
	}
	if d.CreatedAt == "" {
		missing = append(missing, "created_at")
	}
	return missing
}

// TrainingInstance is one live (env_type, task_id) actor.
type TrainingInstance struct {
	EnvType      string    `json:"env_type"`
	TaskID       string    `json:"task_id"`
	InstanceID   string    `json:"instance_id"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// ToolContent is one item of a tool-call response envelope.
type ToolContent struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// ToolResult is the uniform response envelope every in-container tool call
// returns, per the response envelope in the external interfaces.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
}
