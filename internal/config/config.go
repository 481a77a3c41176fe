// Package config binds the sandboxrt environment configuration surface
// (§6 of SPEC_FULL.md) with viper, mirroring the flat env-var struct the
// teacher's cmd/manager/main.go reads by hand but generalized to the much
// larger field set the original Python Settings model exposes.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ContainerDeployment is the closed enum of backend names the driver
// registry resolves at startup (§9 design note: driver registry).
type ContainerDeployment string

const (
	DeploymentDocker   ContainerDeployment = "docker"
	DeploymentK8s      ContainerDeployment = "k8s"
	DeploymentAgentRun ContainerDeployment = "agentrun"
	DeploymentFC       ContainerDeployment = "fc"
)

// FileSystem selects the mount-provisioning backend.
type FileSystem string

const (
	FileSystemLocal FileSystem = "local"
	FileSystemOSS   FileSystem = "oss"
)

// Config is the full manager configuration surface.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
	Debug   bool   `mapstructure:"debug"`

	BearerToken string `mapstructure:"bearer_token"`

	DefaultSandboxType []string `mapstructure:"default_sandbox_type"`
	PoolSize           int      `mapstructure:"pool_size"`
	AutoCleanup        bool     `mapstructure:"auto_cleanup"`

	ContainerPrefixKey  string              `mapstructure:"container_prefix_key"`
	ContainerDeployment ContainerDeployment `mapstructure:"container_deployment"`

	DefaultMountDir string            `mapstructure:"default_mount_dir"`
	ReadonlyMounts  map[string]string `mapstructure:"readonly_mounts"`
	StorageFolder   string            `mapstructure:"storage_folder"`

	PortRangeLo int `mapstructure:"port_range_lo"`
	PortRangeHi int `mapstructure:"port_range_hi"`

	RedisEnabled  bool   `mapstructure:"redis_enabled"`
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`

	FileSystem   FileSystem `mapstructure:"file_system"`
	OSSEndpoint  string     `mapstructure:"oss_endpoint"`
	OSSBucket    string     `mapstructure:"oss_bucket"`
	OSSAccessKey string     `mapstructure:"oss_access_key"`
	OSSSecretKey string     `mapstructure:"oss_secret_key"`

	K8sNamespace   string `mapstructure:"k8s_namespace"`
	KubeconfigPath string `mapstructure:"kubeconfig_path"`

	AgentRunEndpoint   string `mapstructure:"agentrun_endpoint"`
	AgentRunAPIKey     string `mapstructure:"agentrun_api_key"`
	FCEndpoint         string `mapstructure:"fc_endpoint"`
	FCAPIKey           string `mapstructure:"fc_api_key"`

	TemporalHostPort  string `mapstructure:"temporal_host_port"`
	TemporalNamespace string `mapstructure:"temporal_namespace"`
	TemporalTaskQueue string `mapstructure:"temporal_task_queue"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("workers", 1)
	v.SetDefault("debug", false)
	v.SetDefault("default_sandbox_type", []string{"base"})
	v.SetDefault("pool_size", 1)
	v.SetDefault("auto_cleanup", true)
	v.SetDefault("container_prefix_key", "sandboxrt")
	v.SetDefault("container_deployment", string(DeploymentDocker))
	v.SetDefault("default_mount_dir", "/tmp/sandboxrt/mounts")
	v.SetDefault("storage_folder", "/tmp/sandboxrt/state")
	v.SetDefault("port_range_lo", 49152)
	v.SetDefault("port_range_hi", 65535)
	v.SetDefault("redis_enabled", false)
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("file_system", string(FileSystemLocal))
	v.SetDefault("k8s_namespace", "sandboxrt")
	v.SetDefault("temporal_task_queue", "sandboxrt-pool")
}

// Load binds SANDBOX_-prefixed environment variables into a Config,
// validates it, and returns the result. Unlike the original's
// validate_workers field validator, this is a standalone post-bind check so
// the failure path is explicit rather than implicit in model construction.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("sandbox")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	defaults(v)

	cfg := &Config{}
	for _, key := range []string{
		"host", "port", "workers", "debug", "bearer_token", "default_sandbox_type",
		"pool_size", "auto_cleanup", "container_prefix_key", "container_deployment",
		"default_mount_dir", "storage_folder", "port_range_lo", "port_range_hi",
		"redis_enabled", "redis_host", "redis_port", "redis_db", "redis_password",
		"file_system", "oss_endpoint", "oss_bucket", "oss_access_key", "oss_secret_key",
		"k8s_namespace", "kubeconfig_path", "agentrun_endpoint", "agentrun_api_key",
		"fc_endpoint", "fc_api_key", "temporal_host_port", "temporal_namespace",
		"temporal_task_queue",
	} {
		_ = v.BindEnv(key)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate mirrors the original's validate_workers: WORKERS>1 is silently
// forced to 1 there; here it is a hard configuration error instead, since
// SPEC_FULL.md requires the facade to "refuse" rather than silently
// downgrade (§4.3, §4.6).
func validate(cfg *Config) error {
	if cfg.Workers > 1 && !cfg.RedisEnabled {
		return fmt.Errorf("config: WORKERS>1 requires redis_enabled (shared port/collections store)")
	}
	if cfg.PortRangeLo >= cfg.PortRangeHi {
		return fmt.Errorf("config: port_range_lo must be < port_range_hi")
	}
	switch cfg.ContainerDeployment {
	case DeploymentDocker, DeploymentK8s, DeploymentAgentRun, DeploymentFC:
	default:
		return fmt.Errorf("config: unknown container_deployment %q", cfg.ContainerDeployment)
	}
	switch cfg.FileSystem {
	case FileSystemLocal, FileSystemOSS:
	default:
		return fmt.Errorf("config: unknown file_system %q", cfg.FileSystem)
	}
	if cfg.FileSystem == FileSystemOSS && (cfg.OSSEndpoint == "" || cfg.OSSBucket == "") {
		return fmt.Errorf("config: file_system=oss requires oss_endpoint and oss_bucket")
	}
	return nil
}
