package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Workers:             1,
		PortRangeLo:         49152,
		PortRangeHi:         65535,
		ContainerDeployment: DeploymentDocker,
		FileSystem:          FileSystemLocal,
	}
}

func TestValidateRejectsMultiWorkerWithoutRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Workers = 2
	cfg.RedisEnabled = false
	require.Error(t, validate(cfg))
}

func TestValidateAcceptsMultiWorkerWithRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Workers = 2
	cfg.RedisEnabled = true
	require.NoError(t, validate(cfg))
}

func TestValidateRejectsInvertedPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.PortRangeLo = 70000
	cfg.PortRangeHi = 60000
	require.Error(t, validate(cfg))
}

func TestValidateRejectsUnknownDeployment(t *testing.T) {
	cfg := validConfig()
	cfg.ContainerDeployment = "made-up"
	require.Error(t, validate(cfg))
}

func TestValidateRejectsIncompleteOSSConfig(t *testing.T) {
	cfg := validConfig()
	cfg.FileSystem = FileSystemOSS
	require.Error(t, validate(cfg))

	cfg.OSSEndpoint = "https://minio.local"
	cfg.OSSBucket = "sandboxrt"
	require.NoError(t, validate(cfg))
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DeploymentDocker, cfg.ContainerDeployment)
	require.Equal(t, FileSystemLocal, cfg.FileSystem)
	require.Equal(t, 1, cfg.PoolSize)
	require.Equal(t, []string{"base"}, cfg.DefaultSandboxType)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("SANDBOX_CONTAINER_DEPLOYMENT", "k8s")
	t.Setenv("SANDBOX_K8S_NAMESPACE", "custom-ns")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DeploymentK8s, cfg.ContainerDeployment)
	require.Equal(t, "custom-ns", cfg.K8sNamespace)
}
