package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	return &Configuration{
		NodeID:                  1,
		DataDir:                 "./test-data",
		MaxPreparedTransactions: 16,
		GIDMaxBytes:             GIDMaxBytes,
		WALSegmentCeilingBytes:  4096,
		AdminHTTP: AdminHTTPConfiguration{
			Enabled: true,
			Port:    8088,
		},
		Prometheus: PrometheusConfiguration{
			Enabled: true,
			Port:    9090,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	require.NoError(t, Validate())
}

func TestValidate_MaxPreparedTransactions(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, n := range []int{0, -1} {
		t.Run("", func(t *testing.T) {
			Config = validConfig()
			Config.MaxPreparedTransactions = n
			require.Error(t, Validate())
		})
	}
}

func TestValidate_GIDMaxBytes(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []int{0, -1, GIDMaxBytes + 1}
	for _, n := range tests {
		t.Run("", func(t *testing.T) {
			Config = validConfig()
			Config.GIDMaxBytes = n
			require.Error(t, Validate())
		})
	}
}

func TestValidate_WALSegmentCeiling(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.WALSegmentCeilingBytes = 0
	require.Error(t, Validate())
}

func TestValidate_InvalidAdminHTTPPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []int{-1, 0, 70000}
	for _, port := range tests {
		t.Run("", func(t *testing.T) {
			Config = validConfig()
			Config.AdminHTTP.Port = port
			require.Error(t, Validate())
		})
	}
}

func TestValidate_DisabledAdminHTTPSkipsPortCheck(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.AdminHTTP.Enabled = false
	Config.AdminHTTP.Port = -1
	require.NoError(t, Validate())
}

func TestValidate_InvalidPrometheusPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Prometheus.Port = 0
	require.Error(t, Validate())
}
