package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periplo-ai/periplo/pkg/model"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "periplo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoaderFile(t *testing.T) {
	path := writeConfigFile(t, `
region: Lisbon
default_days: 2
max_days: 5
per_call_timeout: 2s
hints_timeout: 1s
request_timeout: 45s
ratelimit:
  default_qps: 4
  per_provider:
    weather: 6
model:
  provider: anthropic
server:
  host: 0.0.0.0
  port: 9090
`)

	loader, err := NewLoader(LoaderOptions{Path: path})
	require.NoError(t, err)
	defer loader.Stop()

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", cfg.Region)
	assert.Equal(t, 2, cfg.DefaultDays)
	assert.Equal(t, 5, cfg.MaxDays)
	assert.Equal(t, 2*time.Second, cfg.PerCallTimeout, "duration strings should decode")
	assert.Equal(t, time.Second, cfg.HintsTimeout)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.RateLimit.DefaultQPS)
	assert.Equal(t, 6, cfg.RateLimit.PerProvider["weather"])
	assert.Equal(t, model.ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched fields pick up defaults through Finalize.
	assert.Equal(t, 10, cfg.MaxHistoryTurns)
	require.NotNil(t, cfg.Gazetteer)
}

func TestLoaderExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("PERIPLO_TEST_QPS", "7")

	path := writeConfigFile(t, `
region: ${PERIPLO_TEST_REGION:-Lisbon}
ratelimit:
  default_qps: ${PERIPLO_TEST_QPS}
`)

	cfg, err := LoadConfig(LoaderOptions{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", cfg.Region, "unset placeholder should fall back to its default")
	assert.Equal(t, 7, cfg.RateLimit.DefaultQPS, "substituted number should decode as an int")
}

func TestLoaderRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
region: Lisbon
regionn: Porto
`)

	_, err := LoadConfig(LoaderOptions{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structural errors")
	assert.Contains(t, err.Error(), "regionn")
}

func TestLoaderRejectsTypeErrors(t *testing.T) {
	path := writeConfigFile(t, `
region: Lisbon
max_days: banana
`)

	_, err := LoadConfig(LoaderOptions{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_days")
}

func TestLoaderRejectsInvalidSemantics(t *testing.T) {
	path := writeConfigFile(t, `
region: Lisbon
default_days: 6
max_days: 3
`)

	_, err := LoadConfig(LoaderOptions{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_days")
}

func TestLoaderFileNotFound(t *testing.T) {
	loader, err := NewLoader(LoaderOptions{
		Path: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.NoError(t, err)
	defer loader.Stop()

	_, err = loader.Load()
	require.Error(t, err)
}

func TestNewLoaderRequiresPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{})
	require.Error(t, err)
}

func TestLoaderUnsupportedSource(t *testing.T) {
	loader, err := NewLoader(LoaderOptions{Type: "redis", Path: "whatever"})
	require.NoError(t, err)
	defer loader.Stop()

	_, err = loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config source")
}

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceType
		wantErr bool
	}{
		{"file", SourceFile, false},
		{"", SourceFile, false},
		{"consul", SourceConsul, false},
		{" Etcd ", SourceEtcd, false},
		{"zookeeper", SourceZookeeper, false},
		{"zk", SourceZookeeper, false},
		{"redis", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSourceType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestLoaderWatchReload(t *testing.T) {
	path := writeConfigFile(t, "region: Lisbon\nmax_days: 5\n")

	changed := make(chan *Config, 4)
	loader, err := NewLoader(LoaderOptions{
		Path:  path,
		Watch: true,
		OnChange: func(c *Config) error {
			changed <- c
			return nil
		},
	})
	require.NoError(t, err)
	defer loader.Stop()

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxDays)

	// A broken intermediate write must not reach the callback; the
	// loader keeps the previous config and waits for a good one.
	require.NoError(t, os.WriteFile(path, []byte("max_days: [broken\n"), 0o644))

	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case newCfg := <-changed:
			assert.Equal(t, 6, newCfg.MaxDays)
			return
		case <-ticker.C:
			// Rewrite until the watcher picks one up; the first write can
			// race the directory watch being registered.
			require.NoError(t, os.WriteFile(path, []byte("region: Lisbon\nmax_days: 6\n"), 0o644))
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
