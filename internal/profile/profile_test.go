package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTuningDefaults checks the defaults applied when no tuning variables are set.
func TestTuningDefaults(t *testing.T) {
	clearTuningEnvVars(t)

	profile := &Profile{}
	require.NoError(t, profile.FromEnv())

	assert.Equal(t, 15*time.Second, profile.HTTPTimeout)
	assert.Equal(t, 5.0, profile.FetchRate)
	assert.Equal(t, 10, profile.FetchBurst)
	assert.Equal(t, int64(4), profile.MaxConcurrentFetches)
	assert.Equal(t, 10, profile.EmbeddedRounds)
	assert.Empty(t, profile.OTelEndpoint)
}

// TestTuningFromEnv checks each tuning variable is picked up.
func TestTuningFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		check    func(t *testing.T, p *Profile)
	}{
		{
			name:     "FAIRWAY_HTTP_TIMEOUT",
			envVar:   "FAIRWAY_HTTP_TIMEOUT",
			envValue: "3s",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 3*time.Second, p.HTTPTimeout) },
		},
		{
			name:     "FAIRWAY_FETCH_RATE",
			envVar:   "FAIRWAY_FETCH_RATE",
			envValue: "0.5",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 0.5, p.FetchRate) },
		},
		{
			name:     "FAIRWAY_MAX_CONCURRENT_FETCHES",
			envVar:   "FAIRWAY_MAX_CONCURRENT_FETCHES",
			envValue: "1",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, int64(1), p.MaxConcurrentFetches) },
		},
		{
			name:     "FAIRWAY_EMBEDDED_ROUNDS",
			envVar:   "FAIRWAY_EMBEDDED_ROUNDS",
			envValue: "5",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 5, p.EmbeddedRounds) },
		},
		{
			name:     "FAIRWAY_OTEL_ENDPOINT",
			envVar:   "FAIRWAY_OTEL_ENDPOINT",
			envValue: "http://localhost:4318",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, "http://localhost:4318", p.OTelEndpoint) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTuningEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			require.NoError(t, profile.FromEnv())
			tt.check(t, profile)
		})
	}
}

func TestFromEnvError(t *testing.T) {
	clearTuningEnvVars(t)
	t.Setenv("FAIRWAY_FETCH_BURST", "lots")

	profile := &Profile{}
	err := profile.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	t.Run("defaults sqlite DSN into the data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir}
		require.NoError(t, p.Validate())

		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(dir, "fairway_dev.db"), p.DSN)
		assert.DirExists(t, p.CacheDir())
	})

	t.Run("unknown mode falls back to demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("bolt DSN", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "prod", Data: dir, Driver: "bolt"}
		require.NoError(t, p.Validate())
		assert.Equal(t, filepath.Join(dir, "fairway_prod.bolt"), p.DSN)
	})

	t.Run("postgres requires DSN", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "missing")}
		assert.Error(t, p.Validate())
	})

	t.Run("invalid timezone", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Timezone: "Mars/Olympus"}
		assert.Error(t, p.Validate())
	})
}

// Helper functions

func clearTuningEnvVars(t *testing.T) {
	t.Helper()
	for _, envVar := range []string{
		"FAIRWAY_HTTP_TIMEOUT",
		"FAIRWAY_FETCH_RATE",
		"FAIRWAY_FETCH_BURST",
		"FAIRWAY_MAX_CONCURRENT_FETCHES",
		"FAIRWAY_EMBEDDED_ROUNDS",
		"FAIRWAY_OTEL_ENDPOINT",
	} {
		// t.Setenv restores the original value after the test.
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
}
