package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Profile is the configuration to start fairway.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the optional HTTP surface
	Addr string
	// Port is the binding port for the optional HTTP surface
	Port int
	// Data is the data directory holding the cache slots and the freshness store
	Data string
	// DSN points to where fairway stores freshness records
	DSN string
	// Driver is the freshness store driver (sqlite, postgres or bolt)
	Driver string
	// Version is the current version of fairway
	Version string
	// RemoteBaseURL is the origin serving players.json, courses.json and rounds/<slug>.json
	RemoteBaseURL string
	// Timezone is the IANA zone used for calendar-day freshness markers. Empty means the host zone.
	Timezone string

	Tuning
}

// Tuning holds knobs that are only read from the environment.
type Tuning struct {
	HTTPTimeout          time.Duration `env:"FAIRWAY_HTTP_TIMEOUT" envDefault:"15s"`
	FetchRate            float64       `env:"FAIRWAY_FETCH_RATE" envDefault:"5"`
	FetchBurst           int           `env:"FAIRWAY_FETCH_BURST" envDefault:"10"`
	MaxConcurrentFetches int64         `env:"FAIRWAY_MAX_CONCURRENT_FETCHES" envDefault:"4"`
	EmbeddedRounds       int           `env:"FAIRWAY_EMBEDDED_ROUNDS" envDefault:"10"`
	OTelEndpoint         string        `env:"FAIRWAY_OTEL_ENDPOINT"`
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// CacheDir is the directory holding the cache slots.
func (p *Profile) CacheDir() string {
	return filepath.Join(p.Data, "cache")
}

// FromEnv loads the tuning knobs from environment variables.
func (p *Profile) FromEnv() error {
	if err := env.Parse(&p.Tuning); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" && runtime.GOOS != "windows" {
			p.Data = "/var/opt/fairway"
		} else {
			dir, err := os.UserCacheDir()
			if err != nil {
				return errors.Wrap(err, "failed to resolve user cache dir")
			}
			p.Data = filepath.Join(dir, "fairway")
		}
		if err := os.MkdirAll(p.Data, 0o770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if err := os.MkdirAll(p.CacheDir(), 0o750); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %s", p.CacheDir())
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("fairway_%s.db", p.Mode))
		}
	case "bolt":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("fairway_%s.bolt", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown driver %q: only 'sqlite', 'postgres' and 'bolt' are supported", p.Driver)
	}

	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return errors.Wrapf(err, "invalid timezone %q", p.Timezone)
		}
	}
	if p.EmbeddedRounds < 0 {
		p.EmbeddedRounds = 0
	}

	return nil
}
