package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// ErrNotLoaded is returned by Get before a successful Load.
var ErrNotLoaded = errors.New("configuration not loaded; call Load() first")

// Provider loads the configuration once per process. Both the orchestrator
// and every worker it spawns go through the same provider, so a worker sees
// the .env files of its own working directory plus whatever the orchestrator
// exported to it.
type Provider struct {
	// Dir is where .env files are looked up. Empty means CONFIG_DIR, then ".".
	Dir string

	mu     sync.RWMutex
	config *Config
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the process-wide provider.
func GetProvider() *Provider {
	once.Do(func() {
		instance = &Provider{}
	})
	return instance
}

// Load reads .env files, parses the environment and validates the result.
// Calling it again after a successful load is a no-op.
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config != nil {
		return nil
	}

	if err := loadEnvFiles(p.dir()); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := parse()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	return nil
}

// Get returns the loaded configuration.
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.config == nil {
		return nil, ErrNotLoaded
	}
	return p.config, nil
}

// MustGet is Get for callers that cannot continue without configuration.
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(err)
	}
	return cfg
}

// IsLoaded reports whether Load has succeeded.
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config != nil
}

// Reset drops the loaded configuration. Tests only.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = nil
}

func (p *Provider) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	if d := os.Getenv("CONFIG_DIR"); d != "" {
		return d
	}
	return "."
}

// loadEnvFiles applies .env, .env.<ENVIRONMENT> and .env.local in that
// order. The base file never overrides the real environment; the later two
// override everything before them.
func loadEnvFiles(dir string) error {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}

	files := []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env." + env, true},
		{".env.local", true},
	}

	for _, f := range files {
		if f.name == ".env." {
			continue
		}
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		load := godotenv.Load
		if f.override {
			load = godotenv.Overload
		}
		if err := load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", f.name, err)
		}
	}
	return nil
}
