package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/v2"
)

// SourceType selects where configuration is loaded from.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Type selects the source backend. Defaults to SourceFile.
	Type SourceType

	// Path is the file path or the key/node within the remote store.
	Path string

	// Endpoints addresses the remote store. Defaults to the backend's
	// conventional localhost port when empty.
	Endpoints []string

	// Watch reloads the configuration when the source changes.
	Watch bool

	// OnChange receives the freshly validated config after each reload.
	OnChange func(*Config) error
}

// Loader reads, expands, and validates configuration from one source.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	provider koanf.Provider

	mu       sync.RWMutex
	onChange func(*Config) error

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLoader validates the options and prepares a Loader. Load must be
// called before the configuration is available.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = SourceFile
	}
	if opts.Path == "" {
		return nil, errors.New("config path is required")
	}

	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		onChange: opts.OnChange,
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the source, expands environment references, validates the
// result, and returns the finalized config. With Watch enabled it also
// starts a goroutine that repeats the pipeline on every source change.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.buildProvider()
	if err != nil {
		return nil, err
	}
	l.provider = provider

	cfg, err := l.reload()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) buildProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case SourceFile:
		return newFileProvider(l.options.Path)

	case SourceConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{
			Cfg: consulConfig,
			Key: l.options.Path,
		}), nil

	case SourceEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	case SourceZookeeper:
		return newZkProvider(l.options.Endpoints, l.options.Path)

	default:
		return nil, fmt.Errorf("unsupported config source: %s", l.options.Type)
	}
}

// sourceParser returns the parser for raw-bytes sources. Consul and etcd
// providers return pre-parsed maps, so they take no parser.
func (l *Loader) sourceParser() koanf.Parser {
	if l.options.Type == SourceFile || l.options.Type == SourceZookeeper {
		return l.parser
	}
	return nil
}

// reload runs the full pipeline against a fresh koanf tree. Reusing the
// old tree would merge, so keys removed from the source would linger.
func (l *Loader) reload() (*Config, error) {
	l.koanf = koanf.New(".")

	if err := l.koanf.Load(l.provider, l.sourceParser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", l.options.Type, err)
	}

	if err := l.expandEnv(); err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	return l.unmarshalAndFinalize()
}

// Watcher is implemented by providers that can signal source changes.
type Watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(Watcher)
	if !ok {
		slog.Warn("config source does not support watching", "source", l.options.Type)
		return
	}

	slog.Info("config watcher started", "source", l.options.Type, "path", l.options.Path)

	err := watcher.Watch(func(_ interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}

		if err != nil {
			slog.Warn("config watch error", "source", l.options.Type, "error", err)
			return
		}

		newCfg, err := l.reload()
		if err != nil {
			slog.Warn("config reload failed, keeping previous config", "source", l.options.Type, "error", err)
			return
		}

		l.mu.RLock()
		cb := l.onChange
		l.mu.RUnlock()

		if cb == nil {
			slog.Debug("config change detected with no callback registered", "source", l.options.Type)
			return
		}
		if err := cb(newCfg); err != nil {
			slog.Warn("config change callback failed", "error", err)
			return
		}
		slog.Info("configuration reloaded", "source", l.options.Type, "path", l.options.Path)
	})
	if err != nil {
		slog.Warn("config watcher exited", "source", l.options.Type, "error", err)
	}
}

func (l *Loader) unmarshalAndFinalize() (*Config, error) {
	structural, err := ValidateStructure(l.koanf)
	if err != nil {
		return nil, fmt.Errorf("structural validation: %w", err)
	}
	if !structural.Valid() {
		return nil, errors.New(structural.Format())
	}

	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "yaml",
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyEnvKeys(cfg)

	return Finalize(cfg)
}

// expandEnv rewrites ${VAR} references anywhere in the loaded tree by
// round-tripping the raw map through a confmap provider.
func (l *Loader) expandEnv() error {
	expanded, ok := ExpandEnvInData(l.koanf.Raw()).(map[string]interface{})
	if !ok {
		return errors.New("unexpected type after env expansion")
	}

	fresh := koanf.New(".")
	if err := fresh.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return fmt.Errorf("reload expanded config: %w", err)
	}
	l.koanf = fresh

	return nil
}

// Stop ends watching and releases the provider's resources. Safe to call
// more than once.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if c, ok := l.provider.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	})
}

// SetOnChange registers the reload callback. Callers that need the first
// Load result to build the callback can register it afterwards.
func (l *Loader) SetOnChange(cb func(*Config) error) {
	l.mu.Lock()
	l.onChange = cb
	l.mu.Unlock()
}

// LoadConfig is shorthand for loading once without keeping the loader.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	cfg, loader, err := LoadConfigWithLoader(opts)
	if err != nil {
		return nil, err
	}
	if !opts.Watch {
		loader.Stop()
	}
	return cfg, nil
}

// LoadConfigWithLoader loads once and returns the loader so the caller
// can stop watching or swap the change callback later.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loader.Load()
	if err != nil {
		loader.Stop()
		return nil, nil, err
	}

	return cfg, loader, nil
}

// ParseSourceType parses a CLI flag or env value into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	case "zookeeper", "zk":
		return SourceZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config source %q (valid: file, consul, etcd, zookeeper)", s)
	}
}
