// Package registry resolves server names to launch configuration for the
// connection manager. The canonical source is a YAML settings file; hooks
// registered in code run once per connection after the handshake.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/noy2024/fast-agent/pkg/connmgr"
)

// AuthSettings is the auth block of a server entry. Values may reference
// process environment variables as ${VAR}.
type AuthSettings struct {
	APIKey  string            `yaml:"api_key"`
	Headers map[string]string `yaml:"headers"`
}

// ServerSettings describes one server entry in the settings file.
type ServerSettings struct {
	// Transport is one of "stdio", "http", or "sse". Empty defaults to
	// stdio when a command is present.
	Transport string `yaml:"transport"`

	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	ReadTimeoutSeconds int           `yaml:"read_timeout_seconds"`
	Auth               *AuthSettings `yaml:"auth"`
}

// Settings is the root of the settings file.
type Settings struct {
	Servers map[string]ServerSettings `yaml:"mcp_servers"`
}

// ServerRegistry resolves server names for the connection manager. It is
// safe for concurrent use; Reload and Watch swap the config snapshot
// atomically under the lock.
type ServerRegistry struct {
	logger *slog.Logger
	path   string

	mu      sync.RWMutex
	configs map[string]connmgr.ServerConfig
	hooks   map[string]connmgr.InitHook
}

// Load reads the settings file at path and builds a registry from it.
func Load(path string, logger *slog.Logger) (*ServerRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ServerRegistry{
		logger:  logger,
		path:    path,
		configs: make(map[string]connmgr.ServerConfig),
		hooks:   make(map[string]connmgr.InitHook),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// New builds an in-memory registry from pre-built configs, useful for
// embedding applications that do not use a settings file.
func New(configs map[string]connmgr.ServerConfig) *ServerRegistry {
	r := &ServerRegistry{
		logger:  slog.Default(),
		configs: make(map[string]connmgr.ServerConfig, len(configs)),
		hooks:   make(map[string]connmgr.InitHook),
	}
	for name, cfg := range configs {
		r.configs[name] = cfg
	}
	return r
}

// Reload re-reads the settings file and swaps in the new snapshot. On
// error the previous snapshot is kept.
func (r *ServerRegistry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("registry: no settings file configured")
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry: read settings: %w", err)
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("registry: parse settings: %w", err)
	}
	configs := make(map[string]connmgr.ServerConfig, len(settings.Servers))
	for name, sc := range settings.Servers {
		cfg, err := sc.toConfig()
		if err != nil {
			return fmt.Errorf("registry: server %q: %w", name, err)
		}
		configs[name] = cfg
	}
	r.mu.Lock()
	r.configs = configs
	r.mu.Unlock()
	return nil
}

// Lookup returns the configuration for name, if present.
func (r *ServerRegistry) Lookup(name string) (connmgr.ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Names returns all configured server names, unsorted.
func (r *ServerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// RegisterInitHook attaches a hook that runs once per connection to name,
// after the handshake and before the connection is marked ready.
func (r *ServerRegistry) RegisterInitHook(name string, hook connmgr.InitHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hook == nil {
		delete(r.hooks, name)
		return
	}
	r.hooks[name] = hook
}

// InitHookFor returns the registered hook for name, if any.
func (r *ServerRegistry) InitHookFor(name string) (connmgr.InitHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[name]
	return hook, ok
}

// Watch blocks, reloading the settings file whenever it changes on disk,
// until ctx is cancelled. The parent directory is watched so that
// rename-into-place saves are seen. Reload failures keep the last good
// snapshot and are logged.
func (r *ServerRegistry) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("registry: no settings file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: start watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("registry: watch %s: %w", filepath.Dir(r.path), err)
	}
	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("settings reload failed, keeping previous snapshot", "path", r.path, "error", err)
				continue
			}
			r.logger.Info("settings reloaded", "path", r.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func (s ServerSettings) toConfig() (connmgr.ServerConfig, error) {
	base := connmgr.BaseServerConfig{
		ReadTimeout: time.Duration(s.ReadTimeoutSeconds) * time.Second,
		Auth:        s.Auth.toConfig(),
	}
	transport := s.Transport
	if transport == "" && s.Command != "" {
		transport = "stdio"
	}
	switch transport {
	case "stdio":
		if s.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return &connmgr.StdioServerConfig{
			BaseServerConfig: base,
			Command:          s.Command,
			Args:             append([]string(nil), s.Args...),
			Env:              expandValues(s.Env),
		}, nil
	case "http", "sse":
		if s.URL == "" {
			return nil, fmt.Errorf("%s transport requires a url", transport)
		}
		cfg := &connmgr.HTTPServerConfig{
			BaseServerConfig: base,
			Endpoint:         s.URL,
			Headers:          headerFromMap(expandValues(s.Headers)),
		}
		if transport == "sse" {
			sse := true
			cfg.PreferSSE = &sse
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %q", connmgr.ErrUnsupportedTransport, s.Transport)
	}
}

func (a *AuthSettings) toConfig() *connmgr.AuthConfig {
	if a == nil {
		return nil
	}
	return &connmgr.AuthConfig{
		APIKey:  os.ExpandEnv(a.APIKey),
		Headers: expandValues(a.Headers),
	}
}

// expandValues expands ${VAR} references in map values from the process
// environment. Keys are left untouched.
func expandValues(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

func headerFromMap(in map[string]string) http.Header {
	if len(in) == 0 {
		return nil
	}
	h := make(http.Header, len(in))
	for k, v := range in {
		h.Set(k, v)
	}
	return h
}
