// Package profile implements a named, on-disk store of
// transport.Config values. It is an optional collaborator for the CLI
// and the gRPC server: it only resolves a name to a configuration, it
// never calls into the manager itself.
package profile

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rechermann/puttygo/internal/reload"
	"github.com/rechermann/puttygo/transport"
)

// Telemetry receives profile store reload outcomes. The default Store
// discards them; telemetry.Collector satisfies this interface.
type Telemetry interface {
	IncProfileReload(outcome string)
}

type noopTelemetry struct{}

func (noopTelemetry) IncProfileReload(string) {}

// Store is a keyed store of named transport.Config values, persisted
// as a YAML file. It is safe for concurrent use: a reload triggered by
// Watch swaps in a whole new map atomically, so concurrent Get/List
// calls never observe a partially-loaded store.
type Store struct {
	path      string
	logger    zerolog.Logger
	telemetry Telemetry

	mu       sync.RWMutex
	profiles map[string]transport.Config
}

type document struct {
	Profiles map[string]profileEntry `yaml:"profiles"`
}

// profileEntry is the on-disk shape of one profile: exactly one of
// Serial or SSH is set, selected by Kind.
type profileEntry struct {
	Kind   transport.Kind        `yaml:"kind"`
	Serial transport.SerialConfig `yaml:"serial,omitempty"`
	SSH    transport.SSHConfig    `yaml:"ssh,omitempty"`
}

func (e profileEntry) toConfig() transport.Config {
	return transport.Config{Kind: e.Kind, Serial: e.Serial, SSH: e.SSH}
}

func fromConfig(cfg transport.Config) profileEntry {
	return profileEntry{Kind: cfg.Kind, Serial: cfg.Serial, SSH: cfg.SSH}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger attaches a logger used for reload events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTelemetry attaches a Telemetry sink for reload outcomes.
func WithTelemetry(t Telemetry) Option {
	return func(s *Store) { s.telemetry = t }
}

// Load reads path and constructs a Store from it. A missing file is
// not an error: it is treated as an empty store, so a fresh deployment
// can start without a pre-existing profiles.yaml.
func Load(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: zerolog.Nop(), telemetry: noopTelemetry{}, profiles: map[string]transport.Config{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.profiles = map[string]transport.Config{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("profile: read %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("profile: parse %s: %w", s.path, err)
	}

	next := make(map[string]transport.Config, len(doc.Profiles))
	for name, entry := range doc.Profiles {
		cfg := entry.toConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("profile: %q: %w", name, err)
		}
		next[name] = cfg
	}

	s.mu.Lock()
	s.profiles = next
	s.mu.Unlock()
	return nil
}

// Get resolves name to a transport.Config. ok is false when no profile
// by that name exists.
func (s *Store) Get(name string) (transport.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.profiles[name]
	return cfg, ok
}

// List returns every known profile name, in no particular order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	return names
}

// Put adds or replaces the profile named name and persists the store
// to disk.
func (s *Store) Put(name string, cfg transport.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("profile: %q: %w", name, err)
	}
	s.mu.Lock()
	s.profiles[name] = cfg
	s.mu.Unlock()
	return s.persist()
}

// Delete removes the profile named name and persists the store to
// disk. Deleting an unknown name is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	delete(s.profiles, name)
	s.mu.Unlock()
	return s.persist()
}

func (s *Store) persist() error {
	s.mu.RLock()
	doc := document{Profiles: make(map[string]profileEntry, len(s.profiles))}
	for name, cfg := range s.profiles {
		doc.Profiles[name] = fromConfig(cfg)
	}
	s.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("profile: marshal %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("profile: write %s: %w", s.path, err)
	}
	return nil
}

// Watch polls the backing file for changes every interval and, on
// change, reloads the store and invokes onChange with any reload
// error. It blocks until stop is closed.
func (s *Store) Watch(stop <-chan struct{}, interval time.Duration, onChange func(err error)) {
	watcher := reload.NewWatcher(s.path)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if changed := watcher.Check(); len(changed) == 0 {
				continue
			}
			err := s.reload()
			watcher.Reset(s.path)
			if err != nil {
				s.telemetry.IncProfileReload("error")
				s.logger.Warn().Err(err).Str("path", s.path).Msg("profile: reload failed")
			} else {
				s.telemetry.IncProfileReload("ok")
				s.logger.Info().Str("path", s.path).Msg("profile: reloaded")
			}
			if onChange != nil {
				onChange(err)
			}
		}
	}
}
