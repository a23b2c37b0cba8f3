package profile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechermann/puttygo/transport"
)

type countingTelemetry struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingTelemetry) IncProfileReload(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *countingTelemetry) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.outcomes...)
}

func TestLoad_MissingFileIsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestLoad_ParsesExistingProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	yamlDoc := `
profiles:
  bench:
    kind: serial
    serial:
      port: /dev/ttyUSB0
      baud: 115200
  router:
    kind: ssh
    ssh:
      host: 10.0.0.1
      port: 22
      user: admin
      password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	cfg, ok := s.Get("bench")
	require.True(t, ok)
	assert.Equal(t, transport.KindSerial, cfg.Kind)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, uint32(115200), cfg.Serial.Baud)

	cfg, ok = s.Get("router")
	require.True(t, ok)
	assert.Equal(t, transport.KindSSH, cfg.Kind)
	assert.Equal(t, "10.0.0.1", cfg.SSH.Host)

	_, ok = s.Get("nonexistent")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"bench", "router"}, s.List())
}

func TestPutAndDelete_PersistToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")

	s, err := Load(path)
	require.NoError(t, err)

	cfg := transport.Config{Kind: transport.KindSerial, Serial: transport.SerialConfig{Port: "/dev/ttyS0", Baud: 9600}}
	require.NoError(t, s.Put("bench", cfg))

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, ok := reloaded.Get("bench")
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	require.NoError(t, s.Delete("bench"))
	reloaded, err = Load(path)
	require.NoError(t, err)
	_, ok = reloaded.Get("bench")
	assert.False(t, ok)
}

func TestPut_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "profiles.yaml"))
	require.NoError(t, err)

	err = s.Put("bad", transport.Config{Kind: transport.KindSerial})
	assert.Error(t, err)
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	stop := make(chan struct{})
	changed := make(chan error, 1)
	go s.Watch(stop, 10*time.Millisecond, func(err error) { changed <- err })
	defer close(stop)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  bench:
    kind: serial
    serial:
      port: /dev/ttyUSB0
      baud: 9600
`), 0o644))

	select {
	case err := <-changed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never observed the file change")
	}

	_, ok := s.Get("bench")
	assert.True(t, ok)
}

func TestWatch_IncrementsTelemetryOnReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}"), 0o644))

	telemetry := &countingTelemetry{}
	s, err := Load(path, WithTelemetry(telemetry))
	require.NoError(t, err)

	stop := make(chan struct{})
	changed := make(chan error, 1)
	go s.Watch(stop, 10*time.Millisecond, func(err error) { changed <- err })
	defer close(stop)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now().Add(time.Second), time.Now().Add(time.Second)))

	select {
	case err := <-changed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never observed the file change")
	}

	assert.Equal(t, []string{"ok"}, telemetry.snapshot())
}
