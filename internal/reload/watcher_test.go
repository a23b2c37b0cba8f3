package reload

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	paths := []string{"", "/tmp/a", "/tmp/b", "/tmp/a", "/tmp/c", "/tmp/b"}
	got := uniquePaths(paths)
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniquePaths() = %v, want %v", got, want)
	}
}

func TestWatcherTracksExistingFiles(t *testing.T) {
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles.yaml")
	writeFile(t, profiles, "profiles: {}")

	w := NewWatcher(profiles)

	if changed := w.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes right after construction, got %v", changed)
	}
}

func TestWatcherSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")

	w := NewWatcher(missing)
	if changed := w.Check(); changed != nil {
		t.Fatalf("expected nil, got %v", changed)
	}
}

func TestWatcherCheckDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.yaml")
	fileB := filepath.Join(dir, "b.yaml")
	writeFile(t, fileA, "first")
	writeFile(t, fileB, "second")

	w := NewWatcher(fileA, fileB)

	if changed := w.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}

	time.Sleep(10 * time.Millisecond)
	writeFile(t, fileA, "first-UPDATED")
	if err := os.Remove(fileB); err != nil {
		t.Fatalf("Remove(%s) error = %v", fileB, err)
	}

	changed := w.Check()
	expected := []string{fileA, fileB}
	if !reflect.DeepEqual(changed, expected) {
		t.Fatalf("Check() = %v, want %v", changed, expected)
	}

	// fileB stays missing, so a further Check keeps reporting it; fileA
	// was resnapshotted by the previous Check, so it no longer changes.
	changed = w.Check()
	if !reflect.DeepEqual(changed, []string{fileB}) {
		t.Fatalf("Check() = %v, want [%s]", changed, fileB)
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var w *Watcher
	w.Reset("/tmp/whatever")
	if changed := w.Check(); changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
