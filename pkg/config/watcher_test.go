package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotagate.yaml")
	write := func(level string) {
		t.Helper()
		content := []byte("upstream:\n  base_url: \"https://api.example.com\"\ntelemetry:\n  logging:\n    level: " + level + "\n")
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("info")

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(cfg *Config) { reloaded <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	write("debug")

	select {
	case cfg := <-reloaded:
		if cfg.Telemetry.Logging.Level != "debug" {
			t.Errorf("reloaded level = %q, want debug", cfg.Telemetry.Logging.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatcher_SkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotagate.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  base_url: \"https://api.example.com\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx, func(*Config) { calls.Add(1) }) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("upstream:\n  base_url: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("onReload called %d times for an invalid file", calls.Load())
	}
}

func TestDiff(t *testing.T) {
	old := NewTestConfig().Build()

	same := NewTestConfig().Build()
	if c := Diff(old, same); !c.Empty() {
		t.Errorf("identical configs differ: %+v", c)
	}

	updated := NewTestConfig().WithLoggingLevel("debug").Build()
	c := Diff(old, updated)
	if c.LogLevel != "debug" || len(c.RestartRequired) != 0 {
		t.Errorf("level change = %+v", c)
	}

	updated = NewTestConfig().WithWindows(WindowConfig{Name: "short", Capacity: 5, Period: time.Second}).Build()
	c = Diff(old, updated)
	if len(c.RestartRequired) != 1 || c.RestartRequired[0] != "limits" {
		t.Errorf("window change = %+v", c)
	}

	updated = NewTestConfig().Build()
	updated.Secrets.Dir = "/run/secrets"
	c = Diff(old, updated)
	if len(c.RestartRequired) != 1 || c.RestartRequired[0] != "secrets" {
		t.Errorf("secrets change = %+v", c)
	}
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("callback ran %d times, want 1", calls.Load())
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("callback ran after Stop")
	}
}
