package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chemsource.yaml")
	writeFile(t, path, "model:\n  name: first\n")

	w, err := NewWatcher(path, nil, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// Unrelated files in the same directory are ignored
	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	if err := os.WriteFile(path, []byte("model:\n  name: second\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case r := <-w.Reloads():
		if r.Err != nil {
			t.Fatalf("reload error: %v", r.Err)
		}
		if r.Config.Model.Name != "second" {
			t.Errorf("expected reloaded model second, got %s", r.Config.Model.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_InvalidConfigReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chemsource.yaml")
	writeFile(t, path, "model:\n  name: first\n")

	w, err := NewWatcher(path, nil, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("prompt:\n  max_length: -1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case r := <-w.Reloads():
		if r.Err == nil {
			t.Error("expected validation error on reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
