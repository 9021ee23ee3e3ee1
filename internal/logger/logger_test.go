package logger

import "testing"

func TestNew(t *testing.T) {
	l, err := New("production", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}
	if _, err := New("development", "DEBUG"); err != nil {
		t.Errorf("New(development, DEBUG): %v", err)
	}
	if _, err := New("development", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
