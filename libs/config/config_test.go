package config

import (
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8090"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("PORT", "")
	p, err := Port("PORT", "8090")
	if err != nil || p != "8090" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("RATE", "abc")
	if got := Int("RATE", 60); got != 60 {
		t.Fatalf("expected fallback 60, got %d", got)
	}
	t.Setenv("SWEEP", "15m")
	if got := Duration("SWEEP", time.Minute); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
	t.Setenv("ENABLED", "yes")
	if !Bool("ENABLED", false) {
		t.Fatal("expected true")
	}
	t.Setenv("ORIGINS", " http://a , ,http://b")
	if got := List("ORIGINS"); len(got) != 2 || got[1] != "http://b" {
		t.Fatalf("unexpected list %v", got)
	}
}
