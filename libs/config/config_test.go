package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q (%v)", p, err)
	}
}

func TestIntAndSeconds(t *testing.T) {
	t.Setenv("TEST_INT", "-3")
	if got := Int("TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback for negative value, got %d", got)
	}
	t.Setenv("TEST_INT", "12")
	if got := Seconds("TEST_INT", time.Minute); got != 12*time.Second {
		t.Fatalf("expected 12s, got %s", got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_BOOL", "off")
	if Bool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if !Bool("TEST_BOOL", true) {
		t.Fatal("expected fallback true for unrecognized value")
	}

	t.Setenv("TEST_LIST", " a, ,b ,")
	got := List("TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %#v", got)
	}
}
