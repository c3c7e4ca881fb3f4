package cache

import (
	"testing"
	"time"
)

func TestBadgerRoundTrip(t *testing.T) {
	c, err := OpenInMemory(time.Hour)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set("nominatim/1.00000/2.00000", []byte("Bavaria"))
	v, ok := c.Get("nominatim/1.00000/2.00000")
	if !ok || string(v) != "Bavaria" {
		t.Fatalf("expected cached value, got %q, %v", v, ok)
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Set("k", []byte("v"))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err = Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("expected value after reopen, got %q, %v", v, ok)
	}
}

func TestOpenWithoutDirIsNop(t *testing.T) {
	c, err := Open("", time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Set("k", []byte("v"))
	if _, ok := c.Get("k"); ok {
		t.Fatal("nop cache must not store values")
	}
}
