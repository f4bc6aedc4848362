package redis

import (
	"context"
	"strings"
	"testing"
	"time"
)

// --- Test: NewAnchorCache ---

func TestNewAnchorCache_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		TTL:       1 * time.Hour,
		KeyPrefix: "test",
	}

	cache, err := NewAnchorCache(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.ttl != cfg.TTL {
		t.Errorf("expected TTL=%v, got %v", cfg.TTL, cache.ttl)
	}
	if cache.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, cache.keyPrefix)
	}
	if cache.client == nil {
		t.Fatal("expected client, got nil")
	}
	if cache.logger == nil {
		t.Fatal("expected logger, got nil")
	}
}

func TestNewAnchorCache_EmptyAddrReturnsError(t *testing.T) {
	_, err := NewAnchorCache(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for empty addr, got nil")
	}
	if !strings.Contains(err.Error(), "redis address is required") {
		t.Errorf("expected 'redis address is required' error, got %v", err)
	}
}

func TestNewAnchorCache_DefaultPrefix(t *testing.T) {
	cache, err := NewAnchorCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.keyPrefix != "vbk" {
		t.Errorf("expected default prefix vbk, got %s", cache.keyPrefix)
	}
}

// --- Test: ConfigDefaults ---

func TestConfigDefaults_ReturnsDefaults(t *testing.T) {
	defaults := ConfigDefaults()

	if defaults.Addr != "localhost:6379" {
		t.Errorf("expected Addr=localhost:6379, got %s", defaults.Addr)
	}
	if defaults.TTL != 24*time.Hour {
		t.Errorf("expected TTL=24h, got %v", defaults.TTL)
	}
	if defaults.KeyPrefix != "vbk" {
		t.Errorf("expected KeyPrefix=vbk, got %s", defaults.KeyPrefix)
	}
}

// --- Test: key ---

func TestKey_Format(t *testing.T) {
	cache := &AnchorCache{keyPrefix: "prod"}
	if got := cache.key("00AB"); got != "prod:anchor:00AB" {
		t.Errorf("unexpected key %s", got)
	}
}

func TestSetAnchor_NilAnchor(t *testing.T) {
	cache, err := NewAnchorCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if err := cache.SetAnchor(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil anchor")
	}
}
