package config

import (
	"os"
	"testing"
)

func unsetBillsyncEnv() {
	_ = os.Unsetenv("BILLSYNC_HTTP_PORT")
	_ = os.Unsetenv("BILLSYNC_REDIS_ADDRS")
	_ = os.Unsetenv("BILLSYNC_POSTGRES_DSN")
	_ = os.Unsetenv("BILLSYNC_MEMORY_BACKEND")
	_ = os.Unsetenv("BILLSYNC_POLL_INTERVAL_SECONDS")
}

func TestConfigLoad_Defaults(t *testing.T) {
	unsetBillsyncEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.HTTPPort != 8080 || cfg.PollIntervalSeconds != 30 || cfg.OwnerPollIntervalSeconds != 300 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.MemoryBackend {
		t.Fatalf("no external backend configured, expected memory fallback")
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	unsetBillsyncEnv()
	_ = os.Setenv("BILLSYNC_HTTP_PORT", "9191")
	_ = os.Setenv("BILLSYNC_POLL_INTERVAL_SECONDS", "5")
	defer unsetBillsyncEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.HTTPPort != 9191 {
		t.Fatalf("port env override failed, got %d", cfg.HTTPPort)
	}
	if cfg.PollIntervalSeconds != 5 {
		t.Fatalf("poll interval env override failed, got %d", cfg.PollIntervalSeconds)
	}
}

func TestResolveDefaults_RedisDisablesMemoryFallback(t *testing.T) {
	unsetBillsyncEnv()
	_ = os.Setenv("BILLSYNC_REDIS_ADDRS", "redis-a:6379,redis-b:6379")
	defer unsetBillsyncEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if len(cfg.RedisAddrs) != 2 {
		t.Fatalf("expected 2 redis backends, got %v", cfg.RedisAddrs)
	}
	if cfg.MemoryBackend {
		t.Fatalf("memory fallback should stay off when redis is configured")
	}
}

func TestResolveDefaults_RejectsBadPort(t *testing.T) {
	cfg := NewForTesting()
	cfg.HTTPPort = 0
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatalf("expected error for port 0")
	}
}
