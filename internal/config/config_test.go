package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if cfg.GuardBackend != GuardBackendLocal || cfg.GuardWaitTimeout != 3*time.Second {
		t.Fatalf("guard = %s %s", cfg.GuardBackend, cfg.GuardWaitTimeout)
	}
	if cfg.Policy.CancellationMinimumHours != 24 || cfg.Policy.SlotStepMinutes != 15 {
		t.Fatalf("policy = %+v", cfg.Policy)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPOINTLY_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("APPOINTLY_GUARD_BACKEND", "redis")
	t.Setenv("APPOINTLY_REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("APPOINTLY_POLICY_SLOT_STEP_MINUTES", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCHost != "127.0.0.1" || cfg.GRPCPort != 6000 {
		t.Fatalf("grpc = %s:%d", cfg.GRPCHost, cfg.GRPCPort)
	}
	if cfg.GuardBackend != GuardBackendRedis || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis guard = %s %s", cfg.GuardBackend, cfg.RedisAddr)
	}
	if cfg.Policy.SlotStepMinutes != 30 {
		t.Fatalf("slot step = %d", cfg.Policy.SlotStepMinutes)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"APPOINTLY_GUARD_WAIT_TIMEOUT": "soon"}, "guard.wait_timeout"},
		{"unknown backend", map[string]string{"APPOINTLY_GUARD_BACKEND": "etcd"}, "unknown backend"},
		{"redis guard without redis", map[string]string{"APPOINTLY_GUARD_BACKEND": "redis"}, "requires redis.enabled"},
		{"ttl below wait", map[string]string{"APPOINTLY_GUARD_LOCK_TTL": "1s"}, "must exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
