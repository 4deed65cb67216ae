package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PURGE_WINDOW", "GRACE_PERIOD", "SNAPSHOT_BACKEND", "ALLOWED_ORIGINS", "STUDENT_RATE_LIMIT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.PurgeWindow != 6*time.Hour || cfg.GracePeriod != 15*time.Minute {
		t.Errorf("unexpected windows %v / %v", cfg.PurgeWindow, cfg.GracePeriod)
	}
	if cfg.SnapshotBackend != SnapshotBackendRedis {
		t.Errorf("backend %q", cfg.SnapshotBackend)
	}
	if cfg.AllowedOrigins != nil {
		t.Errorf("origins %v, want allow-all", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PURGE_WINDOW", "90m")
	t.Setenv("GRACE_PERIOD", "-5m")
	t.Setenv("SNAPSHOT_BACKEND", "FILE")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("STUDENT_RATE_LIMIT", "ten")

	cfg := Load()
	if cfg.PurgeWindow != 90*time.Minute {
		t.Errorf("PurgeWindow = %v", cfg.PurgeWindow)
	}
	if cfg.GracePeriod != 15*time.Minute {
		t.Errorf("negative grace period should fall back, got %v", cfg.GracePeriod)
	}
	if cfg.SnapshotBackend != SnapshotBackendFile {
		t.Errorf("backend %q", cfg.SnapshotBackend)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins %q", cfg.AllowedOrigins)
	}
	if cfg.StudentRateLimit != 120 {
		t.Errorf("invalid int should fall back, got %d", cfg.StudentRateLimit)
	}
}

func TestCacheKeys(t *testing.T) {
	if got := CacheKey.PendingExamKey("chem", "s1"); got != "student:s1:exam:chem:pending" {
		t.Errorf("PendingExamKey = %q", got)
	}
	if got := CacheKey.StudentAnswersKey("chem", "s1", 42); got != "student:s1:exam:chem:42:answers" {
		t.Errorf("StudentAnswersKey = %q", got)
	}
	if CacheKey.SessionSnapshotKey() == CacheKey.SessionRecoveryKey() {
		t.Error("snapshot and recovery lists must differ")
	}
}
