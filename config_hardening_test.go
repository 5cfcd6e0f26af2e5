package recovery

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidateProductionRejectsWeakArgon2(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.ProductionMode = true
	cfg.Password.Hasher = HasherArgon2
	cfg.Password.Argon2.Memory = 32 * 1024

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Argon2 Memory") {
		t.Fatalf("expected weak argon2 rejection, got %v", err)
	}
}

func TestConfigValidateDevModeAllowsRelaxedCrypto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password.BcryptCost = 4
	cfg.Reset.CodeTTL = time.Hour
	cfg.Reset.EnumerationDelay = false
	cfg.RateLimit.Enabled = false

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected relaxed dev config to pass, got %v", err)
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	cfg := testResetConfig()
	cfg.Reset.IdentifierPrefixes = []string{"NSS"}

	f := newResetFixture(t, cfg, nil)
	cfg.Reset.IdentifierPrefixes[0] = "XYZ"
	cfg.Reset.CodeTTL = time.Second

	if f.engine.config.Reset.IdentifierPrefixes[0] != "NSS" {
		t.Fatal("engine prefixes mutated from external config after build")
	}
	if f.engine.config.Reset.CodeTTL != 10*time.Minute {
		t.Fatal("engine code TTL mutated from external config after build")
	}
}

func TestSecurityReportReflectsPosture(t *testing.T) {
	cfg := testResetConfig()
	cfg.Security.ProductionMode = true
	cfg.Password.BcryptCost = 12
	cfg.Reset.EnumerationDelay = true
	cfg.Audit.Enabled = true

	f := newResetFixture(t, cfg, nil)

	report := f.engine.SecurityReport()
	if !report.ProductionMode {
		t.Fatal("expected ProductionMode=true in report")
	}
	if report.Hasher != HasherBcrypt || report.BcryptCost != 12 {
		t.Fatalf("expected bcrypt cost 12 in report, got %s %d", report.Hasher, report.BcryptCost)
	}
	if report.Argon2 != (PasswordConfigReport{}) {
		t.Fatal("expected empty argon2 section for bcrypt")
	}
	if !report.RateLimitingActive || report.RateLimitWindow != 15*time.Minute || report.RateLimitMax != 3 {
		t.Fatalf("unexpected rate limit posture %+v", report)
	}
	if report.CodeTTL != 10*time.Minute || report.MaxVerifyAttempts != 3 || !report.EnumerationDelay {
		t.Fatalf("unexpected reset posture %+v", report)
	}
	if report.SharedStore || report.StoreBackend != StoreMemory {
		t.Fatal("expected process-local memory store in report")
	}
	if !report.AuditEnabled {
		t.Fatal("expected audit enabled in report")
	}
}

func TestSecurityReportLimiterDisabled(t *testing.T) {
	cfg := testResetConfig()
	cfg.RateLimit.Enabled = false
	cfg.Password.Hasher = HasherArgon2

	f := newResetFixture(t, cfg, nil)

	report := f.engine.SecurityReport()
	if report.RateLimitingActive || report.RateLimitWindow != 0 {
		t.Fatalf("expected inactive limiter, got %+v", report)
	}
	if report.Argon2.Memory == 0 || report.BcryptCost != 0 {
		t.Fatalf("expected argon2 section only, got %+v", report)
	}

	var nilEngine *Engine
	if nilEngine.SecurityReport() != (SecurityReport{}) {
		t.Fatal("expected zero report from nil engine")
	}
}
